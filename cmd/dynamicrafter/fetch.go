package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sha5b/DynamiCrafter/pkg/auth"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/fetcher"
	"github.com/sha5b/DynamiCrafter/pkg/hub"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
	"github.com/sha5b/DynamiCrafter/pkg/ui/tui"
)

var (
	// Fetch command flags
	checkpointsDir  string
	concurrent      int
	maxRetries      int
	downloadTimeout int
	forceRestart    bool
	fastTransfer    bool
	noVerify        bool
	fetchAll        bool
	profileName     string
	useTUI          bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [variant|uri]",
	Short: "Download pretrained checkpoint weights from Hugging Face",
	Long: `Download the pretrained weights for a DynamiCrafter checkpoint variant.

Each variant lands in its own directory under the checkpoints root,
e.g. checkpoints/dynamicrafter_512_v1/model.ckpt. Interrupted downloads
resume automatically as long as the file on the hub has not changed.

A single file from any hub repository can be fetched by URI instead of
a variant name, e.g. huggingface://Doubiiu/DynamiCrafter/config.yaml.

Known variants:
  dynamicrafter_256_v1          256x256  image-to-video
  dynamicrafter_512_v1          320x512  image-to-video
  dynamicrafter_1024_v1         576x1024 image-to-video
  dynamicrafter_512_interp_v1   320x512  frame interpolation / looping`,
	Example: `  # Download the 512 checkpoint
  dynamicrafter fetch dynamicrafter_512_v1

  # Download every variant
  dynamicrafter fetch --all

  # Download a single file by hub URI
  dynamicrafter fetch huggingface://Doubiiu/DynamiCrafter/config.yaml

  # Download to a specific directory with more parallel connections
  dynamicrafter fetch dynamicrafter_1024_v1 --checkpoints-dir /data/ckpts --concurrent 6

  # Chunked parallel transfer for large files
  dynamicrafter fetch dynamicrafter_1024_v1 --fast-transfer

  # Throw away partial files and start over
  dynamicrafter fetch dynamicrafter_512_v1 --force-restart`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runFetch(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&checkpointsDir, "checkpoints-dir", "d", "", "root directory for checkpoints (default: ./checkpoints)")
	fetchCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent downloads")
	fetchCmd.Flags().IntVar(&maxRetries, "max-retries", 4, "maximum number of retry attempts")
	fetchCmd.Flags().IntVar(&downloadTimeout, "download-timeout", 1800, "download timeout in seconds")
	fetchCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard partial files and the session ledger")
	fetchCmd.Flags().BoolVar(&fastTransfer, "fast-transfer", false, "use concurrent ranged chunks for large files")
	fetchCmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip sha256 verification of downloaded files")
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "download every known variant")
	fetchCmd.Flags().StringVarP(&profileName, "profile", "a", "", "use a specific stored token profile")
	fetchCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
}

func runFetch(cmd *cobra.Command, args []string) {
	if len(args) == 0 && !fetchAll {
		ui.PrintError("Missing variant", "name a checkpoint variant or pass --all")
		fmt.Println("\nKnown variants:")
		for _, v := range models.All() {
			fmt.Printf("  %s\n", v.Name)
		}
		os.Exit(1)
	}

	cfg := loadFetchConfig()

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	logger.WithField("version", version).Info("DynamiCrafter CLI starting")

	// Resolve the access token. Public checkpoints work without one.
	resolveToken(cfg)

	f, err := fetcher.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize fetcher", err.Error())
		os.Exit(1)
	}

	opts := fetcher.Options{ForceRestart: forceRestart}

	run := func(ctx context.Context) error {
		if fetchAll {
			return f.FetchAll(ctx, opts)
		}
		arg := strings.TrimSpace(args[0])
		if strings.HasPrefix(arg, hub.URIPrefix) {
			uri, err := hub.ParseURI(arg)
			if err != nil {
				return err
			}
			if !useTUI {
				ui.PrintInfo("Repository", uri.RepoID())
				ui.PrintInfo("File", uri.File)
			}
			return f.FetchFile(ctx, uri)
		}
		variant, err := models.ByName(arg)
		if err != nil {
			return err
		}
		if !useTUI {
			ui.PrintInfo("Checkpoint", variant.Name)
			ui.PrintInfo("Repository", variant.Repo)
		}
		return f.FetchVariant(ctx, variant, opts)
	}

	if useTUI {
		terminal := tui.NewTUI(cfg.Download.ConcurrentDownloads)
		f.SetTUI(terminal)

		fetchDone := make(chan error)
		go func() {
			fetchDone <- run(context.Background())
		}()

		tuiDone := make(chan error)
		go func() {
			tuiDone <- terminal.Start()
		}()

		select {
		case err := <-fetchDone:
			terminal.Stop()
			<-tuiDone
			if err != nil {
				logger.WithError(err).Error("Download failed")
				os.Exit(1)
			}
		case err := <-tuiDone:
			if err != nil {
				logger.WithError(err).Error("TUI failed")
				os.Exit(1)
			}
		}

		logger.Info("Download completed successfully")
	} else {
		ui.PrintHighlight("[FETCHING CHECKPOINT WEIGHTS]")

		if err := run(context.Background()); err != nil {
			logger.WithError(err).Error("Download failed")
			ui.PrintError("DOWNLOAD FAILED", err.Error())
			os.Exit(1)
		}

		logger.Info("Download completed successfully")
		ui.PrintSuccess("[CHECKPOINTS READY]")
	}
}

// loadFetchConfig assembles the config with fetch flag overrides applied
func loadFetchConfig() *config.Config {
	flags := globalFlags()
	if checkpointsDir != "" {
		flags["checkpoints-dir"] = checkpointsDir
	}
	if concurrent != 3 {
		flags["concurrent"] = concurrent
	}
	if maxRetries != 4 {
		flags["max-retries"] = maxRetries
	}
	if downloadTimeout != 1800 {
		flags["download-timeout"] = time.Duration(downloadTimeout) * time.Second
	}
	if fastTransfer {
		flags["fast-transfer"] = true
	}
	if noVerify {
		flags["no-verify"] = true
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	return cfg
}

// resolveToken fills cfg.Hub.Token from the stored token when the
// environment and config did not provide one
func resolveToken(cfg *config.Config) {
	if profileName != "" {
		manager, err := auth.NewManager()
		if err != nil {
			ui.PrintError("Failed to initialize token manager", err.Error())
			os.Exit(1)
		}
		token, err := manager.Retrieve(profileName)
		if err != nil {
			ui.PrintError("Token profile not found", profileName)
			ui.PrintInfo("Stored profiles", "Use 'dynamicrafter auth list' to see them")
			os.Exit(1)
		}
		cfg.Hub.Token = token.Value
		logger.WithField("profile", token.Profile).Info("Using stored access token")
		return
	}

	if cfg.Hub.Token != "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		return
	}
	if token, err := manager.RetrieveDefault(); err == nil && token != nil {
		cfg.Hub.Token = token.Value
		logger.WithField("profile", token.Profile).Info("Using stored access token")
	}
}
