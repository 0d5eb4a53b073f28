package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sha5b/DynamiCrafter/pkg/accel"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/python"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

var (
	// Torch command flags
	torchTag       string
	torchReinstall bool
	torchVCRedist  bool
)

// torchCmd represents the torch command
var torchCmd = &cobra.Command{
	Use:   "torch",
	Short: "Manage the PyTorch installation",
}

// torchInstallCmd represents the torch install command
var torchInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install PyTorch wheels matching your accelerator",
	Long: `Install the pinned PyTorch wheels for the detected accelerator.

The CUDA version reported by nvidia-smi picks the wheel index:
  CUDA 12.x  ->  cu121
  CUDA 11.x  ->  cu118
  otherwise  ->  cpu

When the detected index fails to install or verify, the next weaker
index is tried automatically, ending with the CPU wheels. A tag forced
with --tag never falls back.`,
	Example: `  # Detect the GPU and install matching wheels
  dynamicrafter torch install

  # Force the CUDA 11.8 wheels
  dynamicrafter torch install --tag cu118

  # Reinstall on top of a broken installation
  dynamicrafter torch install --reinstall`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runTorchInstall(cmd, args)
		return nil
	},
}

// torchDetectCmd represents the torch detect command
var torchDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected accelerator and wheel index",
	RunE: func(cmd *cobra.Command, args []string) error {
		runTorchDetect(cmd, args)
		return nil
	},
}

// torchVerifyCmd represents the torch verify command
var torchVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the installed PyTorch build",
	Long: `Import torch in the synced environment and check it against the
expected build. CUDA builds must report an available accelerator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runTorchVerify(cmd, args)
		return nil
	},
}

var torchVerifyTag string

func init() {
	rootCmd.AddCommand(torchCmd)
	torchCmd.AddCommand(torchInstallCmd)
	torchCmd.AddCommand(torchDetectCmd)
	torchCmd.AddCommand(torchVerifyCmd)

	torchInstallCmd.Flags().StringVar(&torchTag, "tag", "", "force a wheel index (cu121, cu118, cpu)")
	torchInstallCmd.Flags().BoolVar(&torchReinstall, "reinstall", false, "reinstall even if already present")
	torchInstallCmd.Flags().BoolVar(&torchVCRedist, "vc-redist", true, "install the Visual C++ redistributable on Windows")

	torchVerifyCmd.Flags().StringVar(&torchVerifyTag, "tag", "", "build tag to verify against (default: detected)")
}

func runTorchInstall(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	var forced accel.BuildTag
	if torchTag != "" {
		forced, err = accel.ParseBuildTag(torchTag)
		if err != nil {
			ui.PrintError("Invalid build tag", err.Error())
			os.Exit(1)
		}
	}

	installer := python.NewTorchInstaller(cfg, python.NewRunner(log), log)
	detector := accel.NewDetector(log)

	ui.PrintHighlight("[INSTALLING PYTORCH]")
	ui.PrintInfo("Torch version", cfg.Torch.TorchVersion)

	tag, err := installer.Install(context.Background(), detector, python.InstallOptions{
		Tag:       forced,
		Reinstall: torchReinstall,
		VCRedist:  torchVCRedist,
	})
	if err != nil {
		log.WithError(err).Error("Torch installation failed")
		ui.PrintError("INSTALL FAILED", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Installed wheel index", string(tag))
	ui.PrintSuccess("[PYTORCH READY]")
}

func runTorchVerify(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	ctx := context.Background()

	tag := accel.BuildTag("")
	if torchVerifyTag != "" {
		tag, err = accel.ParseBuildTag(torchVerifyTag)
		if err != nil {
			ui.PrintError("Invalid build tag", err.Error())
			os.Exit(1)
		}
	} else {
		tag = accel.NewDetector(log).RecommendedTag(ctx)
	}

	installer := python.NewTorchInstaller(cfg, python.NewRunner(log), log)

	ui.PrintInfo("Verifying build", string(tag))
	if err := installer.Verify(ctx, tag); err != nil {
		ui.PrintError("VERIFICATION FAILED", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("[PYTORCH VERIFIED]")
}

func runTorchDetect(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	detector := accel.NewDetector(log)
	ctx := context.Background()

	if version, err := detector.DetectCUDA(ctx); err == nil {
		ui.PrintInfo("CUDA version", version.String())
	} else {
		ui.PrintWarning("No CUDA driver detected", err.Error())
	}

	tag := detector.RecommendedTag(ctx)
	ui.PrintInfo("Recommended wheel index", string(tag))
	ui.PrintInfo("Index URL", tag.IndexURL())

	for _, gpu := range detector.GPUs() {
		ui.PrintInfo("GPU", gpu.Vendor+" "+gpu.Product)
	}
}
