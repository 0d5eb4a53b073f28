package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage DynamiCrafter CLI configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.dynamicrafter.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values

Sensitive values like tokens will be masked for security.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	// Determine config file path
	configPath := configFile
	if configPath == "" {
		configPath = ".dynamicrafter.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	// Create example configuration
	exampleConfig := `# DynamiCrafter CLI Configuration File
#
# This file contains all available configuration options.
# You can also use environment variables, for example:
# HF_TOKEN, HF_ENDPOINT, DYNAMICRAFTER_CHECKPOINTS_DIR

# Hugging Face hub settings
hub:
  # Hub endpoint, change for a mirror
  endpoint: "https://huggingface.co"

  # Access token (optional for the public checkpoints)
  # Prefer 'dynamicrafter auth add' or the HF_TOKEN env var over this file
  token: ""

  # User agent sent with hub requests
  user_agent: "dynamicrafter-cli/2.0"

  # Git revision to download from
  revision: "main"

# Checkpoint storage
checkpoints:
  # Root directory, one subdirectory per variant
  root_directory: "./checkpoints"

# Download configuration
download:
  # Number of concurrent downloads
  # Range: 1-16
  concurrent_downloads: 3

  # Per-file download timeout
  download_timeout: 30m

  # Maximum number of retry attempts
  retry_attempts: 4

  # Chunk size for fast transfers, in bytes
  chunk_size: 8388608

  # Use concurrent ranged chunks for large files
  # Also toggled via HF_HUB_ENABLE_HF_TRANSFER=1
  fast_transfer: false

  # Verify sha256 digests when the variant pins them
  verify_checksums: true

# Rate limiting configuration
rate_limit:
  # Requests per minute against the hub
  requests_per_minute: 60

  # Burst size (number of requests allowed in burst)
  burst_size: 10

# Python environment
python:
  # Interpreter version pinned with uv
  version: "3.8.5"

  # uv binary to invoke
  uv_binary: "uv"

  # Virtual environment directory
  venv_dir: ".venv"

# PyTorch wheel settings
torch:
  torch_version: "2.0.0"
  torchvision_version: "0.15.1"
  torchaudio_version: "2.0.1"
  index_base_url: "https://download.pytorch.org/whl"

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stdout only
  file: ""

  # Maximum log file size in MB
  max_size: 100

  # Maximum number of old log files to keep
  max_backups: 3

  # Maximum age of log files in days
  max_age: 7
`

	// Write configuration file
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust the configuration if the defaults don't fit")
	fmt.Println("2. Run 'dynamicrafter config validate' to check it")
	fmt.Println("3. Download weights with 'dynamicrafter fetch <variant>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Create a sanitized version for display
	displayCfg := *cfg

	// Mask the token
	if displayCfg.Hub.Token != "" {
		if len(displayCfg.Hub.Token) > 8 {
			displayCfg.Hub.Token = displayCfg.Hub.Token[:4] + "..." + displayCfg.Hub.Token[len(displayCfg.Hub.Token)-4:]
		} else {
			displayCfg.Hub.Token = "***"
		}
	}

	// Convert to YAML for display
	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	// Show configuration sources
	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (HF_*, DYNAMICRAFTER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (not specified)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	// Check if config file is specified
	if configFile == "" {
		// Try to find config file in common locations
		possiblePaths := []string{
			".dynamicrafter.yaml",
			".dynamicrafter.yml",
			filepath.Join(os.Getenv("HOME"), ".dynamicrafter.yaml"),
			filepath.Join(os.Getenv("HOME"), ".config", "dynamicrafter", "config.yaml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating configuration", configFile)

	// Try to load and validate configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	// Perform additional validation checks
	warnings := []string{}
	errors := []string{}

	// Check checkpoint root
	if cfg.Checkpoints.RootDirectory != "" {
		if err := os.MkdirAll(cfg.Checkpoints.RootDirectory, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create checkpoints directory: %v", err))
		}
	}

	// Check logging file path
	if cfg.Logging.File != "" {
		dir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	// Advisory checks
	if cfg.Hub.Token == "" {
		warnings = append(warnings, "No hub token configured, rate limits will be lower")
	}
	if cfg.Download.FastTransfer && cfg.Download.ConcurrentDownloads > 8 {
		warnings = append(warnings, "fast_transfer with many concurrent downloads may saturate your connection")
	}

	// Display results
	if len(errors) > 0 {
		ui.PrintError("Configuration has errors:", "")
		for _, err := range errors {
			fmt.Printf("  - %s\n", err)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:", "")
		for _, warn := range warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	// Show summary
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Checkpoints directory: %s\n", cfg.Checkpoints.RootDirectory)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max retries: %d\n", cfg.Download.RetryAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
