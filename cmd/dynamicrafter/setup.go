package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/python"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// setupCmd represents the setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the Python environment with uv",
	Long: `Prepare the Python environment the DynamiCrafter demos run in.

This pins the Python interpreter version with uv and syncs the locked
dependency set into the project virtual environment. Requires uv:
https://docs.astral.sh/uv/`,
	Example: `  # Pin the interpreter and sync dependencies
  dynamicrafter setup

  # Then install the PyTorch wheels for your GPU
  dynamicrafter torch install`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runSetup(cmd, args)
		return nil
	},
}

var (
	setupPython string
	setupFrozen bool
)

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().StringVar(&setupPython, "python", "", "interpreter version to pin (default from config)")
	setupCmd.Flags().BoolVar(&setupFrozen, "frozen", true, "install exactly the locked dependency set without re-resolving")
}

func runSetup(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	if setupPython != "" {
		cfg.Python.Version = setupPython
	}

	env := python.NewEnv(cfg, python.NewRunner(log), log)

	ui.PrintHighlight("[PREPARING PYTHON ENVIRONMENT]")
	ui.PrintInfo("Python version", cfg.Python.Version)

	if err := env.Setup(context.Background(), setupFrozen); err != nil {
		log.WithError(err).Error("Environment setup failed")
		ui.PrintError("SETUP FAILED", err.Error())
		os.Exit(1)
	}

	if version, err := env.PythonVersion(context.Background()); err == nil {
		ui.PrintInfo("Interpreter", version)
	}

	ui.PrintSuccess("[ENVIRONMENT READY]")
	ui.PrintInfo("Next step", "dynamicrafter torch install")
}
