package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/demo"
	"github.com/sha5b/DynamiCrafter/pkg/fetcher"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/python"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

var demoRes string

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Launch the Gradio demo apps",
	Long: `Launch the DynamiCrafter Gradio demo apps.

The checkpoint for the selected resolution is downloaded first if it is
not on disk yet. Run 'dynamicrafter setup' and 'dynamicrafter torch
install' once before launching a demo.`,
}

// demoI2VCmd represents the demo i2v command
var demoI2VCmd = &cobra.Command{
	Use:   "i2v",
	Short: "Launch the image-to-video demo",
	Long: `Launch the image-to-video Gradio demo at the selected resolution.

Resolutions:
  256   ->  256x256   (dynamicrafter_256_v1)
  512   ->  320x512   (dynamicrafter_512_v1)
  1024  ->  576x1024  (dynamicrafter_1024_v1)`,
	Example: `  # Launch at 320x512
  dynamicrafter demo i2v --res 512

  # Launch the highest resolution model
  dynamicrafter demo i2v --res 1024`,
	// an invalid resolution is a usage error, nothing may touch disk first
	PreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := models.ByResFlag(demoRes)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		runDemoI2V(cmd, args)
		return nil
	},
}

// demoInterpCmd represents the demo interp command
var demoInterpCmd = &cobra.Command{
	Use:   "interp",
	Short: "Launch the frame interpolation and looping demo",
	Long: `Launch the frame interpolation / looping Gradio demo.

Uses the dynamicrafter_512_interp_v1 checkpoint at 320x512.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runDemoInterp(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.AddCommand(demoI2VCmd)
	demoCmd.AddCommand(demoInterpCmd)

	demoI2VCmd.Flags().StringVar(&demoRes, "res", "256", "demo resolution (256, 512, 1024)")
}

// newLauncher wires the demo launcher with a fetcher as its ensurer
func newLauncher() (*demo.Launcher, *config.Config) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	f, err := fetcher.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize fetcher", err.Error())
		os.Exit(1)
	}

	return demo.NewLauncher(cfg, python.NewRunner(log), f, log), cfg
}

func runDemoI2V(cmd *cobra.Command, args []string) {
	variant, err := models.ByResFlag(demoRes)
	if err != nil {
		ui.PrintError("Invalid resolution", err.Error())
		os.Exit(1)
	}

	launcher, _ := newLauncher()

	ui.PrintInfo("Checkpoint", variant.Name)
	ui.PrintInfo("Resolution", variant.Resolution.String())

	ui.PrintHighlight("[LAUNCHING IMAGE-TO-VIDEO DEMO]")

	if err := launcher.LaunchI2V(context.Background(), demoRes); err != nil {
		logger.WithError(err).Error("Demo failed")
		ui.PrintError("DEMO FAILED", err.Error())
		os.Exit(1)
	}
}

func runDemoInterp(cmd *cobra.Command, args []string) {
	launcher, _ := newLauncher()

	variant := models.InterpVariant()
	ui.PrintInfo("Checkpoint", variant.Name)
	ui.PrintInfo("Resolution", variant.Resolution.String())

	ui.PrintHighlight("[LAUNCHING INTERPOLATION DEMO]")

	if err := launcher.LaunchInterp(context.Background()); err != nil {
		logger.WithError(err).Error("Demo failed")
		ui.PrintError("DEMO FAILED", err.Error())
		os.Exit(1)
	}
}
