package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sha5b/DynamiCrafter/pkg/accel"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/python"
	"github.com/sha5b/DynamiCrafter/pkg/storage"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local setup and report what's missing",
	Long: `Check the local setup: hardware, Python tooling, and checkpoints.

The report covers:
  - CPU and GPU hardware, and the detected CUDA version
  - The PyTorch wheel index that would be installed
  - uv availability and the synced interpreter version
  - Which checkpoint variants are present on disk`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runDoctor(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()
	ctx := context.Background()

	// Hardware
	ui.PrintHighlight("Hardware")
	detector := accel.NewDetector(log)

	cpu := detector.CPU()
	if cpu.BrandName != "" {
		ui.PrintInfo("CPU", fmt.Sprintf("%s (%d logical cores)", cpu.BrandName, cpu.Cores))
		simd := "none"
		switch {
		case cpu.AVX512:
			simd = "AVX-512"
		case cpu.AVX2:
			simd = "AVX2"
		case cpu.AVX:
			simd = "AVX"
		}
		ui.PrintInfo("SIMD", simd)
	}

	gpus := detector.GPUs()
	if len(gpus) == 0 {
		ui.PrintWarning("GPU", "none detected")
	}
	for _, gpu := range gpus {
		ui.PrintInfo("GPU", gpu.Vendor+" "+gpu.Product)
	}

	if totals, err := detector.VRAM(ctx); err == nil {
		for i, mib := range totals {
			ui.PrintInfo(fmt.Sprintf("VRAM (GPU %d)", i), fmt.Sprintf("%d MiB", mib))
		}
	}

	if version, err := detector.DetectCUDA(ctx); err == nil {
		ui.PrintInfo("CUDA", version.String())
	} else {
		ui.PrintWarning("CUDA", "not detected, CPU wheels will be used")
	}
	ui.PrintInfo("Wheel index", string(detector.RecommendedTag(ctx)))

	// Python tooling
	fmt.Println()
	ui.PrintHighlight("Python")
	env := python.NewEnv(cfg, python.NewRunner(log), log)
	if err := env.CheckUV(); err != nil {
		ui.PrintWarning("uv", err.Error())
	} else {
		ui.PrintInfo("uv", "found")
		if version, err := env.PythonVersion(ctx); err == nil {
			ui.PrintInfo("Interpreter", version)
		} else {
			ui.PrintWarning("Interpreter", "not synced, run 'dynamicrafter setup'")
		}
	}

	// Checkpoints
	fmt.Println()
	ui.PrintHighlight("Checkpoints")
	ui.PrintInfo("Root", cfg.Checkpoints.RootDirectory)

	store, err := storage.NewManager(cfg.Checkpoints.RootDirectory)
	if err != nil {
		ui.PrintError("Storage", err.Error())
		os.Exit(1)
	}

	missing := 0
	for _, variant := range models.All() {
		complete := true
		for _, file := range variant.Files {
			if !store.IsComplete(variant.Name, file.Name) {
				complete = false
				break
			}
		}
		if complete {
			ui.PrintInfo(variant.Name, "present")
		} else {
			ui.PrintWarning(variant.Name, "missing")
			missing++
		}
	}

	fmt.Println()
	if missing > 0 {
		ui.PrintInfo("Hint", fmt.Sprintf("fetch missing weights with 'dynamicrafter fetch <variant>' (%d missing)", missing))
	} else {
		ui.PrintSuccess("All checkpoint variants are present")
	}
}
