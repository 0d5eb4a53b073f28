// Package demo launches the Gradio demo apps through the uv environment.
//
// Each demo is gated on its checkpoint: the variant's weights are ensured on
// disk before the app process starts, so the demo never boots against a
// missing model.
package demo

import (
	"context"
	"fmt"
	"strings"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/python"
)

const (
	// i2vScript is the resolution-selectable image-to-video demo.
	i2vScript = "gradio_app.py"
	// interpScript is the fixed-resolution interpolation and looping demo.
	interpScript = "gradio_app_interp_and_loop.py"
)

// Ensurer downloads a variant's weights when they are not on disk yet.
// Implemented by fetcher.Fetcher.
type Ensurer interface {
	EnsureVariant(ctx context.Context, variant models.Variant) error
}

// Launcher starts demo front-ends
type Launcher struct {
	runner  python.Runner
	ensurer Ensurer
	uv      string
	logger  logger.Logger
}

// NewLauncher creates a demo launcher
func NewLauncher(cfg *config.Config, runner python.Runner, ensurer Ensurer, log logger.Logger) *Launcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if runner == nil {
		runner = python.NewRunner(log)
	}

	return &Launcher{
		runner:  runner,
		ensurer: ensurer,
		uv:      cfg.Python.UVBinary,
		logger:  log,
	}
}

// LaunchI2V starts the image-to-video demo at the requested resolution.
// The res flag selects the variant: 256, 512 or 1024.
func (l *Launcher) LaunchI2V(ctx context.Context, res string) error {
	variant, err := models.ByResFlag(res)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown,
			fmt.Sprintf("invalid resolution %q (expected %s)", res, strings.Join(models.ResFlags(), ", ")))
	}

	if err := l.ensurer.EnsureVariant(ctx, variant); err != nil {
		return fmt.Errorf("failed to ensure checkpoint for %s: %w", variant.Name, err)
	}

	l.logger.InfoWithFields("launching demo", map[string]interface{}{
		"script":     i2vScript,
		"resolution": res,
		"variant":    variant.Name,
	})

	return l.runner.Run(ctx, l.uv, "run", "python", i2vScript, "--res", res)
}

// LaunchInterp starts the interpolation and looping demo. It runs at a fixed
// resolution and takes no flags.
func (l *Launcher) LaunchInterp(ctx context.Context) error {
	variant := models.InterpVariant()

	if err := l.ensurer.EnsureVariant(ctx, variant); err != nil {
		return fmt.Errorf("failed to ensure checkpoint for %s: %w", variant.Name, err)
	}

	l.logger.InfoWithFields("launching demo", map[string]interface{}{
		"script":  interpScript,
		"variant": variant.Name,
	})

	return l.runner.Run(ctx, l.uv, "run", "python", interpScript)
}
