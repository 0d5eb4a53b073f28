package python

import (
	"context"
	"fmt"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// Env manages the uv-controlled Python environment
type Env struct {
	runner   Runner
	uv       string
	python   string
	lookPath func(string) bool
	logger   logger.Logger
}

// NewEnv creates an environment manager from configuration
func NewEnv(cfg *config.Config, runner Runner, log logger.Logger) *Env {
	if log == nil {
		log = logger.GetLogger()
	}
	if runner == nil {
		runner = NewRunner(log)
	}

	return &Env{
		runner:   runner,
		uv:       cfg.Python.UVBinary,
		python:   cfg.Python.Version,
		lookPath: LookPath,
		logger:   log,
	}
}

// CheckUV verifies the uv binary is available
func (e *Env) CheckUV() error {
	if !e.lookPath(e.uv) {
		return errs.New(errs.ErrorTypePython,
			fmt.Sprintf("%s not found on PATH, install it from https://docs.astral.sh/uv/", e.uv))
	}
	return nil
}

// Setup pins the interpreter and syncs dependencies. A frozen sync installs
// exactly what the lock file records and never re-resolves it, which is what
// makes re-running setup a no-op.
func (e *Env) Setup(ctx context.Context, frozen bool) error {
	if err := e.CheckUV(); err != nil {
		return err
	}

	e.logger.InfoWithFields("pinning python interpreter", map[string]interface{}{
		"version": e.python,
	})
	if err := e.runner.Run(ctx, e.uv, "python", "pin", e.python); err != nil {
		return fmt.Errorf("failed to pin python %s: %w", e.python, err)
	}

	args := []string{"sync"}
	if frozen {
		args = append(args, "--frozen")
	}

	e.logger.Info("syncing environment from lock file")
	if err := e.runner.Run(ctx, e.uv, args...); err != nil {
		return fmt.Errorf("failed to sync environment: %w", err)
	}

	return nil
}

// PythonVersion reports the interpreter version uv resolved, for the doctor
func (e *Env) PythonVersion(ctx context.Context) (string, error) {
	out, err := e.runner.Output(ctx, e.uv, "run", "python", "--version")
	if err != nil {
		return "", err
	}
	return out, nil
}
