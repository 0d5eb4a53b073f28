package python

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// Runner executes external commands
type Runner interface {
	// Run executes a command, streaming its output to the terminal
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and captures its combined output
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs commands on the host
type execRunner struct {
	logger logger.Logger
}

// NewRunner creates a Runner backed by os/exec
func NewRunner(log logger.Logger) Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &execRunner{logger: log}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.DebugWithFields("running command", map[string]interface{}{
		"command": name + " " + strings.Join(args, " "),
	})

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		r.logger.DebugWithFields("command failed", map[string]interface{}{
			"command":  name,
			"error":    err.Error(),
			"duration": duration,
		})
		return errs.New(errs.ErrorTypePython, fmt.Sprintf("%s failed: %v", name, err))
	}

	r.logger.DebugWithFields("command completed", map[string]interface{}{
		"command":  name,
		"duration": duration,
	})

	return nil
}

func (r *execRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), errs.New(errs.ErrorTypePython, fmt.Sprintf("%s failed: %v", name, err))
	}
	return string(out), nil
}

// LookPath reports whether a binary is on PATH
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
