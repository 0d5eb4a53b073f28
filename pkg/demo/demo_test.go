package demo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
)

type fakeRunner struct {
	commands []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.commands = append(f.commands, name+" "+strings.Join(args, " "))
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	return "", nil
}

type fakeEnsurer struct {
	ensured []string
	err     error
}

func (f *fakeEnsurer) EnsureVariant(ctx context.Context, variant models.Variant) error {
	if f.err != nil {
		return f.err
	}
	f.ensured = append(f.ensured, variant.Name)
	return nil
}

func newTestLauncher(runner *fakeRunner, ensurer *fakeEnsurer) *Launcher {
	return NewLauncher(config.DefaultConfig(), runner, ensurer, logger.NewTestLogger())
}

func TestLaunchI2VResolutions(t *testing.T) {
	tests := []struct {
		res         string
		wantVariant string
	}{
		{"256", "dynamicrafter_256_v1"},
		{"512", "dynamicrafter_512_v1"},
		{"1024", "dynamicrafter_1024_v1"},
	}

	for _, tt := range tests {
		t.Run(tt.res, func(t *testing.T) {
			runner := &fakeRunner{}
			ensurer := &fakeEnsurer{}
			l := newTestLauncher(runner, ensurer)

			require.NoError(t, l.LaunchI2V(context.Background(), tt.res))

			assert.Equal(t, []string{tt.wantVariant}, ensurer.ensured)
			require.Len(t, runner.commands, 1)
			assert.Equal(t, "uv run python gradio_app.py --res "+tt.res, runner.commands[0])
		})
	}
}

func TestLaunchI2VInvalidResolution(t *testing.T) {
	runner := &fakeRunner{}
	ensurer := &fakeEnsurer{}
	l := newTestLauncher(runner, ensurer)

	for _, res := range []string{"128", "2048", "", "512x320"} {
		err := l.LaunchI2V(context.Background(), res)
		assert.Error(t, err, "res %q", res)
	}

	// nothing was ensured or launched
	assert.Empty(t, ensurer.ensured)
	assert.Empty(t, runner.commands)
}

func TestLaunchI2VEnsureFailureBlocksLaunch(t *testing.T) {
	runner := &fakeRunner{}
	ensurer := &fakeEnsurer{err: errors.New("download failed")}
	l := newTestLauncher(runner, ensurer)

	err := l.LaunchI2V(context.Background(), "512")
	require.Error(t, err)
	assert.Empty(t, runner.commands)
}

func TestLaunchInterp(t *testing.T) {
	runner := &fakeRunner{}
	ensurer := &fakeEnsurer{}
	l := newTestLauncher(runner, ensurer)

	require.NoError(t, l.LaunchInterp(context.Background()))

	assert.Equal(t, []string{"dynamicrafter_512_interp_v1"}, ensurer.ensured)
	require.Len(t, runner.commands, 1)
	// fixed resolution, no flags
	assert.Equal(t, "uv run python gradio_app_interp_and_loop.py", runner.commands[0])
}
