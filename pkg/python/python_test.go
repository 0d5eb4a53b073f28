package python

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sha5b/DynamiCrafter/pkg/accel"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// fakeRunner records commands and scripts their results
type fakeRunner struct {
	commands []string
	// failMatch fails any Run command containing this substring
	failMatch string
	// outputs maps an Output command substring to its stdout
	outputs map[string]string
	// outputErr fails any Output command containing this substring
	outputErr string
}

func (f *fakeRunner) record(name string, args []string) string {
	cmd := name + " " + strings.Join(args, " ")
	f.commands = append(f.commands, cmd)
	return cmd
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := f.record(name, args)
	if f.failMatch != "" && strings.Contains(cmd, f.failMatch) {
		return errs.New(errs.ErrorTypePython, "command failed")
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := f.record(name, args)
	if f.outputErr != "" && strings.Contains(cmd, f.outputErr) {
		return "", errs.New(errs.ErrorTypePython, "command failed")
	}
	for match, out := range f.outputs {
		if strings.Contains(cmd, match) {
			return out, nil
		}
	}
	return "", nil
}

func commandsContaining(cmds []string, substr string) []string {
	var hits []string
	for _, c := range cmds {
		if strings.Contains(c, substr) {
			hits = append(hits, c)
		}
	}
	return hits
}

func TestEnvSetup(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{}
	env := NewEnv(cfg, runner, logger.NewTestLogger())
	env.lookPath = func(string) bool { return true }

	require.NoError(t, env.Setup(context.Background(), true))

	assert.Equal(t, []string{
		"uv python pin 3.8.5",
		"uv sync --frozen",
	}, runner.commands)
}

func TestEnvSetupUnfrozenResolves(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{}
	env := NewEnv(cfg, runner, logger.NewTestLogger())
	env.lookPath = func(string) bool { return true }

	require.NoError(t, env.Setup(context.Background(), false))

	assert.Equal(t, []string{
		"uv python pin 3.8.5",
		"uv sync",
	}, runner.commands)
}

func TestEnvSetupMissingUV(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{}
	env := NewEnv(cfg, runner, logger.NewTestLogger())
	env.lookPath = func(string) bool { return false }

	err := env.Setup(context.Background(), true)
	require.Error(t, err)
	assert.Empty(t, runner.commands)
}

func TestEnvSetupSyncFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{failMatch: "sync"}
	env := NewEnv(cfg, runner, logger.NewTestLogger())
	env.lookPath = func(string) bool { return true }

	err := env.Setup(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync")
}

func TestTorchInstallDetectedWithFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{
		failMatch: "whl/cu121",
		outputs:   map[string]string{"python -c": "2.0.0+cu118\nTrue\n"},
	}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	detector := accel.NewDetectorWithSMI(func(ctx context.Context) (string, error) {
		return "CUDA Version: 12.2", nil
	}, logger.NewTestLogger())

	tag, err := installer.Install(context.Background(), detector, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, accel.BuildCUDA118, tag)

	// cu121 was attempted first, then cu118 succeeded
	installs := commandsContaining(runner.commands, "pip install")
	require.Len(t, installs, 2)
	assert.Contains(t, installs[0], "--index-url https://download.pytorch.org/whl/cu121")
	assert.Contains(t, installs[1], "--index-url https://download.pytorch.org/whl/cu118")
	assert.Contains(t, installs[1], "torch==2.0.0 torchvision==0.15.1 torchaudio==2.0.1")
}

func TestTorchInstallForcedTagNeverFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{failMatch: "whl/cu121"}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	detector := accel.NewDetectorWithSMI(func(ctx context.Context) (string, error) {
		return "CUDA Version: 12.2", nil
	}, logger.NewTestLogger())

	_, err := installer.Install(context.Background(), detector, InstallOptions{Tag: accel.BuildCUDA121})
	require.Error(t, err)

	installs := commandsContaining(runner.commands, "pip install")
	assert.Len(t, installs, 1)
}

func TestTorchInstallReinstallFlag(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{outputs: map[string]string{"python -c": "2.0.0\nFalse\n"}}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	tag, err := installer.Install(context.Background(), nil, InstallOptions{
		Tag:       accel.BuildCPU,
		Reinstall: true,
	})
	require.NoError(t, err)
	assert.Equal(t, accel.BuildCPU, tag)

	installs := commandsContaining(runner.commands, "pip install")
	require.Len(t, installs, 1)
	assert.Contains(t, installs[0], "--reinstall")
}

func TestTorchVerifyCUDARequired(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{outputs: map[string]string{"python -c": "2.0.0+cu121\nFalse\n"}}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	err := installer.Verify(context.Background(), accel.BuildCUDA121)
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ErrorTypePython, e.Type)
}

func TestTorchVerifyCPUExpectsNoAccelerator(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{outputs: map[string]string{"python -c": "2.0.0+cpu\nFalse\n"}}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	assert.NoError(t, installer.Verify(context.Background(), accel.BuildCPU))
}

func TestTorchVerifyCPURejectsCUDABuild(t *testing.T) {
	cfg := config.DefaultConfig()
	// a leftover CUDA build answering the verification snippet
	runner := &fakeRunner{outputs: map[string]string{"python -c": "2.0.0+cu121\nTrue\n"}}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	err := installer.Verify(context.Background(), accel.BuildCPU)
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ErrorTypePython, e.Type)
}

func TestTorchVerifyImportFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	runner := &fakeRunner{outputErr: "python -c"}
	installer := NewTorchInstaller(cfg, runner, logger.NewTestLogger())

	err := installer.Verify(context.Background(), accel.BuildCPU)
	assert.Error(t, err)
}
