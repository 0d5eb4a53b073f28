package python

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sha5b/DynamiCrafter/pkg/accel"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// vcRedistURL is the Visual C++ runtime installer some torch wheels need on
// Windows.
const vcRedistURL = "https://aka.ms/vs/17/release/vc_redist.x64.exe"

// verifySnippet imports torch in the synced interpreter and prints whether
// CUDA is usable.
const verifySnippet = `import torch; print(torch.__version__); print(torch.cuda.is_available())`

// TorchInstaller installs the pinned torch wheels into the uv environment
type TorchInstaller struct {
	runner Runner
	uv     string
	torch  config.TorchConfig
	logger logger.Logger
}

// InstallOptions controls a torch install run
type InstallOptions struct {
	// Tag forces a build. Empty means detect from the host driver.
	Tag accel.BuildTag
	// Reinstall replaces an existing install even when versions match
	Reinstall bool
	// VCRedist additionally installs the Visual C++ runtime on Windows
	VCRedist bool
}

// NewTorchInstaller creates a torch installer from configuration
func NewTorchInstaller(cfg *config.Config, runner Runner, log logger.Logger) *TorchInstaller {
	if log == nil {
		log = logger.GetLogger()
	}
	if runner == nil {
		runner = NewRunner(log)
	}

	return &TorchInstaller{
		runner: runner,
		uv:     cfg.Python.UVBinary,
		torch:  cfg.Torch,
		logger: log,
	}
}

// indexURL builds the wheel index URL for a tag
func (t *TorchInstaller) indexURL(tag accel.BuildTag) string {
	return strings.TrimSuffix(t.torch.IndexBaseURL, "/") + "/" + string(tag)
}

// Install installs the pinned torch, torchvision and torchaudio wheels for a
// tag. When the tag was detected rather than forced, a failed CUDA install
// degrades along the fallback chain until a build installs, ending at cpu.
// A forced tag never falls back.
func (t *TorchInstaller) Install(ctx context.Context, detector *accel.Detector, opts InstallOptions) (accel.BuildTag, error) {
	forced := opts.Tag != ""

	tag := opts.Tag
	if !forced {
		tag = detector.RecommendedTag(ctx)
	}

	chain := tag.FallbackChain()
	if forced {
		chain = []accel.BuildTag{tag}
	}

	var lastErr error
	for _, candidate := range chain {
		t.logger.InfoWithFields("installing torch wheels", map[string]interface{}{
			"build_tag": string(candidate),
			"torch":     t.torch.TorchVersion,
			"reinstall": opts.Reinstall,
		})

		if err := t.installTag(ctx, candidate, opts.Reinstall); err != nil {
			lastErr = err
			t.logger.WarnWithFields("torch install failed", map[string]interface{}{
				"build_tag": string(candidate),
				"error":     err.Error(),
			})
			continue
		}

		if err := t.Verify(ctx, candidate); err != nil {
			lastErr = err
			t.logger.WarnWithFields("torch verification failed", map[string]interface{}{
				"build_tag": string(candidate),
				"error":     err.Error(),
			})
			continue
		}

		if opts.VCRedist {
			if err := t.installVCRedist(ctx); err != nil {
				// the wheels are installed, the runtime is best effort
				t.logger.WithError(err).Warn("vc_redist install failed")
			}
		}

		return candidate, nil
	}

	if lastErr == nil {
		lastErr = errs.New(errs.ErrorTypePython, "no installable torch build")
	}
	return "", lastErr
}

// installTag runs the pip install for one build tag
func (t *TorchInstaller) installTag(ctx context.Context, tag accel.BuildTag, reinstall bool) error {
	args := []string{"pip", "install"}
	if reinstall {
		args = append(args, "--reinstall")
	}
	args = append(args,
		"torch=="+t.torch.TorchVersion,
		"torchvision=="+t.torch.TorchvisionVersion,
		"torchaudio=="+t.torch.TorchaudioVersion,
		"--index-url", t.indexURL(tag),
	)

	return t.runner.Run(ctx, t.uv, args...)
}

// Verify imports torch in the synced interpreter and checks the availability
// report against the tag. CUDA builds require torch.cuda.is_available() to
// report true, the cpu build requires it to report false.
func (t *TorchInstaller) Verify(ctx context.Context, tag accel.BuildTag) error {
	out, err := t.runner.Output(ctx, t.uv, "run", "python", "-c", verifySnippet)
	if err != nil {
		return errs.New(errs.ErrorTypePython, fmt.Sprintf("torch import failed: %v", err))
	}

	cudaAvailable := strings.Contains(out, "True")

	if tag.IsCUDA() && !cudaAvailable {
		return errs.New(errs.ErrorTypePython,
			fmt.Sprintf("%s build installed but CUDA is not available", tag))
	}
	if !tag.IsCUDA() && cudaAvailable {
		return errs.New(errs.ErrorTypePython,
			fmt.Sprintf("%s build requested but the installed torch reports CUDA available", tag))
	}

	t.logger.InfoWithFields("torch verified", map[string]interface{}{
		"build_tag": string(tag),
		"output":    strings.TrimSpace(out),
	})

	return nil
}

// installVCRedist downloads and runs the Visual C++ runtime installer. It is
// a no-op outside Windows.
func (t *TorchInstaller) installVCRedist(ctx context.Context) error {
	if runtime.GOOS != "windows" {
		t.logger.Debug("vc_redist requested on non-windows host, skipping")
		return nil
	}

	path := filepath.Join(os.TempDir(), "vc_redist.x64.exe")
	if err := downloadFile(ctx, vcRedistURL, path); err != nil {
		return err
	}
	defer os.Remove(path)

	return t.runner.Run(ctx, path, "/install", "/quiet", "/norestart")
}

// downloadFile fetches a URL to a local path
func downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("download failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.FromStatusCode(resp.StatusCode, "GET "+url)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
