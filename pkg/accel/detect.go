package accel

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/klauspost/cpuid/v2"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// cudaVersionPattern matches the driver version banner of nvidia-smi.
var cudaVersionPattern = regexp.MustCompile(`CUDA Version: (\d+)\.(\d+)`)

// CUDAVersion is the driver-reported CUDA capability
type CUDAVersion struct {
	Major int
	Minor int
}

func (v CUDAVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// GPUDevice describes one graphics device for the doctor report
type GPUDevice struct {
	Vendor  string
	Product string
}

// Detector inspects the host for accelerator capabilities
type Detector struct {
	runSMI   func(ctx context.Context) (string, error)
	querySMI func(ctx context.Context, fields string) (string, error)
	logger   logger.Logger
}

// NewDetector creates a detector using the system nvidia-smi binary
func NewDetector(log logger.Logger) *Detector {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Detector{
		runSMI: func(ctx context.Context) (string, error) {
			out, err := exec.CommandContext(ctx, "nvidia-smi").CombinedOutput()
			return string(out), err
		},
		querySMI: querySMIFields,
		logger:   log,
	}
}

// NewDetectorWithSMI creates a detector with a custom nvidia-smi runner
func NewDetectorWithSMI(run func(ctx context.Context) (string, error), log logger.Logger) *Detector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Detector{runSMI: run, querySMI: querySMIFields, logger: log}
}

// querySMIFields runs the structured nvidia-smi query interface
func querySMIFields(ctx context.Context, fields string) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu="+fields, "--format=csv,noheader,nounits").CombinedOutput()
	return string(out), err
}

// ParseSMIOutput extracts the CUDA version from nvidia-smi output
func ParseSMIOutput(out string) (CUDAVersion, error) {
	m := cudaVersionPattern.FindStringSubmatch(out)
	if m == nil {
		return CUDAVersion{}, errs.New(errs.ErrorTypeAccelerator, "no CUDA version in nvidia-smi output")
	}

	major, err := strconv.Atoi(m[1])
	if err != nil {
		return CUDAVersion{}, errs.New(errs.ErrorTypeAccelerator, "malformed CUDA version")
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return CUDAVersion{}, errs.New(errs.ErrorTypeAccelerator, "malformed CUDA version")
	}

	return CUDAVersion{Major: major, Minor: minor}, nil
}

// DetectCUDA reports the driver CUDA version, or an accelerator error when
// nvidia-smi is missing or unreadable
func (d *Detector) DetectCUDA(ctx context.Context) (CUDAVersion, error) {
	out, err := d.runSMI(ctx)
	if err != nil {
		d.logger.DebugWithFields("nvidia-smi not usable", map[string]interface{}{
			"error": err.Error(),
		})
		return CUDAVersion{}, errs.New(errs.ErrorTypeAccelerator,
			fmt.Sprintf("nvidia-smi failed: %v", err))
	}

	version, err := ParseSMIOutput(out)
	if err != nil {
		return CUDAVersion{}, err
	}

	d.logger.InfoWithFields("detected CUDA driver", map[string]interface{}{
		"cuda_version": version.String(),
	})

	return version, nil
}

// RecommendedTag selects the build tag for this host. Hosts without a usable
// NVIDIA driver get the cpu build.
func (d *Detector) RecommendedTag(ctx context.Context) BuildTag {
	version, err := d.DetectCUDA(ctx)
	if err != nil {
		d.logger.Info("no CUDA driver detected, selecting cpu build")
		return BuildCPU
	}

	tag := TagForCUDA(version.Major, version.Minor)
	d.logger.InfoWithFields("selected torch build", map[string]interface{}{
		"cuda_version": version.String(),
		"build_tag":    string(tag),
	})

	return tag
}

// ParseMemoryTotals parses the output of an nvidia-smi memory query, one
// MiB value per GPU line.
func ParseMemoryTotals(out string) ([]int64, error) {
	var totals []int64
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		mib, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errs.New(errs.ErrorTypeAccelerator,
				fmt.Sprintf("malformed memory query line: %q", line))
		}
		totals = append(totals, mib)
	}

	if len(totals) == 0 {
		return nil, errs.New(errs.ErrorTypeAccelerator, "no GPUs in memory query output")
	}
	return totals, nil
}

// VRAM reports the total memory of each NVIDIA GPU in MiB, queried through
// nvidia-smi so no NVML binding is needed.
func (d *Detector) VRAM(ctx context.Context) ([]int64, error) {
	out, err := d.querySMI(ctx, "memory.total")
	if err != nil {
		return nil, errs.New(errs.ErrorTypeAccelerator,
			fmt.Sprintf("nvidia-smi memory query failed: %v", err))
	}

	totals, err := ParseMemoryTotals(out)
	if err != nil {
		return nil, err
	}

	d.logger.DebugWithFields("queried GPU memory", map[string]interface{}{
		"totals_mib": totals,
	})

	return totals, nil
}

// GPUs enumerates graphics devices via ghw. Missing PCI data is not fatal,
// the doctor report just shows an empty list.
func (d *Detector) GPUs() []GPUDevice {
	info, err := ghw.GPU()
	if err != nil {
		d.logger.DebugWithFields("gpu enumeration failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var devices []GPUDevice
	for _, card := range info.GraphicsCards {
		dev := GPUDevice{}
		if card.DeviceInfo != nil {
			if card.DeviceInfo.Vendor != nil {
				dev.Vendor = card.DeviceInfo.Vendor.Name
			}
			if card.DeviceInfo.Product != nil {
				dev.Product = card.DeviceInfo.Product.Name
			}
		}
		devices = append(devices, dev)
	}

	return devices
}

// CPUSummary describes the host CPU for the doctor report
type CPUSummary struct {
	BrandName string
	Cores     int
	AVX       bool
	AVX2      bool
	AVX512    bool
}

// CPU reports the host processor and the SIMD features torch cares about
func (d *Detector) CPU() CPUSummary {
	return CPUSummary{
		BrandName: cpuid.CPU.BrandName,
		Cores:     cpuid.CPU.LogicalCores,
		AVX:       cpuid.CPU.Supports(cpuid.AVX),
		AVX2:      cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:    cpuid.CPU.Supports(cpuid.AVX512F),
	}
}
