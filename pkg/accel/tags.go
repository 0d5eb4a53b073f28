package accel

import (
	"fmt"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
)

// BuildTag identifies a torch wheel build
type BuildTag string

const (
	// BuildCUDA121 targets CUDA 12.x drivers
	BuildCUDA121 BuildTag = "cu121"
	// BuildCUDA118 targets CUDA 11.x drivers
	BuildCUDA118 BuildTag = "cu118"
	// BuildCPU is the CPU-only build, always installable
	BuildCPU BuildTag = "cpu"
)

// torchIndexBase is the wheel index serving the pinned torch builds.
const torchIndexBase = "https://download.pytorch.org/whl/"

// ParseBuildTag validates a user-supplied build tag
func ParseBuildTag(s string) (BuildTag, error) {
	switch BuildTag(s) {
	case BuildCUDA121, BuildCUDA118, BuildCPU:
		return BuildTag(s), nil
	default:
		return "", errs.New(errs.ErrorTypeAccelerator,
			fmt.Sprintf("unknown build tag %q (expected cu121, cu118 or cpu)", s))
	}
}

// TagForCUDA maps a driver CUDA version to the matching build tag
func TagForCUDA(major, minor int) BuildTag {
	switch {
	case major >= 12:
		return BuildCUDA121
	case major == 11:
		return BuildCUDA118
	default:
		return BuildCPU
	}
}

// FallbackChain returns the tags to try in order, starting with the tag
// itself and degrading toward cpu
func (t BuildTag) FallbackChain() []BuildTag {
	switch t {
	case BuildCUDA121:
		return []BuildTag{BuildCUDA121, BuildCUDA118, BuildCPU}
	case BuildCUDA118:
		return []BuildTag{BuildCUDA118, BuildCPU}
	default:
		return []BuildTag{BuildCPU}
	}
}

// IndexURL returns the wheel index URL for the tag
func (t BuildTag) IndexURL() string {
	return torchIndexBase + string(t)
}

// IsCUDA reports whether the tag needs an NVIDIA driver at runtime
func (t BuildTag) IsCUDA() bool {
	return t == BuildCUDA121 || t == BuildCUDA118
}
