// Package models defines the DynamiCrafter checkpoint variants and their
// bindings to demo resolutions and Hugging Face repositories.
package models

import (
	"fmt"
	"sort"
)

// Resolution identifies the fixed pixel dimensions a variant operates at.
type Resolution struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Height, r.Width)
}

// WeightFile describes a single file belonging to a checkpoint variant.
type WeightFile struct {
	// Name is the filename inside the hub repository and the local variant dir.
	Name string `json:"name"`

	// SHA256 is an optional hex-encoded pin. Empty means "verify by size/etag only".
	SHA256 string `json:"sha256,omitempty"`
}

// Variant describes one pretrained DynamiCrafter checkpoint.
type Variant struct {
	// Name is the local directory name under the checkpoints root,
	// e.g. "dynamicrafter_512_v1".
	Name string `json:"name"`

	// Repo is the Hugging Face repository in "owner/name" form.
	Repo string `json:"repo"`

	// Files are the weight files to download for this variant.
	Files []WeightFile `json:"files"`

	// Resolution the variant was trained at.
	Resolution Resolution `json:"resolution"`

	// ResFlag is the value of the demo --res flag bound to this
	// variant, empty for variants not selectable by flag.
	ResFlag string `json:"res_flag,omitempty"`

	// Interp marks the frame interpolation / looping variant.
	Interp bool `json:"interp,omitempty"`
}

// Variant registry. Directory names follow the upstream checkpoint layout,
// one subdirectory per model variant under the checkpoints root.
var registry = []Variant{
	{
		Name:       "dynamicrafter_256_v1",
		Repo:       "Doubiiu/DynamiCrafter",
		Files:      []WeightFile{{Name: "model.ckpt"}},
		Resolution: Resolution{Height: 256, Width: 256},
		ResFlag:    "256",
	},
	{
		Name:       "dynamicrafter_512_v1",
		Repo:       "Doubiiu/DynamiCrafter_512",
		Files:      []WeightFile{{Name: "model.ckpt"}},
		Resolution: Resolution{Height: 320, Width: 512},
		ResFlag:    "512",
	},
	{
		Name:       "dynamicrafter_1024_v1",
		Repo:       "Doubiiu/DynamiCrafter_1024",
		Files:      []WeightFile{{Name: "model.ckpt"}},
		Resolution: Resolution{Height: 576, Width: 1024},
		ResFlag:    "1024",
	},
	{
		Name:       "dynamicrafter_512_interp_v1",
		Repo:       "Doubiiu/DynamiCrafter_512_Interp",
		Files:      []WeightFile{{Name: "model.ckpt"}},
		Resolution: Resolution{Height: 320, Width: 512},
		Interp:     true,
	},
}

// All returns every known variant, sorted by name.
func All() []Variant {
	out := make([]Variant, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByName looks up a variant by its directory name.
func ByName(name string) (Variant, error) {
	for _, v := range registry {
		if v.Name == name {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown checkpoint variant: %q", name)
}

// ByResFlag looks up the image-to-video variant bound to a --res flag value.
func ByResFlag(res string) (Variant, error) {
	for _, v := range registry {
		if v.ResFlag == res {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown resolution %q (valid: %v)", res, ResFlags())
}

// InterpVariant returns the frame interpolation / looping variant.
func InterpVariant() Variant {
	for _, v := range registry {
		if v.Interp {
			return v
		}
	}
	// The registry always carries the interp variant; reaching this is a
	// programming error.
	panic("models: interp variant missing from registry")
}

// ResFlags returns the accepted --res flag values in ascending order.
func ResFlags() []string {
	var flags []string
	for _, v := range registry {
		if v.ResFlag != "" {
			flags = append(flags, v.ResFlag)
		}
	}
	sort.Slice(flags, func(i, j int) bool { return len(flags[i]) < len(flags[j]) || (len(flags[i]) == len(flags[j]) && flags[i] < flags[j]) })
	return flags
}
