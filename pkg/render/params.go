package render

import (
	"math"

	"github.com/matzehuels/fractaliser/pkg/errors"
)

// Parameter bounds, matching the editor's range controls.
const (
	MinSlices     = 10
	MaxSlices     = 100
	MinBlur       = 0.0
	MaxBlur       = 10.0
	MinBrightness = 0
	MaxBrightness = 200
)

// Default parameter values. [DefaultParams] and the editor's reset action
// always restore exactly these.
const (
	DefaultSlices     = 25
	DefaultBlur       = 0.0
	DefaultBrightness = 100
)

// Params are the user-adjustable render parameters.
//
// Params is a value type: editors replace it wholesale on every change, and
// each change triggers a full re-render.
type Params struct {
	SliceCount        int     `json:"slices" toml:"slices"`
	BlurRadius        float64 `json:"blur" toml:"blur"`
	BrightnessPercent int     `json:"brightness" toml:"brightness"`
}

// DefaultParams returns {SliceCount: 25, BlurRadius: 0, BrightnessPercent: 100}.
func DefaultParams() Params {
	return Params{
		SliceCount:        DefaultSlices,
		BlurRadius:        DefaultBlur,
		BrightnessPercent: DefaultBrightness,
	}
}

// Validate checks every parameter against its range.
func (p Params) Validate() error {
	if err := errors.ValidateIntRange("slice count", p.SliceCount, MinSlices, MaxSlices); err != nil {
		return err
	}
	if err := errors.ValidateFloatRange("blur radius", p.BlurRadius, MinBlur, MaxBlur); err != nil {
		return err
	}
	return errors.ValidateIntRange("brightness", p.BrightnessPercent, MinBrightness, MaxBrightness)
}

// Clamp returns p with every parameter forced into its range.
// A NaN blur radius becomes 0.
func (p Params) Clamp() Params {
	p.SliceCount = min(max(p.SliceCount, MinSlices), MaxSlices)
	if math.IsNaN(p.BlurRadius) {
		p.BlurRadius = MinBlur
	}
	p.BlurRadius = math.Min(math.Max(p.BlurRadius, MinBlur), MaxBlur)
	p.BrightnessPercent = min(max(p.BrightnessPercent, MinBrightness), MaxBrightness)
	return p
}

// Multiplier returns the brightness scale factor, BrightnessPercent / 100.
func (p Params) Multiplier() float64 {
	return float64(p.BrightnessPercent) / 100
}

// Viewport describes the container the surface is fitted into.
type Viewport struct {
	Width      float64 `json:"width" toml:"width"`
	Height     float64 `json:"height" toml:"height"`
	PixelRatio float64 `json:"pixel_ratio" toml:"pixel_ratio"`
}

// Ratio returns the device pixel ratio, treating non-positive values as 1.
func (v Viewport) Ratio() float64 {
	if !(v.PixelRatio > 0) || math.IsInf(v.PixelRatio, 0) {
		return 1
	}
	return v.PixelRatio
}

// Or returns v with a zero width or height replaced by the given fallback.
// Callers use it to default the container to the source dimensions.
func (v Viewport) Or(width, height float64) Viewport {
	if v.Width == 0 {
		v.Width = width
	}
	if v.Height == 0 {
		v.Height = height
	}
	return v
}
