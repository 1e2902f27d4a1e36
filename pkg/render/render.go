package render

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/render/adjust"
	"github.com/matzehuels/fractaliser/pkg/render/fit"
	"github.com/matzehuels/fractaliser/pkg/render/shard"
)

// MaxSurfaceDimension bounds either side of the surface in device pixels.
const MaxSurfaceDimension = 16384

// Options are the rendering knobs that are not user parameters.
// The zero value renders with bilinear sampling, a box blur and clamped brightness.
type Options struct {
	Interpolator draw.Interpolator
	BlurKernel   adjust.Kernel
	Overflow     adjust.Overflow
}

// Surface is the pixel buffer produced by a render.
type Surface struct {
	// Image holds straight-alpha pixels. It is 0×0 when nothing was drawn.
	Image *image.NRGBA

	// Fit is the contain-fit rectangle in viewport (CSS) pixels.
	Fit fit.Rect

	// Plan is the slice plan that was drawn.
	Plan shard.Plan
}

// Width returns the surface width in device pixels.
func (s *Surface) Width() int {
	if s == nil || s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dx()
}

// Height returns the surface height in device pixels.
func (s *Surface) Height() int {
	if s == nil || s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dy()
}

// Empty reports whether the surface has no pixels.
func (s *Surface) Empty() bool {
	return s.Width() == 0 || s.Height() == 0
}

// SurfaceSize returns the contain-fit rectangle of a width×height source in
// vp and the device-pixel surface size trunc(fit × pixel ratio). It is what
// [Render] allocates, computed without rendering.
func SurfaceSize(width, height int, vp Viewport) (rect fit.Rect, w, h int) {
	rect = fit.Compute(fit.Contain,
		fit.Size{Width: vp.Width, Height: vp.Height},
		fit.Size{Width: float64(width), Height: float64(height)},
	)
	if rect.Empty() {
		return rect, 0, 0
	}
	dev := rect.Scale(vp.Ratio())
	return rect, int(dev.Width), int(dev.Height)
}

// Render runs the full pipeline and returns a freshly allocated surface:
//
//  1. contain-fit src into the viewport and size the surface to
//     trunc(fit × pixel ratio)
//  2. draw the shard plan (see package shard)
//  3. blur with p.BlurRadius
//  4. scale brightness by p.BrightnessPercent / 100
//
// The result depends only on the arguments. A nil or empty src, or an empty
// viewport, yields an empty surface and no error. Invalid parameters are
// rejected with [errors.ErrCodeInvalidParameter].
//
// Render does not retain src and is safe for concurrent use.
func Render(src image.Image, p Params, vp Viewport, opts Options) (*Surface, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var sb image.Rectangle
	if src != nil {
		sb = src.Bounds()
	}

	rect, w, h := SurfaceSize(sb.Dx(), sb.Dy(), vp)
	if w > MaxSurfaceDimension || h > MaxSurfaceDimension {
		return nil, errors.New(errors.ErrCodeInvalidParameter,
			"surface %dx%d exceeds %d pixels per side", w, h, MaxSurfaceDimension)
	}

	s := &Surface{
		Image: image.NewNRGBA(image.Rect(0, 0, w, h)),
		Fit:   rect,
		Plan:  shard.NewPlan(p.SliceCount, float64(sb.Dx()), float64(w)),
	}
	if s.Empty() {
		return s, nil
	}

	shard.Draw(s.Image, src, s.Plan, opts.Interpolator)
	adjust.Blur(s.Image, p.BlurRadius, opts.BlurKernel)
	adjust.Brightness(s.Image, p.Multiplier(), opts.Overflow)
	return s, nil
}
