// Package pipeline provides the core render pipeline for fractaliser.
//
// This package wraps the pure [render.Render] with the parts every entry
// point needs: option defaults and validation, PNG encoding, an artifact
// cache, timing statistics, structured logging and observability hooks. The
// CLI, the interactive editor and the HTTP server all go through a [Runner]
// so they behave the same way.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Load: decode a JPEG or PNG source (see package source)
//  2. Render: fit, slice, blur and brighten into a surface
//  3. Export: encode the surface as PNG
//
// Render and Export are cached together under a key derived from the source
// content hash and every option that affects the output bytes.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	src, err := runner.Load(ctx, "photo.jpg")
//	result, err := runner.Execute(ctx, src, pipeline.Options{
//	    Params:   render.Params{SliceCount: 40, BlurRadius: 1, BrightnessPercent: 120},
//	    Viewport: render.Viewport{Width: 1280, Height: 720, PixelRatio: 2},
//	})
//	os.WriteFile(sink.DefaultFilename, result.PNG, 0o644)
//
// The editor preview skips the cache and encoding:
//
//	surface, err := runner.Render(ctx, src, opts)
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractaliser/pkg/cache"
	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/render/adjust"
	"github.com/matzehuels/fractaliser/pkg/render/fit"
	"github.com/matzehuels/fractaliser/pkg/render/shard"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, Editor, and Server
// =============================================================================

const (
	// DefaultInterpolation is the default slice sampling filter.
	DefaultInterpolation = shard.DefaultInterpolation

	// DefaultBlurKernel is the default blur routine.
	DefaultBlurKernel = adjust.KernelBox

	// DefaultOverflow is the default brightness overflow mode.
	DefaultOverflow = adjust.OverflowClamp

	// DefaultCompression is the default PNG compression level.
	DefaultCompression = sink.CompressionDefault
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one render.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Params are the user-adjustable parameters. The zero value selects
	// render.DefaultParams.
	Params render.Params `json:"params"`

	// Viewport is the container the image is fitted into. A zero width or
	// height defaults to the source dimensions, a zero pixel ratio to 1.
	Viewport render.Viewport `json:"viewport"`

	Interpolation string `json:"interpolation,omitempty"`
	BlurKernel    string `json:"blur_kernel,omitempty"`
	Overflow      string `json:"overflow,omitempty"`
	Compression   string `json:"compression,omitempty"`

	// Refresh bypasses cached artifacts. The fresh result is still stored.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// PNG is the encoded surface. It is empty when nothing was drawn.
	PNG []byte

	// Width and Height are the surface size in device pixels.
	Width, Height int

	// Fit is the contain-fit rectangle in viewport pixels.
	Fit fit.Rect

	// Params are the parameters that were rendered.
	Params render.Params

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks whether the artifact came from cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Slices     int
	Bytes      int
	RenderTime time.Duration
	EncodeTime time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	Key       string
	RenderHit bool // Whether the PNG came from cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateInterpolation checks that an interpolation name is valid.
func ValidateInterpolation(name string) error {
	if _, ok := shard.ParseInterpolation(name); !ok {
		return errors.New(errors.ErrCodeInvalidParameter, "invalid interpolation: %q (must be one of: nearest, bilinear, catmullrom)", name)
	}
	return nil
}

// ValidateBlurKernel checks that a blur kernel name is valid.
func ValidateBlurKernel(name string) error {
	if _, ok := adjust.ParseKernel(name); !ok {
		return errors.New(errors.ErrCodeInvalidParameter, "invalid blur kernel: %q (must be one of: box, gaussian)", name)
	}
	return nil
}

// ValidateOverflow checks that an overflow mode name is valid.
func ValidateOverflow(name string) error {
	if _, ok := adjust.ParseOverflow(name); !ok {
		return errors.New(errors.ErrCodeInvalidParameter, "invalid overflow: %q (must be one of: clamp, wrap)", name)
	}
	return nil
}

// ValidateCompression checks that a compression level name is valid.
func ValidateCompression(name string) error {
	if _, ok := sink.ParseCompression(name); !ok {
		return errors.New(errors.ErrCodeInvalidParameter, "invalid compression: %q (must be one of: default, none, speed, best)", name)
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks every field and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Params == (render.Params{}) {
		o.Params = render.DefaultParams()
	}
	if err := o.Params.Validate(); err != nil {
		return err
	}
	if o.Viewport.Width < 0 || o.Viewport.Height < 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "viewport %gx%g must not be negative", o.Viewport.Width, o.Viewport.Height)
	}
	if o.Viewport.PixelRatio <= 0 {
		o.Viewport.PixelRatio = 1
	}

	if o.Interpolation == "" {
		o.Interpolation = DefaultInterpolation
	}
	if o.BlurKernel == "" {
		o.BlurKernel = DefaultBlurKernel
	}
	if o.Overflow == "" {
		o.Overflow = DefaultOverflow
	}
	if o.Compression == "" {
		o.Compression = DefaultCompression
	}
	for _, check := range []func() error{
		func() error { return ValidateInterpolation(o.Interpolation) },
		func() error { return ValidateBlurKernel(o.BlurKernel) },
		func() error { return ValidateOverflow(o.Overflow) },
		func() error { return ValidateCompression(o.Compression) },
	} {
		if err := check(); err != nil {
			return err
		}
	}

	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// RenderOptions resolves the named render options.
func (o *Options) RenderOptions() (render.Options, error) {
	interp, ok := shard.ParseInterpolation(o.Interpolation)
	if !ok {
		return render.Options{}, ValidateInterpolation(o.Interpolation)
	}
	kernel, ok := adjust.ParseKernel(o.BlurKernel)
	if !ok {
		return render.Options{}, ValidateBlurKernel(o.BlurKernel)
	}
	overflow, ok := adjust.ParseOverflow(o.Overflow)
	if !ok {
		return render.Options{}, ValidateOverflow(o.Overflow)
	}
	return render.Options{Interpolator: interp, BlurKernel: kernel, Overflow: overflow}, nil
}

// PNGOptions resolves the encoder options.
func (o *Options) PNGOptions() ([]sink.PNGOption, error) {
	level, ok := sink.ParseCompression(o.Compression)
	if !ok {
		return nil, ValidateCompression(o.Compression)
	}
	return []sink.PNGOption{sink.WithCompression(level)}, nil
}

// ViewportFor returns the viewport with unset dimensions defaulted to the
// source size.
func (o *Options) ViewportFor(width, height int) render.Viewport {
	return o.Viewport.Or(float64(width), float64(height))
}

// ArtifactKeyOpts returns cache key options for a render into vp.
func (o *Options) ArtifactKeyOpts(vp render.Viewport) cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		Slices:        o.Params.SliceCount,
		Blur:          o.Params.BlurRadius,
		Brightness:    o.Params.BrightnessPercent,
		Width:         vp.Width,
		Height:        vp.Height,
		PixelRatio:    vp.Ratio(),
		Interpolation: o.Interpolation,
		Kernel:        o.BlurKernel,
		Overflow:      o.Overflow,
		Compression:   o.Compression,
	}
}

// String summarises the options for log lines.
func (o *Options) String() string {
	return fmt.Sprintf("slices=%d blur=%g brightness=%d%%", o.Params.SliceCount, o.Params.BlurRadius, o.Params.BrightnessPercent)
}
