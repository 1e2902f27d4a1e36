package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractaliser/pkg/cache"
	"github.com/matzehuels/fractaliser/pkg/observability"
	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/render/sink"
	"github.com/matzehuels/fractaliser/pkg/source"
)

// cacheKeyType labels artifact entries in cache hooks.
const cacheKeyType = "artifact"

// Runner encapsulates pipeline execution with caching.
// The CLI, editor and server all use it to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL is the artifact lifetime; zero means cache.TTLArtifact.
	TTL time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Load decodes the image file at path.
func (r *Runner) Load(ctx context.Context, path string) (*source.Image, error) {
	observability.Pipeline().OnDecodeStart(ctx, path)
	start := time.Now()

	img, err := source.Open(path)
	d := time.Since(start)
	if err != nil {
		observability.Pipeline().OnDecodeComplete(ctx, path, 0, 0, d, err)
		return nil, err
	}
	observability.Pipeline().OnDecodeComplete(ctx, path, img.Width, img.Height, d, nil)

	r.Logger.Debug("decoded source",
		"name", img.Name,
		"format", img.Format,
		"width", img.Width,
		"height", img.Height,
		"duration", d)
	return img, nil
}

// Decode decodes an uploaded image read from rd.
func (r *Runner) Decode(ctx context.Context, rd io.Reader, name string) (*source.Image, error) {
	observability.Pipeline().OnDecodeStart(ctx, name)
	start := time.Now()

	img, err := source.Decode(rd)
	d := time.Since(start)
	if err != nil {
		observability.Pipeline().OnDecodeComplete(ctx, name, 0, 0, d, err)
		return nil, err
	}
	img.Name = name
	observability.Pipeline().OnDecodeComplete(ctx, name, img.Width, img.Height, d, nil)
	return img, nil
}

// Execute runs the complete render → export pipeline with caching.
func (r *Runner) Execute(ctx context.Context, src *source.Image, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	width, height := 0, 0
	hash := ""
	if src != nil {
		width, height, hash = src.Width, src.Height, src.Hash
	}
	vp := opts.ViewportFor(width, height)
	rect, w, h := render.SurfaceSize(width, height, vp)

	result := &Result{
		Width:  w,
		Height: h,
		Fit:    rect,
		Params: opts.Params,
	}
	result.Stats.Slices = opts.Params.SliceCount

	data, hit, err := r.ExportWithCacheInfo(ctx, src, vp, opts, &result.Stats)
	if err != nil {
		return nil, err
	}
	result.PNG = data
	result.Stats.Bytes = len(data)
	result.CacheInfo.RenderHit = hit
	if hash != "" {
		result.CacheInfo.Key = r.Keyer.ArtifactKey(hash, opts.ArtifactKeyOpts(vp))
	}

	opts.Logger.Info("rendered image",
		"size", fmt.Sprintf("%dx%d", w, h),
		"slices", opts.Params.SliceCount,
		"bytes", len(data),
		"cached", hit,
		"duration", result.Stats.RenderTime+result.Stats.EncodeTime)

	return result, nil
}

// ExportWithCacheInfo returns the PNG for src rendered into vp, consulting
// the cache first, and reports whether it was a cache hit. Timings are
// recorded into stats when it is non-nil.
func (r *Runner) ExportWithCacheInfo(ctx context.Context, src *source.Image, vp render.Viewport, opts Options, stats *Stats) ([]byte, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, err
	}
	if stats == nil {
		stats = &Stats{}
	}

	// Sources without a content hash (e.g. built in memory) are not cacheable.
	var cacheKey string
	if src != nil && src.Hash != "" {
		cacheKey = r.Keyer.ArtifactKey(src.Hash, opts.ArtifactKeyOpts(vp))
	}

	// Try cache first (unless refresh requested)
	if cacheKey != "" && !opts.Refresh {
		data, hit, err := r.Cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			observability.Cache().OnCacheError(ctx, cacheKeyType, err)
			opts.Logger.Warn("cache read failed", "err", err)
		case hit:
			observability.Cache().OnCacheHit(ctx, cacheKeyType)
			return data, true, nil
		default:
			observability.Cache().OnCacheMiss(ctx, cacheKeyType)
		}
	}

	renderStart := time.Now()
	surface, err := r.renderInto(ctx, src, vp, opts)
	stats.RenderTime = time.Since(renderStart)
	if err != nil {
		return nil, false, fmt.Errorf("render: %w", err)
	}

	pngOpts, err := opts.PNGOptions()
	if err != nil {
		return nil, false, err
	}
	encodeStart := time.Now()
	data, err := sink.EncodePNG(surface, pngOpts...)
	stats.EncodeTime = time.Since(encodeStart)
	observability.Pipeline().OnExportComplete(ctx, len(data), stats.EncodeTime, err)
	if err != nil {
		return nil, false, fmt.Errorf("export: %w", err)
	}

	// Cache the result; failures only cost a re-render next time.
	if cacheKey != "" && len(data) > 0 {
		ttl := r.TTL
		if ttl == 0 {
			ttl = cache.TTLArtifact
		}
		if err := r.Cache.Set(ctx, cacheKey, data, ttl); err != nil {
			observability.Cache().OnCacheError(ctx, cacheKeyType, err)
			opts.Logger.Warn("cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, cacheKeyType, len(data))
		}
	}

	return data, false, nil
}

// Export is a convenience wrapper that calls ExportWithCacheInfo and discards the cache hit info.
func (r *Runner) Export(ctx context.Context, src *source.Image, opts Options) ([]byte, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	var w, h int
	if src != nil {
		w, h = src.Width, src.Height
	}
	data, _, err := r.ExportWithCacheInfo(ctx, src, opts.ViewportFor(w, h), opts, nil)
	return data, err
}

// Render produces the surface for src without caching or encoding.
// The editor uses it for previews.
func (r *Runner) Render(ctx context.Context, src *source.Image, opts Options) (*render.Surface, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	var w, h int
	if src != nil {
		w, h = src.Width, src.Height
	}
	return r.renderInto(ctx, src, opts.ViewportFor(w, h), opts)
}

func (r *Runner) renderInto(ctx context.Context, src *source.Image, vp render.Viewport, opts Options) (*render.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ropts, err := opts.RenderOptions()
	if err != nil {
		return nil, err
	}

	observability.Pipeline().OnRenderStart(ctx, opts.Params.SliceCount)
	start := time.Now()

	var pixels image.Image
	if src != nil {
		pixels = src.Image
	}
	surface, err := render.Render(pixels, opts.Params, vp, ropts)

	d := time.Since(start)
	if err != nil {
		observability.Pipeline().OnRenderComplete(ctx, 0, 0, d, err)
		return nil, err
	}
	observability.Pipeline().OnRenderComplete(ctx, surface.Width(), surface.Height(), d, nil)

	opts.Logger.Debug("rendered surface",
		"width", surface.Width(),
		"height", surface.Height(),
		"slices", len(surface.Plan.Slices),
		"duration", d)
	return surface, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
