// Package pkg provides the core libraries behind the fractaliser effect.
//
// # Overview
//
// Fractaliser cuts an image into vertical slices, redraws each slice one band
// to the right of where it was sampled so the picture appears to shear
// leftward, then blurs and brightens the result. The pkg directory is
// organized as:
//
//  1. [source] - Decoding JPEG and PNG input (sniffing, orientation, hashing)
//  2. [render] - The effect itself: fit, slice/shift, blur, brightness, PNG
//  3. [pipeline] - Orchestration (decode → render → encode) with caching
//  4. [cache] - Artifact storage backends (file, memory, Redis)
//  5. [session] - Editor sessions for the HTTP API
//  6. [server] - The HTTP API
//  7. [config] - TOML configuration
//
// # Data Flow
//
//	JPEG / PNG bytes
//	       ↓
//	  [source] package (decode, auto-orient, SHA-256)
//	       ↓
//	  [render] package (contain fit → shards → blur → brightness)
//	       ↓
//	  [render/sink] package (PNG)
//
// [pipeline.Runner] drives these stages and consults [cache] first, so an
// unchanged image rendered with the same parameters is served from storage.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	img, err := runner.Load(ctx, "photo.jpg")
//	if err != nil {
//	    return err
//	}
//	res, err := runner.Execute(ctx, img, pipeline.Options{
//	    Params:   render.Params{SliceCount: 40, BlurRadius: 1.5, BrightnessPercent: 110},
//	    Viewport: render.Viewport{Width: 1280, Height: 720, PixelRatio: 2},
//	})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("photo-fractalised.png", res.PNG, 0o644)
//
// [source]: github.com/matzehuels/fractaliser/pkg/source
// [render]: github.com/matzehuels/fractaliser/pkg/render
// [render/sink]: github.com/matzehuels/fractaliser/pkg/render/sink
// [pipeline]: github.com/matzehuels/fractaliser/pkg/pipeline
// [pipeline.Runner]: github.com/matzehuels/fractaliser/pkg/pipeline#Runner
// [cache]: github.com/matzehuels/fractaliser/pkg/cache
// [session]: github.com/matzehuels/fractaliser/pkg/session
// [server]: github.com/matzehuels/fractaliser/pkg/server
// [config]: github.com/matzehuels/fractaliser/pkg/config
package pkg
