// Package render turns a source image into a "fractalised" surface.
//
// # Overview
//
// [Render] is a pure function of the source image, the user [Params], the
// [Viewport] the surface is fitted into, and the rendering [Options]. Every
// call allocates a new surface; nothing is updated incrementally, so
// rendering the same inputs twice produces identical pixels.
//
// The pipeline runs four stages in order:
//
//  1. Fit: the source is contain-fitted into the viewport ([fit]) and the
//     surface is sized to the fit rectangle times the device pixel ratio.
//  2. Shards: the source is cut into vertical slices that are drawn into
//     equal bands with a progressive leftward shift ([shard]).
//  3. Blur: the whole surface is blurred with the configured radius ([adjust]).
//  4. Brightness: R, G and B are scaled by brightness/100 ([adjust]).
//
// The [sink] subpackage encodes a surface as PNG for download.
//
//	img, _ := source.Open("photo.jpg")
//	s, err := render.Render(img.Image, render.DefaultParams(),
//	    render.Viewport{Width: 1280, Height: 720, PixelRatio: 2}, render.Options{})
//	data, err := sink.EncodePNG(s)
//
// [fit]: github.com/matzehuels/fractaliser/pkg/render/fit
// [shard]: github.com/matzehuels/fractaliser/pkg/render/shard
// [adjust]: github.com/matzehuels/fractaliser/pkg/render/adjust
// [sink]: github.com/matzehuels/fractaliser/pkg/render/sink
package render
