// Package sink encodes rendered surfaces for download.
//
// [EncodePNG] turns a [render.Surface] into PNG bytes; [WritePNG] and
// [ExportPNG] stream to a writer or file. The compression level is set with
// [WithCompression]:
//
//	data, err := sink.EncodePNG(surface, sink.WithCompression(png.BestCompression))
//
// An empty surface encodes to zero bytes without error, so callers can treat
// "nothing rendered yet" as an empty download rather than a failure.
//
// [render.Surface]: github.com/matzehuels/fractaliser/pkg/render.Surface
package sink
