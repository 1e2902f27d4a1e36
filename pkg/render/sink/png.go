package sink

import (
	"bytes"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/render"
)

// DefaultFilename is the suggested name for a downloaded surface.
const DefaultFilename = "image-fractalised.png"

// ContentType is the MIME type of encoded surfaces.
const ContentType = "image/png"

// Compression level names accepted by [ParseCompression].
const (
	CompressionDefault = "default"
	CompressionNone    = "none"
	CompressionSpeed   = "speed"
	CompressionBest    = "best"
)

// ParseCompression maps a level name to a png.CompressionLevel.
// The empty string selects the default level.
func ParseCompression(name string) (png.CompressionLevel, bool) {
	switch strings.ToLower(name) {
	case CompressionDefault, "":
		return png.DefaultCompression, true
	case CompressionNone:
		return png.NoCompression, true
	case CompressionSpeed:
		return png.BestSpeed, true
	case CompressionBest:
		return png.BestCompression, true
	default:
		return png.DefaultCompression, false
	}
}

// PNGOption configures PNG encoding.
type PNGOption func(*pngEncoder)

type pngEncoder struct {
	level png.CompressionLevel
}

// WithCompression sets the zlib compression level.
func WithCompression(level png.CompressionLevel) PNGOption {
	return func(e *pngEncoder) { e.level = level }
}

// WritePNG encodes s as PNG to w. An empty surface writes nothing.
func WritePNG(w io.Writer, s *render.Surface, opts ...PNGOption) error {
	if s.Empty() {
		return nil
	}
	e := pngEncoder{level: png.DefaultCompression}
	for _, opt := range opts {
		opt(&e)
	}
	if err := imaging.Encode(w, s.Image, imaging.PNG, imaging.PNGCompressionLevel(e.level)); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "encode png")
	}
	return nil
}

// EncodePNG returns s encoded as PNG. An empty surface yields a nil slice.
func EncodePNG(s *render.Surface, opts ...PNGOption) ([]byte, error) {
	if s.Empty() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := WritePNG(&buf, s, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportPNG writes s as PNG to the file at path, replacing any existing file.
func ExportPNG(path string, s *render.Surface, opts ...PNGOption) error {
	if err := errors.ValidateOutputPath(path); err != nil {
		return err
	}
	data, err := EncodePNG(s, opts...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	return nil
}
