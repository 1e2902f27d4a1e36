package sink

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/fractaliser/pkg/errors"
	"github.com/matzehuels/fractaliser/pkg/render"
)

func surface(w, h int) *render.Surface {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: uint8(100 + x%100)})
		}
	}
	return &render.Surface{Image: img}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	s := surface(40, 30)
	data, err := EncodePNG(s)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("missing PNG signature")
	}

	got, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Bounds() != s.Image.Bounds() {
		t.Fatalf("bounds = %v, want %v", got.Bounds(), s.Image.Bounds())
	}
	for _, p := range []image.Point{{0, 0}, {13, 7}, {39, 29}} {
		want := s.Image.NRGBAAt(p.X, p.Y)
		if c := color.NRGBAModel.Convert(got.At(p.X, p.Y)).(color.NRGBA); c != want {
			t.Errorf("pixel %v = %v, want %v", p, c, want)
		}
	}
}

func TestEncodePNGEmpty(t *testing.T) {
	tests := []struct {
		name string
		s    *render.Surface
	}{
		{"nil surface", nil},
		{"nil image", &render.Surface{}},
		{"zero size", &render.Surface{Image: image.NewNRGBA(image.Rect(0, 0, 0, 0))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePNG(tt.s)
			if err != nil {
				t.Fatalf("EncodePNG: %v", err)
			}
			if len(data) != 0 {
				t.Errorf("len = %d, want 0", len(data))
			}
		})
	}
}

func TestEncodePNGCompression(t *testing.T) {
	s := surface(64, 64)
	none, err := EncodePNG(s, WithCompression(png.NoCompression))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	best, err := EncodePNG(s, WithCompression(png.BestCompression))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if len(best) >= len(none) {
		t.Errorf("best (%d bytes) not smaller than none (%d bytes)", len(best), len(none))
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want png.CompressionLevel
		ok   bool
	}{
		{"", png.DefaultCompression, true},
		{"default", png.DefaultCompression, true},
		{"none", png.NoCompression, true},
		{"Speed", png.BestSpeed, true},
		{"best", png.BestCompression, true},
		{"max", png.DefaultCompression, false},
	}
	for _, tt := range tests {
		got, ok := ParseCompression(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExportPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)

	if err := ExportPNG(path, surface(8, 8)); err != nil {
		t.Fatalf("ExportPNG: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("exported file is not a PNG: %v", err)
	}

	if err := ExportPNG(filepath.Join(dir, "out.jpg"), surface(8, 8)); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("ExportPNG(.jpg) error = %v, want %v", err, errors.ErrCodeInvalidPath)
	}
}
