package source

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/fractaliser/pkg/errors"
)

func encode(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	tests := []struct {
		format string
		want   Format
	}{
		{"png", FormatPNG},
		{"jpeg", FormatJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			data := encode(t, tt.format, 30, 20)
			img, err := Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if img.Format != tt.want {
				t.Errorf("Format = %q, want %q", img.Format, tt.want)
			}
			if img.Width != 30 || img.Height != 20 {
				t.Errorf("size = %dx%d, want 30x20", img.Width, img.Height)
			}
			if img.Size != int64(len(data)) {
				t.Errorf("Size = %d, want %d", img.Size, len(data))
			}
			if len(img.Hash) != 64 {
				t.Errorf("Hash = %q, want 64 hex chars", img.Hash)
			}
			r, _, _, _ := img.Image.At(5, 5).RGBA()
			if r>>8 < 240 {
				t.Errorf("red channel = %d, want ~255", r>>8)
			}
		})
	}
}

func TestDecodeHashIsContentAddressed(t *testing.T) {
	a, err := DecodeBytes(encode(t, "png", 8, 8))
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecodeBytes(encode(t, "png", 8, 8))
	if err != nil {
		t.Fatal(err)
	}
	c, err := DecodeBytes(encode(t, "png", 9, 8))
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash {
		t.Error("identical inputs hash differently")
	}
	if a.Hash == c.Hash {
		t.Error("different inputs share a hash")
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		code errors.Code
	}{
		{"empty", nil, errors.ErrCodeInvalidInput},
		{"gif", nil, errors.ErrCodeInvalidFormat},
		{"text", []byte("hello, not an image"), errors.ErrCodeInvalidFormat},
		{"truncated png", nil, errors.ErrCodeDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			switch tt.name {
			case "gif":
				data = encode(t, "gif", 4, 4)
			case "truncated png":
				data = encode(t, "png", 16, 16)[:40]
			}
			_, err := DecodeBytes(data)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %v", err, tt.code)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, encode(t, "png", 12, 6), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if img.Name != "photo.png" {
		t.Errorf("Name = %q, want photo.png", img.Name)
	}

	_, err = Open(filepath.Join(dir, "missing.png"))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("Open(missing) error = %v, want %v", err, errors.ErrCodeFileNotFound)
	}
}

func TestBoundsNil(t *testing.T) {
	var img *Image
	if !img.Bounds().Empty() {
		t.Error("nil image has non-empty bounds")
	}
}

func TestLoadAsync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, encode(t, "jpeg", 10, 10), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := LoadAsync(ctx, path)
	select {
	case <-f.Done():
	case <-ctx.Done():
		t.Fatal("load did not complete")
	}
	img, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if img.Format != FormatJPEG {
		t.Errorf("Format = %q", img.Format)
	}

	// A resolved future keeps returning the same result.
	again, _ := f.Wait(ctx)
	if again != img {
		t.Error("second Wait returned a different image")
	}
}

func TestLoadAsyncMissing(t *testing.T) {
	f := LoadAsync(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	_, err := f.Wait(context.Background())
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("error = %v, want %v", err, errors.ErrCodeFileNotFound)
	}
}

func TestLoadAsyncCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := LoadAsync(ctx, filepath.Join(t.TempDir(), "x.png"))
	<-f.Done()
	if _, err := f.Wait(context.Background()); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestWaitContextDone(t *testing.T) {
	f := &Future{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResolved(t *testing.T) {
	img := &Image{Width: 1}
	got, err := Resolved(img, nil).Wait(context.Background())
	if got != img || err != nil {
		t.Errorf("Resolved().Wait() = %v, %v", got, err)
	}
}
