// Package source loads the images the renderer slices.
//
// Only JPEG and PNG input is accepted. The format is sniffed from the
// content rather than trusted from a filename or upload header, and JPEG
// EXIF orientation is applied on decode so the pixels match what an image
// viewer shows.
//
// A decoded [Image] is immutable. Editors replace it wholesale when a new
// file is loaded.
package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/fractaliser/pkg/errors"
)

// Format is a supported input encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// MaxBytes bounds how much is read from a single input.
const MaxBytes = 64 << 20

// Image is a decoded source bitmap.
type Image struct {
	// Image holds the decoded, orientation-corrected pixels.
	Image image.Image

	Width  int
	Height int
	Format Format

	// Hash is the SHA-256 hex digest of the encoded input. It identifies the
	// source in cache keys.
	Hash string

	// Size is the encoded input length in bytes.
	Size int64

	// Name is the base filename the image was loaded from, if any.
	Name string
}

// Bounds returns the pixel bounds, or the empty rectangle for a nil Image.
func (img *Image) Bounds() image.Rectangle {
	if img == nil || img.Image == nil {
		return image.Rectangle{}
	}
	return img.Image.Bounds()
}

// Sniff reports the format of encoded image data.
func Sniff(data []byte) (Format, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg":
		return FormatJPEG, nil
	case "image/png":
		return FormatPNG, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported image type %q (JPEG or PNG only)", ct)
	}
}

// Decode reads and decodes a JPEG or PNG image from r.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "read image")
	}
	if len(data) > MaxBytes {
		return nil, errors.New(errors.ErrCodePayloadTooLarge, "image exceeds %d bytes", MaxBytes)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes a JPEG or PNG image held in memory.
func DecodeBytes(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty image")
	}
	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode %s", format)
	}

	sum := sha256.Sum256(data)
	b := img.Bounds()
	return &Image{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		Hash:   hex.EncodeToString(sum[:]),
		Size:   int64(len(data)),
	}, nil
}

// Open decodes the image file at path.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, err
	}
	img.Name = filepath.Base(path)
	return img, nil
}
