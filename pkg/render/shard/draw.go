package shard

import (
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// Interpolation names accepted by [ParseInterpolation].
const (
	InterpNearest    = "nearest"
	InterpBilinear   = "bilinear"
	InterpCatmullRom = "catmullrom"
)

// DefaultInterpolation is used when no interpolation is configured.
const DefaultInterpolation = InterpBilinear

// ValidInterpolations is the set of supported interpolation names.
var ValidInterpolations = map[string]bool{
	InterpNearest:    true,
	InterpBilinear:   true,
	InterpCatmullRom: true,
}

// ParseInterpolation maps an interpolation name to a scaler.
// Matching is case-insensitive; the empty string selects the default.
func ParseInterpolation(name string) (draw.Interpolator, bool) {
	switch strings.ToLower(name) {
	case InterpNearest:
		return draw.NearestNeighbor, true
	case InterpBilinear, "":
		return draw.ApproxBiLinear, true
	case InterpCatmullRom:
		return draw.CatmullRom, true
	default:
		return nil, false
	}
}

// Draw executes the plan onto dst, scaling each source window from src into
// its band over the full surface height.
//
// Windows reaching outside src are passed through unchanged: pixels beyond
// the image bounds read as transparent, so partially shifted bands show a
// transparent edge and bands shifted wholly off the image stay empty. Draws
// composite with source-over onto whatever dst already holds.
//
// A nil interpolator selects the default.
func Draw(dst draw.Image, src image.Image, p Plan, interp draw.Interpolator) {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	db := dst.Bounds()
	sb := src.Bounds()
	if db.Empty() || sb.Empty() {
		return
	}

	for _, s := range p.Slices {
		dr := image.Rect(db.Min.X+s.DstMin, db.Min.Y, db.Min.X+s.DstMax, db.Max.Y)
		if dr.Empty() {
			continue
		}

		x0, x1 := s.SrcMin, s.SrcMax
		if x1 <= x0 {
			// A sub-pixel window still samples one column.
			x1 = x0 + 1
		}
		sr := image.Rect(sb.Min.X+x0, sb.Min.Y, sb.Min.X+x1, sb.Max.Y)

		interp.Scale(dst, dr, src, sr, draw.Over, nil)
	}
}
