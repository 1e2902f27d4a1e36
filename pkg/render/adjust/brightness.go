// Package adjust implements the whole-surface pixel adjustments applied after
// the shard draw: blur and brightness.
package adjust

import (
	"image"
	"math"
	"strings"
)

// Overflow selects what happens to a brightened channel that leaves [0, 255].
type Overflow int

const (
	// Clamp saturates at 0 and 255 and rounds half to even. This is how a
	// clamped byte buffer stores an out-of-range write.
	Clamp Overflow = iota
	// Wrap truncates toward zero and keeps the low eight bits, the way a plain
	// byte buffer stores an out-of-range write. Bright areas roll over into
	// dark ones.
	Wrap
)

// Overflow names accepted by [ParseOverflow].
const (
	OverflowClamp = "clamp"
	OverflowWrap  = "wrap"
)

// String returns the configuration name of the mode.
func (o Overflow) String() string {
	if o == Wrap {
		return OverflowWrap
	}
	return OverflowClamp
}

// ParseOverflow maps a name to an Overflow mode. The empty string is Clamp.
func ParseOverflow(name string) (Overflow, bool) {
	switch strings.ToLower(name) {
	case OverflowClamp, "":
		return Clamp, true
	case OverflowWrap:
		return Wrap, true
	default:
		return Clamp, false
	}
}

// Brightness multiplies the R, G and B channels of every pixel by multiplier,
// leaving alpha untouched. Channels are straight (non-premultiplied) values.
//
// Results outside [0, 255] are stored according to mode; no other
// normalisation is applied. A multiplier of 1 leaves the image unchanged.
func Brightness(img *image.NRGBA, multiplier float64, mode Overflow) {
	if img == nil {
		return
	}
	if multiplier == 1 {
		return
	}

	store := clampByte
	if mode == Wrap {
		store = wrapByte
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			row[i] = store(float64(row[i]) * multiplier)
			row[i+1] = store(float64(row[i+1]) * multiplier)
			row[i+2] = store(float64(row[i+2]) * multiplier)
		}
	}
}

// clampByte converts v the way a clamped byte array does: NaN becomes 0,
// values saturate to [0, 255], and ties round to even.
func clampByte(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}

// wrapByte converts v modulo 256 after truncating toward zero.
// Non-finite values become 0.
func wrapByte(v float64) uint8 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return uint8(int64(math.Trunc(v)) & 0xff)
}
