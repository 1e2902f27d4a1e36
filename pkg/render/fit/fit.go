// Package fit computes object-fit rectangles for placing content in a container.
//
// The renderer sizes its surface with [Compute] in [Contain] mode: the source
// image is scaled uniformly so it fits entirely inside the viewport and is
// centred with the returned offsets. [Cover] is the complementary mode that
// fills the container and overflows on one axis.
package fit

import "math"

// Mode selects how content is scaled into its container.
type Mode int

const (
	// Contain scales content to fit entirely within the container.
	Contain Mode = iota
	// Cover scales content to fill the container, cropping one axis.
	Cover
)

// String returns the CSS object-fit name of the mode.
func (m Mode) String() string {
	if m == Cover {
		return "cover"
	}
	return "contain"
}

// Size is a width/height pair in pixels. Fractional values are allowed.
type Size struct {
	Width  float64
	Height float64
}

// valid reports whether both dimensions are finite and positive.
func (s Size) valid() bool {
	return s.Width > 0 && s.Height > 0 &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Rect is the placement of the scaled content relative to the container origin.
type Rect struct {
	Width  float64
	Height float64
	X      float64
	Y      float64
}

// Empty reports whether the rectangle has no drawable area.
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// Scale returns the rectangle with every component multiplied by f.
// It is used to go from CSS pixels to device pixels.
func (r Rect) Scale(f float64) Rect {
	return Rect{Width: r.Width * f, Height: r.Height * f, X: r.X * f, Y: r.Y * f}
}

// Compute returns the placement of content inside container for the given mode.
//
// Aspect ratio is preserved exactly: the dimension that limits the fit takes the
// container's value and the other is derived from the content ratio. Offsets
// centre the result: X = (container.Width - Width) / 2, Y likewise.
//
// Zero, negative, or non-finite dimensions on either side produce the zero
// Rect, which callers treat as "nothing to draw".
func Compute(mode Mode, container, content Size) Rect {
	if !container.valid() || !content.valid() {
		return Rect{}
	}

	contentRatio := content.Width / content.Height
	containerRatio := container.Width / container.Height

	widthBound := contentRatio > containerRatio
	if mode == Cover {
		widthBound = contentRatio < containerRatio
	}

	var r Rect
	if widthBound {
		r.Width = container.Width
		r.Height = r.Width / contentRatio
	} else {
		r.Height = container.Height
		r.Width = r.Height * contentRatio
	}
	r.X = (container.Width - r.Width) / 2
	r.Y = (container.Height - r.Height) / 2
	return r
}
