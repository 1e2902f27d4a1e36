package adjust

import (
	"image"
	"strings"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// Kernel selects the blur routine.
type Kernel int

const (
	// Box averages a square neighbourhood of the given radius.
	Box Kernel = iota
	// Gaussian weights the neighbourhood with a gaussian whose standard
	// deviation is the radius, like a canvas blur filter.
	Gaussian
)

// Kernel names accepted by [ParseKernel].
const (
	KernelBox      = "box"
	KernelGaussian = "gaussian"
)

// String returns the configuration name of the kernel.
func (k Kernel) String() string {
	if k == Gaussian {
		return KernelGaussian
	}
	return KernelBox
}

// ParseKernel maps a name to a Kernel. The empty string is Box.
func ParseKernel(name string) (Kernel, bool) {
	switch strings.ToLower(name) {
	case KernelBox, "":
		return Box, true
	case KernelGaussian:
		return Gaussian, true
	default:
		return Box, false
	}
}

// Blur blurs img in place with the given kernel and radius.
// A radius of zero or less is a no-op and the blur routine is not invoked.
func Blur(img *image.NRGBA, radius float64, k Kernel) {
	if img == nil || img.Bounds().Empty() || !(radius > 0) {
		return
	}

	b := img.Bounds()
	var blurred *image.NRGBA
	switch k {
	case Gaussian:
		// imaging rounds after each pass, so opaque areas stay opaque.
		blurred = imaging.Blur(img, radius)
	default:
		// bild works on premultiplied RGBA; convert back to straight alpha so
		// the brightness pass sees the channel values a canvas would expose.
		blurred = imaging.Clone(blur.Box(img, radius))
	}

	for y := 0; y < b.Dy(); y++ {
		dst := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):img.PixOffset(b.Max.X, b.Min.Y+y)]
		copy(dst, blurred.Pix[y*blurred.Stride:y*blurred.Stride+len(dst)])
	}
}
