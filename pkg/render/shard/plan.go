// Package shard plans and draws the "fractalised" glass-shard effect.
//
// The source image is cut into N equal vertical slices and the surface into N
// equal vertical bands. Band i is filled with a slice-wide window of the
// source that starts at i·(W/N) − i·(ShiftConstant/N), so each band samples a
// little further left than the one before it. The progressive shift is what
// produces the shard look.
//
// Planning ([NewPlan]) is pure arithmetic and keeps the fractional geometry;
// drawing ([Draw]) rounds each span to whole pixels and scales the source
// window into its band.
package shard

import "math"

// ShiftConstant is the fixed per-band source shift numerator. Band i is
// shifted left by i·ShiftConstant/N source pixels.
const ShiftConstant = 1000.0

// Span is a horizontal interval [X, X+Width) in pixels.
type Span struct {
	X     float64
	Width float64
}

// End returns X + Width.
func (s Span) End() float64 { return s.X + s.Width }

// Slice is a single draw: a window of the source copied into one band of the surface.
//
// Src and Dst keep the exact fractional geometry. The pixel bounds are the
// rounded edges used for drawing; band edges are rounded from i·bandWidth so
// adjacent bands share an edge and together partition the surface.
type Slice struct {
	Index int
	Src   Span // source window, may extend outside the image
	Dst   Span // destination band

	SrcMin, SrcMax int
	DstMin, DstMax int
}

// DstWidth returns the rounded width of the destination band in pixels.
func (s Slice) DstWidth() int { return s.DstMax - s.DstMin }

// Plan is the ordered set of draws that build the shard effect.
type Plan struct {
	Count        int
	SourceWidth  float64
	SurfaceWidth float64
	Slices       []Slice
}

// SliceWidth returns the width of one source slice (W / N).
func (p Plan) SliceWidth() float64 {
	if p.Count <= 0 {
		return 0
	}
	return p.SourceWidth / float64(p.Count)
}

// BandWidth returns the width of one destination band (surface width / N).
func (p Plan) BandWidth() float64 {
	if p.Count <= 0 {
		return 0
	}
	return p.SurfaceWidth / float64(p.Count)
}

// Shift returns the leftward source shift applied to band i.
func (p Plan) Shift(i int) float64 {
	if p.Count <= 0 {
		return 0
	}
	return float64(i) * (ShiftConstant / float64(p.Count))
}

// NewPlan builds the draw plan for n slices of a source sourceWidth pixels wide
// onto a surface surfaceWidth pixels wide.
//
// Slice 0 is unshifted. Slice i samples from i·(W/n) − i·(1000/n). A draw
// past the last band would land wholly right of the surface, so the plan
// holds exactly n slices. A non-positive n, or an empty source or surface,
// yields a plan with no slices.
func NewPlan(n int, sourceWidth, surfaceWidth float64) Plan {
	p := Plan{Count: n, SourceWidth: sourceWidth, SurfaceWidth: surfaceWidth}
	if n <= 0 || !(sourceWidth > 0) || !(surfaceWidth > 0) {
		return p
	}

	sliceW := p.SliceWidth()
	bandW := p.BandWidth()
	p.Slices = make([]Slice, n)
	for i := range n {
		fi := float64(i)
		src := Span{X: fi*sliceW - p.Shift(i), Width: sliceW}
		p.Slices[i] = Slice{
			Index:  i,
			Src:    src,
			Dst:    Span{X: fi * bandW, Width: bandW},
			SrcMin: round(src.X),
			SrcMax: round(src.End()),
			DstMin: round(fi * bandW),
			DstMax: round((fi + 1) * bandW),
		}
	}
	return p
}

func round(v float64) int { return int(math.Round(v)) }
