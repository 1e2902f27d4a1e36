package cli

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
)

// previewBackground is what transparent surface pixels are composited on.
var previewBackground = color.NRGBA{R: 0x1c, G: 0x1c, B: 0x1c, A: 0xff}

// halfBlocks draws img into at most cols×rows terminal cells. Each cell is
// an upper half block whose foreground is the top pixel and whose
// background is the bottom one, so a cell covers two pixel rows and pixels
// stay roughly square.
func halfBlocks(img image.Image, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return ""
	}

	small := imaging.Fit(img, cols, rows*2, imaging.Box)
	sb := small.Bounds()

	var out strings.Builder
	for y := sb.Min.Y; y < sb.Max.Y; y += 2 {
		if y > sb.Min.Y {
			out.WriteByte('\n')
		}
		for x := sb.Min.X; x < sb.Max.X; x++ {
			top := flatten(small.NRGBAAt(x, y))
			bottom := previewBackground
			if y+1 < sb.Max.Y {
				bottom = flatten(small.NRGBAAt(x, y+1))
			}
			out.WriteString(lipgloss.NewStyle().
				Foreground(hexColor(top)).
				Background(hexColor(bottom)).
				Render("▀"))
		}
	}
	return out.String()
}

// flatten composites c over previewBackground.
func flatten(c color.NRGBA) color.NRGBA {
	if c.A == 0xff {
		return c
	}
	a := uint32(c.A)
	mix := func(fg, bg uint8) uint8 {
		return uint8((uint32(fg)*a + uint32(bg)*(0xff-a) + 0x7f) / 0xff)
	}
	return color.NRGBA{
		R: mix(c.R, previewBackground.R),
		G: mix(c.G, previewBackground.G),
		B: mix(c.B, previewBackground.B),
		A: 0xff,
	}
}

func hexColor(c color.NRGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
