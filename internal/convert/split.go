// Package convert separates full color pictures into the panel's black and
// red inks.
package convert

import (
	"image"
	"image/color"
	"image/draw"
)

// Ink indicates which plane a pixel should be drawn to.
type Ink int

const (
	InkWhite Ink = iota
	InkBlack
	InkRed
)

func (i Ink) String() string {
	switch i {
	case InkBlack:
		return "black"
	case InkRed:
		return "red"
	default:
		return "white"
	}
}

// Classify decides whether a pixel should be black, red or white on the
// tri-color panel.
//
// Thresholds (empirical):
//   - luma Y = 0.299R + 0.587G + 0.114B
//   - redness = R - max(G, B)
//   - Y < 64 is black
//   - R > 128 with redness > 32 is red
//   - alpha < 128 and everything else is white
func Classify(c color.NRGBA) Ink {
	if c.A < 128 {
		return InkWhite
	}
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	y := 0.299*r + 0.587*g + 0.114*b
	redness := r - max(g, b)

	if y < 64 {
		return InkBlack
	}
	if r > 128 && redness > 32 {
		return InkRed
	}
	return InkWhite
}

// Split classifies every pixel of img and returns one picture per ink:
// black pixels where the ink is present, white elsewhere. Both results have
// img's bounds.
func Split(img image.Image) (black, red *image.Gray) {
	b := img.Bounds()
	src, ok := img.(*image.NRGBA)
	if !ok {
		src = image.NewNRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}

	black = image.NewGray(b)
	red = image.NewGray(b)
	for i := range black.Pix {
		black.Pix[i] = 0xFF
		red.Pix[i] = 0xFF
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch Classify(src.NRGBAAt(x, y)) {
			case InkBlack:
				black.SetGray(x, y, color.Gray{})
			case InkRed:
				red.SetGray(x, y, color.Gray{})
			}
		}
	}
	return black, red
}

// HasInk reports whether img, as returned by Split, has any ink.
func HasInk(img *image.Gray) bool {
	for _, p := range img.Pix {
		if p != 0xFF {
			return true
		}
	}
	return false
}
