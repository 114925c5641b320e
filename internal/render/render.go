// Package render composes the source images handed to the panel: decoded
// image files, captured screenshots and text, drawn onto a white canvas.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Options configures a Renderer.
type Options struct {
	// Size is the canvas size in pixels. Use the panel's transposed bounds
	// for landscape output.
	Size image.Point

	// FontPath is a TrueType font file. Empty selects basicfont.Face7x13.
	FontPath string
	FontSize float64

	// Rotate180 turns the finished canvas upside down.
	Rotate180 bool
}

// Layer is the content of one panel plane. Base is drawn first, scaled to
// fit, then Text on top of it.
type Layer struct {
	Base image.Image
	Text string
}

// Empty reports whether l has nothing to draw.
func (l Layer) Empty() bool {
	return l.Base == nil && l.Text == ""
}

// Renderer draws layers onto fresh canvases.
type Renderer struct {
	opts Options
	face font.Face
}

// New returns a Renderer, loading the font if one is configured.
func New(opts Options) (*Renderer, error) {
	if opts.Size.X <= 0 || opts.Size.Y <= 0 {
		return nil, fmt.Errorf("render: invalid canvas size %v", opts.Size)
	}
	face, err := loadFace(opts.FontPath, opts.FontSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{opts: opts, face: face}, nil
}

func loadFace(path string, size float64) (font.Face, error) {
	if path == "" {
		return basicfont.Face7x13, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("render: read font: %w", err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("render: parse font %s: %w", path, err)
	}
	if size <= 0 {
		size = 13
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull}), nil
}

// Bounds returns the canvas rectangle.
func (r *Renderer) Bounds() image.Rectangle {
	return image.Rectangle{Max: r.opts.Size}
}

// Render draws l onto a white canvas.
func (r *Renderer) Render(l Layer) image.Image {
	w, h := r.opts.Size.X, r.opts.Size.Y
	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()

	if l.Base != nil {
		drawFit(dc, l.Base)
	}

	if l.Text != "" {
		dc.SetFontFace(r.face)
		dc.SetColor(color.Black)
		dc.DrawStringWrapped(l.Text, float64(w)/2, float64(h)/2, 0.5, 0.5, float64(w-8), 1.2, gg.AlignCenter)
	}

	if !r.opts.Rotate180 {
		return dc.Image()
	}
	return rotate180(dc.Image())
}

// drawFit draws img centered on dc, scaled down or up to fit while keeping
// its aspect ratio. Images already matching the canvas are copied as is.
func drawFit(dc *gg.Context, img image.Image) {
	b := img.Bounds()
	w, h := dc.Width(), dc.Height()
	if b.Dx() == w && b.Dy() == h {
		dc.DrawImage(img, -b.Min.X, -b.Min.Y)
		return
	}
	s := math.Min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	dc.Push()
	dc.Translate(float64(w)/2, float64(h)/2)
	dc.Scale(s, s)
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	dc.Pop()
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.RotateAbout(math.Pi, float64(b.Dx())/2, float64(b.Dy())/2)
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	return dc.Image()
}

// LoadImage decodes a PNG, JPEG, GIF or BMP file.
func LoadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, errors.New("render: image path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("render: decode %s: %w", path, err)
	}
	return img, nil
}
