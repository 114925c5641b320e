// Package preview shows what the panel would display without one attached:
// a colored PNG, an ANSI rendering for the terminal and raw plane dumps.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epd2in13bc/internal/epd"
)

// Ink colors of the panel.
var (
	White = color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
	Black = color.NRGBA{0x00, 0x00, 0x00, 0xFF}
	Red   = color.NRGBA{0xC0, 0x10, 0x10, 0xFF}
)

// Frame is a pair of packed planes as sent to the panel. Red is nil for
// black-only frames.
type Frame struct {
	Geometry epd.Geometry
	Black    epd.Buffer
	Red      epd.Buffer

	// Landscape selects the Height x Width orientation used when the
	// planes were packed from a landscape canvas.
	Landscape bool
}

// Image composes the planes into one picture. Red ink covers black ink.
func (f *Frame) Image() (*image.NRGBA, error) {
	black, err := f.Geometry.Unpack(f.Black, f.Landscape)
	if err != nil {
		return nil, fmt.Errorf("preview: black plane: %w", err)
	}
	var red *image1bit.VerticalLSB
	if f.Red != nil {
		if red, err = f.Geometry.Unpack(f.Red, f.Landscape); err != nil {
			return nil, fmt.Errorf("preview: red plane: %w", err)
		}
	}

	r := black.Bounds()
	dst := image.NewNRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := White
			if black.BitAt(x, y) == image1bit.Off {
				c = Black
			}
			if red != nil && red.BitAt(x, y) == image1bit.Off {
				c = Red
			}
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst, nil
}

// WritePNG encodes the composed frame as PNG.
func (f *Frame) WritePNG(w io.Writer) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Dump writes black.bin, red.bin (when present) and preview.png into dir.
func (f *Frame) Dump(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var pngBuf bytes.Buffer
	if err := f.WritePNG(&pngBuf); err != nil {
		return err
	}
	files := map[string][]byte{
		"black.bin":   f.Black,
		"preview.png": pngBuf.Bytes(),
	}
	if f.Red != nil {
		files["red.bin"] = f.Red
	} else if err := os.Remove(filepath.Join(dir, "red.bin")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("preview: remove stale red.bin: %w", err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("preview: write %s: %w", name, err)
		}
	}
	return nil
}

// Terminal renders frames with ANSI 256 color blocks.
type Terminal struct {
	w       io.Writer
	palette *ansi256.Palette
	buf     bytes.Buffer
}

// NewTerminal returns a Terminal writing to w, or to a colorable stdout
// when w is nil.
func NewTerminal(w io.Writer) *Terminal {
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Terminal{w: w, palette: ansi256.Default}
}

// Draw writes one block per pixel, one line per image row.
func (t *Terminal) Draw(img image.Image) error {
	t.buf.Reset()
	r := img.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		_, _ = t.buf.WriteString("\033[0m")
		for x := r.Min.X; x < r.Max.X; x++ {
			_, _ = io.WriteString(&t.buf, t.palette.Block(color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)))
		}
		_, _ = t.buf.WriteString("\033[0m\n")
	}
	_, err := t.buf.WriteTo(t.w)
	return err
}

// DrawFrame composes f and draws it.
func (t *Terminal) DrawFrame(f *Frame) error {
	img, err := f.Image()
	if err != nil {
		return err
	}
	return t.Draw(img)
}

func (t *Terminal) String() string {
	return "preview.Terminal"
}
