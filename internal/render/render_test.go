package render

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

var canvas = image.Pt(212, 104)

func dark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return (r+g+b)/3 < 0x8000
}

func countDark(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if dark(img.At(x, y)) {
				n++
			}
		}
	}
	return n
}

func newRenderer(t *testing.T, opts Options) *Renderer {
	t.Helper()
	if opts.Size == (image.Point{}) {
		opts.Size = canvas
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return r
}

// square returns a white canvas-sized image with a black 20x20 square in
// its top-left corner.
func square() *image.Gray {
	img := image.NewGray(image.Rectangle{Max: canvas})
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetGray(x, y, color.Gray{})
		}
	}
	return img
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Errorf("New() with empty size succeeded, want error")
	}
	if _, err := New(Options{Size: canvas, FontPath: filepath.Join(t.TempDir(), "missing.ttf")}); err == nil {
		t.Errorf("New() with missing font succeeded, want error")
	}

	bad := filepath.Join(t.TempDir(), "bad.ttf")
	if err := os.WriteFile(bad, []byte("not a font"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Options{Size: canvas, FontPath: bad}); err == nil {
		t.Errorf("New() with invalid font succeeded, want error")
	}

	r := newRenderer(t, Options{})
	if got, want := r.Bounds(), image.Rect(0, 0, 212, 104); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}
}

func TestRenderEmpty(t *testing.T) {
	r := newRenderer(t, Options{})
	l := Layer{}
	if !l.Empty() {
		t.Errorf("Layer{}.Empty() = false")
	}
	img := r.Render(l)
	if got := img.Bounds(); got != r.Bounds() {
		t.Errorf("Render() bounds = %v, want %v", got, r.Bounds())
	}
	if n := countDark(img); n != 0 {
		t.Errorf("empty layer has %d dark pixels", n)
	}
}

func TestRenderText(t *testing.T) {
	r := newRenderer(t, Options{})
	img := r.Render(Layer{Text: "hello"})
	if n := countDark(img); n == 0 {
		t.Errorf("text layer has no dark pixels")
	}
	// Text is centered; the corners stay white.
	for _, p := range []image.Point{{0, 0}, {211, 0}, {0, 103}, {211, 103}} {
		if dark(img.At(p.X, p.Y)) {
			t.Errorf("pixel %v is dark", p)
		}
	}
}

func TestRenderBase(t *testing.T) {
	r := newRenderer(t, Options{})
	img := r.Render(Layer{Base: square()})
	if !dark(img.At(10, 10)) {
		t.Errorf("square not copied to the top-left corner")
	}
	if dark(img.At(200, 90)) {
		t.Errorf("bottom-right corner is dark")
	}

	// A half-size source is scaled up to fill the canvas.
	small := image.NewGray(image.Rect(0, 0, 106, 52))
	img = r.Render(Layer{Base: small})
	if !dark(img.At(106, 52)) {
		t.Errorf("scaled image does not cover the center")
	}
}

func TestRenderRotate180(t *testing.T) {
	r := newRenderer(t, Options{Rotate180: true})
	img := r.Render(Layer{Base: square()})
	if dark(img.At(10, 10)) {
		t.Errorf("top-left corner still dark after rotation")
	}
	if !dark(img.At(canvas.X-10, canvas.Y-10)) {
		t.Errorf("square not moved to the bottom-right corner")
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	src := square()

	for name, enc := range map[string]func(*os.File) error{
		"img.png": func(f *os.File) error { return png.Encode(f, src) },
		"img.bmp": func(f *os.File) error { return bmp.Encode(f, src) },
	} {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := enc(f); err != nil {
			t.Fatal(err)
		}
		f.Close()

		img, err := LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", name, err)
		}
		if img.Bounds() != src.Bounds() {
			t.Errorf("LoadImage(%s) bounds = %v, want %v", name, img.Bounds(), src.Bounds())
		}
		if !dark(img.At(5, 5)) || dark(img.At(100, 50)) {
			t.Errorf("LoadImage(%s) pixels differ from the source", name)
		}
	}

	junk := filepath.Join(dir, "junk.png")
	if err := os.WriteFile(junk, []byte("junk"), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"", filepath.Join(dir, "missing.png"), junk} {
		if _, err := LoadImage(p); err == nil {
			t.Errorf("LoadImage(%q) succeeded, want error", p)
		}
	}
}
