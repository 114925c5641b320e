package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"epd2in13bc/internal/epd"
)

var geom = epd.EPD2in13bc.Geometry

// frame returns a landscape frame with a black pixel at (1, 2) and a red
// pixel at (3, 4). Pixel (3, 4) is also black in the black plane.
func frame(t *testing.T) *Frame {
	t.Helper()
	r := geom.Transposed()
	mk := func(pts ...image.Point) epd.Buffer {
		img := image.NewGray(r)
		for i := range img.Pix {
			img.Pix[i] = 0xFF
		}
		for _, p := range pts {
			img.SetGray(p.X, p.Y, color.Gray{})
		}
		buf, err := geom.Pack(img)
		if err != nil {
			t.Fatal(err)
		}
		return buf
	}
	return &Frame{
		Geometry:  geom,
		Black:     mk(image.Pt(1, 2), image.Pt(3, 4)),
		Red:       mk(image.Pt(3, 4)),
		Landscape: true,
	}
}

func TestFrameImage(t *testing.T) {
	f := frame(t)
	img, err := f.Image()
	if err != nil {
		t.Fatalf("Image() failed: %v", err)
	}
	if got, want := img.Bounds(), geom.Transposed(); got != want {
		t.Fatalf("Image() bounds = %v, want %v", got, want)
	}
	for _, tc := range []struct {
		p    image.Point
		want color.NRGBA
	}{
		{image.Pt(0, 0), White},
		{image.Pt(1, 2), Black},
		{image.Pt(3, 4), Red},
		{image.Pt(211, 103), White},
	} {
		if got := img.NRGBAAt(tc.p.X, tc.p.Y); got != tc.want {
			t.Errorf("pixel %v = %v, want %v", tc.p, got, tc.want)
		}
	}

	f.Red = nil
	img, err = f.Image()
	if err != nil {
		t.Fatalf("Image() without red failed: %v", err)
	}
	if got := img.NRGBAAt(3, 4); got != Black {
		t.Errorf("pixel (3, 4) without red = %v, want black", got)
	}

	f.Landscape = false
	img, err = f.Image()
	if err != nil {
		t.Fatalf("Image() portrait failed: %v", err)
	}
	if got, want := img.Bounds(), geom.Bounds(); got != want {
		t.Errorf("portrait bounds = %v, want %v", got, want)
	}
}

func TestFrameImageErrors(t *testing.T) {
	f := frame(t)
	f.Black = f.Black[:10]
	if _, err := f.Image(); err == nil {
		t.Errorf("Image() with short black plane succeeded")
	}

	f = frame(t)
	f.Red = f.Red[:10]
	if _, err := f.Image(); err == nil {
		t.Errorf("Image() with short red plane succeeded")
	}
}

func TestFrameDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	f := frame(t)
	if err := f.Dump(dir); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	for name, want := range map[string][]byte{"black.bin": f.Black, "red.bin": f.Red} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(got, []byte(want)); diff != "" {
			t.Errorf("%s difference (-got +want):\n%s", name, diff)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "preview.png"))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("preview.png: %v", err)
	}
	if got, want := img.Bounds(), geom.Transposed(); got != want {
		t.Errorf("preview.png bounds = %v, want %v", got, want)
	}

	mono := t.TempDir()
	f.Red = nil
	if err := f.Dump(mono); err != nil {
		t.Fatalf("Dump() mono failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(mono, "red.bin")); !os.IsNotExist(err) {
		t.Errorf("red.bin written for a mono frame: %v", err)
	}

	// A mono frame dumped over a black/red one must not leave its red plane.
	if err := f.Dump(dir); err != nil {
		t.Fatalf("Dump() mono over previous frame failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "red.bin")); !os.IsNotExist(err) {
		t.Errorf("stale red.bin kept after a mono frame: %v", err)
	}
}

func TestTerminal(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(&out)

	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	if err := term.Draw(img); err != nil {
		t.Fatalf("Draw() failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Draw() wrote %d lines, want 2", len(lines))
	}
	for i, l := range lines {
		if !strings.HasSuffix(l, "\033[0m") {
			t.Errorf("line %d does not reset the color: %q", i, l)
		}
	}

	out.Reset()
	if err := term.DrawFrame(frame(t)); err != nil {
		t.Fatalf("DrawFrame() failed: %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n != 104 {
		t.Errorf("DrawFrame() wrote %d lines, want 104", n)
	}
}
