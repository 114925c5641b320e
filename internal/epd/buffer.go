package epd

import (
	"fmt"
	"image"
	"image/draw"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Geometry describes the panel's native pixel grid. Rows run along Height,
// each row packed into Stride() bytes.
type Geometry struct {
	Width  int
	Height int
}

// Validate reports whether g fits the controller's resolution register:
// one byte of width, two bytes of height.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Width > 0xFF {
		return fmt.Errorf("%w: width %d out of range 1..255", ErrInvalidGeometry, g.Width)
	}
	if g.Height <= 0 || g.Height > 0xFFFF {
		return fmt.Errorf("%w: height %d out of range 1..65535", ErrInvalidGeometry, g.Height)
	}
	return nil
}

// Stride returns the number of bytes per panel row.
func (g Geometry) Stride() int {
	return (g.Width + 7) / 8
}

// BufferSize returns the length of a Buffer for this panel.
func (g Geometry) BufferSize() int {
	return g.Stride() * g.Height
}

// Bounds returns the native (portrait) image rectangle.
func (g Geometry) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// Transposed returns the landscape image rectangle accepted by Pack.
func (g Geometry) Transposed() image.Rectangle {
	return image.Rect(0, 0, g.Height, g.Width)
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Buffer is one packed 1bpp plane: MSB first, row-major, bit 0 = ink,
// bit 1 = white.
type Buffer []byte

// NewBuffer returns an all-white buffer sized for g.
func (g Geometry) NewBuffer() Buffer {
	return g.Filled(0xFF)
}

// Filled returns a buffer sized for g with every byte set to fill.
func (g Geometry) Filled(fill byte) Buffer {
	b := make(Buffer, g.BufferSize())
	for i := range b {
		b[i] = fill
	}
	return b
}

// nativeBit locates pixel (x, y) of a Width x Height image.
func (g Geometry) nativeBit(x, y int) (int, byte) {
	return y*g.Stride() + x/8, 0x80 >> (x % 8)
}

// rotatedBit locates pixel (x, y) of a Height x Width image. The image is
// turned a quarter clockwise onto the panel: x runs up the panel rows,
// y runs along them.
func (g Geometry) rotatedBit(x, y int) (int, byte) {
	newx := y
	newy := g.Height - x - 1
	return newy*g.Stride() + newx/8, 0x80 >> (y % 8)
}

// Pack converts img to a panel buffer. img must be either Width x Height or
// Height x Width; its pixels are reduced to black and white by
// image1bit.BitModel.
//
// For any other size Pack returns the all-white buffer together with
// ErrUnsupportedGeometry.
func (g Geometry) Pack(img image.Image) (Buffer, error) {
	buf := g.NewBuffer()

	r := img.Bounds()
	w, h := r.Dx(), r.Dy()

	var locate func(x, y int) (int, byte)
	switch {
	case w == g.Width && h == g.Height:
		locate = g.nativeBit
	case w == g.Height && h == g.Width:
		locate = g.rotatedBit
	default:
		return buf, fmt.Errorf("%w: image is %dx%d, want %dx%d or %dx%d",
			ErrUnsupportedGeometry, w, h, g.Width, g.Height, g.Height, g.Width)
	}

	bits := Monochrome(img)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bits.BitAt(r.Min.X+x, r.Min.Y+y) == image1bit.Off {
				i, mask := locate(x, y)
				buf[i] &^= mask
			}
		}
	}
	return buf, nil
}

// Unpack is the inverse of Pack: it turns a panel buffer back into a
// picture, native (Width x Height) or, when landscape is set, Height x Width.
// Ink pixels are image1bit.Off.
func (g Geometry) Unpack(buf Buffer, landscape bool) (*image1bit.VerticalLSB, error) {
	if len(buf) != g.BufferSize() {
		return nil, fmt.Errorf("%w: buffer is %d bytes, want %d", ErrBufferSize, len(buf), g.BufferSize())
	}
	r, locate := g.Bounds(), g.nativeBit
	if landscape {
		r, locate = g.Transposed(), g.rotatedBit
	}
	img := image1bit.NewVerticalLSB(r)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			i, mask := locate(x, y)
			img.SetBit(x, y, image1bit.Bit(buf[i]&mask != 0))
		}
	}
	return img, nil
}

// Monochrome reduces img to one bit per pixel. Images that already are
// *image1bit.VerticalLSB are returned as is.
func Monochrome(img image.Image) *image1bit.VerticalLSB {
	if v, ok := img.(*image1bit.VerticalLSB); ok {
		return v
	}
	r := img.Bounds()
	dst := image1bit.NewVerticalLSB(r)
	draw.Src.Draw(dst, r, img, r.Min)
	return dst
}

// Layers is what Display sends: a black plane and, optionally, a red one.
// Build it with Mono or BlackRed.
type Layers struct {
	black  Buffer
	red    Buffer
	hasRed bool
}

// Mono selects black-only transmission; the red plane is left untouched.
func Mono(black Buffer) Layers {
	return Layers{black: black}
}

// BlackRed selects two-plane transmission, black first.
func BlackRed(black, red Buffer) Layers {
	return Layers{black: black, red: red, hasRed: true}
}

// HasRed reports whether the red plane is transmitted.
func (l Layers) HasRed() bool {
	return l.hasRed
}

func (l Layers) validate(size int) error {
	if len(l.black) != size {
		return fmt.Errorf("%w: black plane is %d bytes, want %d", ErrBufferSize, len(l.black), size)
	}
	if l.hasRed && len(l.red) != size {
		return fmt.Errorf("%w: red plane is %d bytes, want %d", ErrBufferSize, len(l.red), size)
	}
	return nil
}
