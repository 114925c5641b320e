// Package epd drives the Waveshare 2.13" black/red e-paper panel (104x212)
// over SPI. It sequences the controller's register writes, converts images
// into the panel's packed 1bpp planes and tracks the panel's power state.
//
// A Dev is not safe for concurrent use. It owns its Transport.
package epd

import (
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrTransportInit wraps a failure of Transport.Init.
	ErrTransportInit = errors.New("epd: transport init failed")
	// ErrInvalidLUTLength is returned by Init for tables that are not
	// LUTSize bytes long.
	ErrInvalidLUTLength = errors.New("epd: invalid LUT length")
	// ErrUnsupportedGeometry is returned for images that are neither the
	// panel size nor its transpose.
	ErrUnsupportedGeometry = errors.New("epd: unsupported image geometry")
	ErrInvalidGeometry     = errors.New("epd: invalid panel geometry")
	ErrBufferSize          = errors.New("epd: invalid buffer size")
	ErrNotReady            = errors.New("epd: panel not initialized")
	ErrBusyTimeout         = errors.New("epd: timed out waiting for panel")
	ErrInvalidColor        = errors.New("epd: invalid clear color")
)

// Logger receives the controller's diagnostics. *log.Logger from the
// application's log package satisfies it.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)        {}
func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Error(string, error, ...any) {}

// Opts defines the panel configuration.
type Opts struct {
	Geometry Geometry
	// BusyTimeout bounds every wait on the BUSY line. Zero waits forever.
	BusyTimeout time.Duration
	// Logger defaults to discarding everything.
	Logger Logger
}

// EPD2in13bc contains the display configuration for the Waveshare 2.13" B/C.
var EPD2in13bc = Opts{
	Geometry: Geometry{Width: 104, Height: 212},
}

// Color selects the fill used by Clear.
type Color int

const (
	// White blanks both planes.
	White Color = iota
	// Black inks the whole black plane.
	Black
	// Red inks the whole red plane.
	Red
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	case Red:
		return "red"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// ParseColor maps "white", "black" or "red" onto a Color.
func ParseColor(s string) (Color, error) {
	switch s {
	case "white", "":
		return White, nil
	case "black":
		return Black, nil
	case "red":
		return Red, nil
	default:
		return White, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// fill returns the byte streamed to the black and red planes.
func (c Color) fill() (black, red byte, err error) {
	switch c {
	case White:
		return 0xFF, 0xFF, nil
	case Black:
		return 0x00, 0xFF, nil
	case Red:
		return 0xFF, 0x00, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidColor, c)
	}
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateSlept
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateSlept:
		return "slept"
	default:
		return "unknown"
	}
}

// Dev defines the handler which is used to access the display.
type Dev struct {
	t    Transport
	opts Opts
	log  Logger

	state state
}

// New creates a handler over t. A nil opts selects EPD2in13bc. The
// transport is not touched until Init.
func New(t Transport, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &EPD2in13bc
	}
	if err := opts.Geometry.Validate(); err != nil {
		return nil, err
	}
	l := opts.Logger
	if l == nil {
		l = nopLogger{}
	}
	return &Dev{t: t, opts: *opts, log: l}, nil
}

func (d *Dev) handler() *errorHandler {
	return &errorHandler{t: d.t, log: d.log, busyTimeout: d.opts.BusyTimeout}
}

// Geometry returns the panel geometry.
func (d *Dev) Geometry() Geometry {
	return d.opts.Geometry
}

// Bounds returns the native (portrait) bounds of the panel.
func (d *Dev) Bounds() image.Rectangle {
	return d.opts.Geometry.Bounds()
}

// Ready reports whether the panel has been initialized and not put to sleep.
func (d *Dev) Ready() bool {
	return d.state == stateReady
}

// Init brings up the transport, resets the panel and programs it with lut.
// lut must be exactly LUTSize bytes; FullUpdateLUT is the usual choice.
//
// Init is valid in every state, including after Sleep.
func (d *Dev) Init(lut LUT) error {
	if len(lut) != LUTSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLUTLength, len(lut), LUTSize)
	}

	if err := d.t.Init(); err != nil {
		d.log.Error("epd transport init failed", err)
		return fmt.Errorf("%w: %w", ErrTransportInit, err)
	}

	// The reset pulse drops the controller's configuration.
	d.state = stateUninitialized
	eh := d.handler()
	eh.reset()
	initPanel(eh, d.opts.Geometry, lut)
	if eh.err != nil {
		d.log.Error("epd init sequence failed", eh.err)
		return eh.err
	}

	d.state = stateReady
	d.log.Info("epd initialized", "geometry", d.opts.Geometry)
	return nil
}

// WaitUntilReady blocks until the panel releases BUSY, or until
// Opts.BusyTimeout elapses.
func (d *Dev) WaitUntilReady() error {
	return waitUntilReady(d.t, d.log, d.opts.BusyTimeout)
}

func (d *Dev) checkReady(op string) error {
	if d.state != stateReady {
		return fmt.Errorf("%w: %s while %s", ErrNotReady, op, d.state)
	}
	return nil
}

// GetBuffer converts img into a panel buffer. See Geometry.Pack.
func (d *Dev) GetBuffer(img image.Image) (Buffer, error) {
	buf, err := d.opts.Geometry.Pack(img)
	if err != nil {
		d.log.Error("epd image not converted", err, "bounds", img.Bounds())
	}
	return buf, err
}

// Clear fills both planes according to c and refreshes.
func (d *Dev) Clear(c Color) error {
	if err := d.checkReady("clear"); err != nil {
		return err
	}
	black, red, err := c.fill()
	if err != nil {
		return err
	}

	g := d.opts.Geometry
	eh := d.handler()
	sendPlanes(eh, g.Filled(black), g.Filled(red))
	if eh.err != nil {
		return eh.err
	}
	d.log.Debug("epd cleared", "color", c)
	return nil
}

// Display sends l to the panel and refreshes. Each plane must be
// Geometry().BufferSize() bytes.
func (d *Dev) Display(l Layers) error {
	if err := d.checkReady("display"); err != nil {
		return err
	}
	if err := l.validate(d.opts.Geometry.BufferSize()); err != nil {
		return err
	}

	var red []byte
	if l.hasRed {
		red = l.red
	}
	eh := d.handler()
	sendPlanes(eh, l.black, red)
	if eh.err != nil {
		return eh.err
	}
	d.log.Debug("epd displayed", "red", l.hasRed)
	return nil
}

// Sleep powers the panel off, puts it into deep sleep and shuts the
// transport down. Only Init is valid afterwards.
func (d *Dev) Sleep() error {
	if err := d.checkReady("sleep"); err != nil {
		return err
	}

	eh := d.handler()
	powerDown(eh)
	if eh.err != nil {
		return eh.err
	}

	d.state = stateSlept
	if err := d.t.Shutdown(); err != nil {
		return fmt.Errorf("epd: transport shutdown: %w", err)
	}
	d.log.Info("epd asleep")
	return nil
}

// String returns a string containing configuration information.
func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{%v, Width: %d, Height: %d}", d.t, d.opts.Geometry.Width, d.opts.Geometry.Height)
}
