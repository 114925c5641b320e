package epd

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/rpi"
)

// DefaultMaxHz is the SPI clock used when SPIConfig.MaxHz is zero.
const DefaultMaxHz = 4 * physic.MegaHertz

var errNotOpen = errors.New("epd: transport not initialized")

// SPIConfig names the SPI port and GPIO lines used by SPITransport. Pin
// names are resolved through gpioreg (e.g. "GPIO17").
type SPIConfig struct {
	Port  string // "" selects the first available port
	MaxHz physic.Frequency

	RST  string
	DC   string
	CS   string
	BUSY string
}

// HatConfig is the wiring of the Waveshare e-Paper HAT on a Raspberry Pi
// 40-pin header.
var HatConfig = SPIConfig{
	MaxHz: DefaultMaxHz,
	RST:   "GPIO17",
	DC:    "GPIO25",
	CS:    "GPIO8",
	BUSY:  "GPIO24",
}

// SPITransport implements Transport on top of periph.io: one SPI connection
// for the serial channel and four GPIO lines.
type SPITransport struct {
	cfg SPIConfig

	port     spi.Port
	closer   spi.PortCloser // set when this transport opened port
	needHost bool
	// c lives as long as port: periph ports accept a single Connect.
	c    spi.Conn
	open bool

	rst  gpio.PinOut
	dc   gpio.PinOut
	cs   gpio.PinOut
	busy gpio.PinIn
}

// NewSPITransport returns a transport that initializes the periph host,
// opens cfg.Port and resolves the pins by name when Init is called.
func NewSPITransport(cfg SPIConfig) *SPITransport {
	if cfg.MaxHz == 0 {
		cfg.MaxHz = DefaultMaxHz
	}
	return &SPITransport{cfg: cfg, needHost: true}
}

// NewHatTransport returns a transport wired like the Waveshare HAT, using
// the Raspberry Pi header pins directly.
func NewHatTransport(port string) *SPITransport {
	t := NewSPITransport(SPIConfig{Port: port, MaxHz: DefaultMaxHz})
	t.rst = rpi.P1_11
	t.dc = rpi.P1_22
	t.cs = rpi.P1_24
	t.busy = rpi.P1_18
	return t
}

// NewSPITransportWith returns a transport over an already opened port and
// pins. The port is not closed by Shutdown; it stays owned by the caller.
func NewSPITransportWith(p spi.Port, maxHz physic.Frequency, rst, dc, cs gpio.PinOut, busy gpio.PinIn) *SPITransport {
	if maxHz == 0 {
		maxHz = DefaultMaxHz
	}
	return &SPITransport{
		cfg:  SPIConfig{MaxHz: maxHz},
		port: p,
		rst:  rst,
		dc:   dc,
		cs:   cs,
		busy: busy,
	}
}

// Init implements Transport.
func (t *SPITransport) Init() error {
	if t.needHost {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph host init failed: %w", err)
		}
	}

	if t.rst == nil {
		if err := t.resolvePins(); err != nil {
			return err
		}
	}

	if t.port == nil {
		p, err := spireg.Open(t.cfg.Port)
		if err != nil {
			return fmt.Errorf("failed to open SPI port %q: %w", t.cfg.Port, err)
		}
		t.port = p
		t.closer = p
	}

	if t.c == nil {
		c, err := t.port.Connect(t.cfg.MaxHz, spi.Mode0, 8)
		if err != nil {
			t.closePort()
			return fmt.Errorf("failed to connect SPI: %w", err)
		}
		t.c = c
	}

	eh := pinErrors{}
	eh.out(t.cs, gpio.High)
	eh.out(t.dc, gpio.Low)
	eh.out(t.rst, gpio.High)
	if eh.err == nil {
		eh.err = t.busy.In(gpio.Float, gpio.NoEdge)
	}
	if eh.err != nil {
		t.closePort()
		return fmt.Errorf("failed to configure pins: %w", eh.err)
	}

	t.open = true
	return nil
}

func (t *SPITransport) resolvePins() error {
	lookup := func(name string) (gpio.PinIO, error) {
		if name == "" {
			return nil, errors.New("gpio name is empty")
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio %s not found", name)
		}
		return p, nil
	}

	var err error
	var rst, dc, cs, busy gpio.PinIO
	if rst, err = lookup(t.cfg.RST); err != nil {
		return err
	}
	if dc, err = lookup(t.cfg.DC); err != nil {
		return err
	}
	if cs, err = lookup(t.cfg.CS); err != nil {
		return err
	}
	if busy, err = lookup(t.cfg.BUSY); err != nil {
		return err
	}
	t.rst, t.dc, t.cs, t.busy = rst, dc, cs, busy
	return nil
}

func (t *SPITransport) closePort() {
	if t.closer != nil {
		_ = t.closer.Close()
		t.port = nil
		t.closer = nil
		t.c = nil
	}
}

// Shutdown implements Transport. It drives RST and DC low and closes the
// port if this transport opened it.
func (t *SPITransport) Shutdown() error {
	eh := pinErrors{}
	eh.out(t.rst, gpio.Low)
	eh.out(t.dc, gpio.Low)

	if t.closer != nil {
		if err := t.closer.Close(); err != nil && eh.err == nil {
			eh.err = err
		}
		t.port = nil
		t.closer = nil
		t.c = nil
	}
	t.open = false
	return eh.err
}

// WritePin implements Transport.
func (t *SPITransport) WritePin(p Pin, l gpio.Level) error {
	var out gpio.PinOut
	switch p {
	case PinReset:
		out = t.rst
	case PinDC:
		out = t.dc
	case PinCS:
		out = t.cs
	default:
		return fmt.Errorf("epd: pin %s is not an output", p)
	}
	if out == nil {
		return errNotOpen
	}
	return out.Out(l)
}

// ReadPin implements Transport. Only BUSY is an input.
func (t *SPITransport) ReadPin(p Pin) (gpio.Level, error) {
	if p != PinBusy {
		return gpio.Low, fmt.Errorf("epd: pin %s is not an input", p)
	}
	if t.busy == nil {
		return gpio.Low, errNotOpen
	}
	return t.busy.Read(), nil
}

// Delay implements Transport.
func (t *SPITransport) Delay(d time.Duration) {
	time.Sleep(d)
}

// SendByte implements Transport.
func (t *SPITransport) SendByte(k Kind, b byte) error {
	return t.tx(k, []byte{b})
}

// SendBytes implements BulkSender. Writes larger than the connection's
// maximum transfer size are split.
func (t *SPITransport) SendBytes(k Kind, data []byte) error {
	if !t.open {
		return errNotOpen
	}
	chunk := len(data)
	if l, ok := t.c.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && m < chunk {
			chunk = m
		}
	}
	for len(data) > 0 {
		n := min(chunk, len(data))
		if err := t.tx(k, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (t *SPITransport) tx(k Kind, w []byte) error {
	if !t.open {
		return errNotOpen
	}
	eh := pinErrors{}
	eh.out(t.dc, k.dcLevel())
	eh.out(t.cs, gpio.Low)
	if eh.err == nil {
		eh.err = t.c.Tx(w, nil)
	}
	// CS is released even when the transfer failed.
	if err := t.cs.Out(gpio.High); err != nil && eh.err == nil {
		eh.err = err
	}
	return eh.err
}

func (t *SPITransport) String() string {
	if t.c != nil {
		return t.c.String()
	}
	if t.cfg.Port != "" {
		return t.cfg.Port
	}
	return "spi"
}

// pinErrors keeps the first pin error and turns later writes into no-ops.
type pinErrors struct {
	err error
}

func (e *pinErrors) out(p gpio.PinOut, l gpio.Level) {
	if e.err != nil || p == nil {
		return
	}
	e.err = p.Out(l)
}

var _ Transport = &SPITransport{}
var _ BulkSender = &SPITransport{}
