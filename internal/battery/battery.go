package battery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the I2C address of the PiSugar3 power controller.
const DefaultAddr = 0x57

// PiSugar3 registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// Status represents current battery status for the status API.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts.
	VoltageMv int `json:"voltage_mv"`
}

// Reader abstracts how we obtain battery information.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// PiSugar reads a PiSugar3 power controller, the usual supply of a
// battery-powered Pi Zero running an e-paper HAT.
type PiSugar struct {
	mu  sync.Mutex
	dev *i2c.Dev
}

// New returns a PiSugar on an opened bus.
func New(bus i2c.Bus, addr uint16) *PiSugar {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &PiSugar{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

// Open initializes the periph host and opens busName ("" for the default
// bus, /dev/i2c-1 on a Pi). The returned bus must be closed by the caller.
func Open(busName string, addr uint16) (*PiSugar, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("battery: open i2c bus %q: %w", busName, err)
	}
	return New(bus, addr), bus, nil
}

func (p *PiSugar) readReg(reg byte) (byte, error) {
	buf := []byte{0}
	if err := p.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Read implements Reader.
func (p *PiSugar) Read(_ context.Context) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	high, err := p.readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := p.readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := p.readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

func (p *PiSugar) String() string {
	return fmt.Sprintf("PiSugar3{%s}", p.dev)
}

// Cached wraps a Reader so that frequent status requests do not hit the
// bus every time.
type Cached struct {
	r   Reader
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	status    Status
	err       error
	updatedAt time.Time
}

// NewCached returns a Reader that reuses a result for ttl.
func NewCached(r Reader, ttl time.Duration) *Cached {
	return &Cached{r: r, ttl: ttl, now: time.Now}
}

// Read implements Reader. Failed reads are cached too.
func (c *Cached) Read(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.updatedAt.IsZero() && now.Sub(c.updatedAt) < c.ttl {
		return c.status, c.err
	}
	if c.r == nil {
		return Status{}, errors.New("battery: no reader")
	}
	c.status, c.err = c.r.Read(ctx)
	c.updatedAt = now
	return c.status, c.err
}
