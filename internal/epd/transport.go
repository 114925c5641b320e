package epd

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Pin identifies one of the control lines wired between host and panel.
type Pin int

const (
	PinReset Pin = iota
	PinDC
	PinBusy
	PinCS
)

func (p Pin) String() string {
	switch p {
	case PinReset:
		return "RST"
	case PinDC:
		return "DC"
	case PinBusy:
		return "BUSY"
	case PinCS:
		return "CS"
	default:
		return "Pin(?)"
	}
}

// Kind selects how a transmitted byte is framed. The panel tells commands
// from payload by the level of the DC line, not by an in-band marker.
type Kind int

const (
	Command Kind = iota
	Data
)

func (k Kind) String() string {
	if k == Command {
		return "command"
	}
	return "data"
}

// dcLevel is the DC line level that frames k.
func (k Kind) dcLevel() gpio.Level {
	if k == Command {
		return gpio.Low
	}
	return gpio.High
}

// Transport is the bus the controller drives. Every call is synchronous and
// returns before the next one starts.
//
// A Transport is an exclusive hardware resource: it belongs to exactly one
// Dev, handed over in New.
type Transport interface {
	// Init brings up the bus and pins. A failure leaves nothing touched.
	Init() error
	// Shutdown releases what Init acquired.
	Shutdown() error

	WritePin(p Pin, l gpio.Level) error
	ReadPin(p Pin) (gpio.Level, error)
	Delay(d time.Duration)

	// SendByte transmits one byte framed as k.
	SendByte(k Kind, b byte) error
}

// BulkSender is implemented by transports that can stream several bytes of
// the same kind in one bus transaction. Controllers fall back to SendByte
// when it is not available.
type BulkSender interface {
	SendBytes(k Kind, data []byte) error
}
