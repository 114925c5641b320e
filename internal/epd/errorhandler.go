package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// busyPollInterval is the pause between two reads of the BUSY line.
const busyPollInterval = 100 * time.Millisecond

// busyIdle is the BUSY level the panel reports once it accepts commands.
const busyIdle = gpio.High

// errorHandler is a wrapper for error management. Once a call fails, every
// later call is a no-op and err holds the first failure.
type errorHandler struct {
	t           Transport
	log         Logger
	busyTimeout time.Duration
	err         error
}

func (eh *errorHandler) pinOut(p Pin, l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.t.WritePin(p, l)
}

// reset pulses RST to put the controller into its power-on state.
func (eh *errorHandler) reset() {
	eh.pinOut(PinReset, gpio.High)
	eh.delay(200 * time.Millisecond)
	eh.pinOut(PinReset, gpio.Low)
	eh.delay(10 * time.Millisecond)
	eh.pinOut(PinReset, gpio.High)
	eh.delay(200 * time.Millisecond)
}

func (eh *errorHandler) delay(d time.Duration) {
	if eh.err != nil {
		return
	}
	eh.t.Delay(d)
}

func (eh *errorHandler) sendCommand(cmd byte) {
	if eh.err != nil {
		return
	}
	eh.log.Debug("epd send command", "cmd", fmt.Sprintf("0x%02X", cmd))
	eh.err = eh.t.SendByte(Command, cmd)
}

func (eh *errorHandler) sendData(data ...byte) {
	if eh.err != nil || len(data) == 0 {
		return
	}
	eh.log.Debug("epd send data", "len", len(data))

	if bulk, ok := eh.t.(BulkSender); ok {
		eh.err = bulk.SendBytes(Data, data)
		return
	}
	for _, b := range data {
		if eh.err = eh.t.SendByte(Data, b); eh.err != nil {
			return
		}
	}
}

func (eh *errorHandler) waitUntilIdle() {
	if eh.err != nil {
		return
	}
	eh.err = waitUntilReady(eh.t, eh.log, eh.busyTimeout)
}

// waitUntilReady polls BUSY until the panel is idle. A zero timeout waits
// forever. Elapsed time is counted in poll intervals so that it follows the
// transport's notion of time.
func waitUntilReady(t Transport, log Logger, timeout time.Duration) error {
	log.Debug("epd busy")

	var waited time.Duration
	for {
		l, err := t.ReadPin(PinBusy)
		if err != nil {
			return fmt.Errorf("epd: read busy pin: %w", err)
		}
		if l == busyIdle {
			break
		}
		if timeout > 0 && waited >= timeout {
			return fmt.Errorf("%w after %s", ErrBusyTimeout, waited)
		}
		t.Delay(busyPollInterval)
		waited += busyPollInterval
	}

	log.Debug("epd busy release", "waited", waited)
	return nil
}
