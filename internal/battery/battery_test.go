package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

var pbRead = []i2ctest.IO{
	{Addr: DefaultAddr, W: []byte{regVoltageHigh}, R: []byte{0x0F}},
	{Addr: DefaultAddr, W: []byte{regVoltageLow}, R: []byte{0xA0}},
	{Addr: DefaultAddr, W: []byte{regPercent}, R: []byte{87}},
}

func TestPiSugarRead(t *testing.T) {
	pb := &i2ctest.Playback{Ops: pbRead, DontPanic: true}
	defer pb.Close()

	p := New(pb, 0)
	got, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if want := (Status{Percent: 87, VoltageMv: 4000}); got != want {
		t.Errorf("Read() = %+v, want %+v", got, want)
	}
	if err := pb.Close(); err != nil {
		t.Errorf("playback not drained: %v", err)
	}
}

func TestPiSugarClampsPercent(t *testing.T) {
	ops := append([]i2ctest.IO{}, pbRead[:2]...)
	ops = append(ops, i2ctest.IO{Addr: DefaultAddr, W: []byte{regPercent}, R: []byte{0xFF}})
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	defer pb.Close()

	got, err := New(pb, DefaultAddr).Read(context.Background())
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got.Percent != 100 {
		t.Errorf("Percent = %d, want 100", got.Percent)
	}
}

func TestPiSugarReadError(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	defer pb.Close()

	if _, err := New(pb, 0).Read(context.Background()); err == nil {
		t.Errorf("Read() on an empty bus succeeded")
	}
}

type countingReader struct {
	n   int
	err error
}

func (c *countingReader) Read(context.Context) (Status, error) {
	c.n++
	return Status{Percent: c.n}, c.err
}

func TestCached(t *testing.T) {
	r := &countingReader{}
	c := NewCached(r, 30*time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		s, err := c.Read(context.Background())
		if err != nil || s.Percent != 1 {
			t.Fatalf("Read() #%d = %+v, %v; want cached first read", i, s, err)
		}
	}

	now = now.Add(31 * time.Second)
	r.err = errors.New("nack")
	if _, err := c.Read(context.Background()); err == nil {
		t.Errorf("Read() after expiry did not return the reader error")
	}
	if r.n != 2 {
		t.Errorf("reader called %d times, want 2", r.n)
	}

	if _, err := NewCached(nil, time.Second).Read(context.Background()); err == nil {
		t.Errorf("Read() without a reader succeeded")
	}
}
