//go:build !rp2040 && !rp2350

package board

import (
	"time"

	"tracklog-go/hal"
	"tracklog-go/hal/sim"
)

// Open on a development host returns simulated peripherals behind a
// wall-clock Clock, so the firmware binary runs end to end with no GPS
// attached. Tests use hal/sim directly instead.
func Open() *hal.Peripherals {
	dev := sim.NewDevice(uint32(time.Now().UnixNano()))
	p := dev.Peripherals()
	p.Clock = newHostClock()
	return p
}

type hostClock struct {
	epoch time.Time
}

func newHostClock() *hostClock { return &hostClock{epoch: time.Now()} }

func (c *hostClock) Now() hal.Ticks {
	return hal.Ticks(time.Since(c.epoch).Microseconds())
}

func (c *hostClock) DelayUntil(t hal.Ticks) {
	now := c.Now()
	if t <= now {
		return
	}
	time.Sleep(time.Duration(t-now) * time.Microsecond)
}
