//go:build rp2040 || rp2350

// Package board binds the hal contracts to real silicon. Only the RP2
// family is supported; everything else gets the host stand-in.
package board

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"tracklog-go/errcode"
	"tracklog-go/hal"
)

// GPS wiring: UART0 on GP0/GP1 at the module's power-on baud.
const (
	gpsBaud = 9600
	gpsTX   = 0
	gpsRX   = 1

	ledPin = 25 // Pico on-board LED

	watchdogMillis = 8000
)

// Open configures the board and returns its peripherals. Call once.
func Open() *hal.Peripherals {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: gpsBaud,
		TX:       machine.Pin(gpsTX),
		RX:       machine.Pin(gpsRX),
	})

	_ = machine.Watchdog.Configure(machine.WatchdogConfig{
		TimeoutMillis: watchdogMillis,
	})
	_ = machine.Watchdog.Start()

	return &hal.Peripherals{
		StatusLED: &rp2Pin{p: machine.Pin(ledPin), n: ledPin},
		GPS:       &uartPort{u: u},
		Clock:     newClock(),
		Rand:      hwRand{},
		Watchdog:  hwWatchdog{},
	}
}

// -----------------------------------------------------------------------------
// GPIO
// -----------------------------------------------------------------------------

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }

func (r *rp2Pin) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

func (r *rp2Pin) Number() int { return r.n }

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

type rp2Clock struct {
	epoch time.Time
}

func newClock() *rp2Clock { return &rp2Clock{epoch: time.Now()} }

func (c *rp2Clock) Now() hal.Ticks {
	return hal.Ticks(time.Since(c.epoch).Microseconds())
}

func (c *rp2Clock) DelayUntil(t hal.Ticks) {
	now := c.Now()
	if t <= now {
		return
	}
	time.Sleep(time.Duration(t-now) * time.Microsecond)
}

// -----------------------------------------------------------------------------
// UART transport
// -----------------------------------------------------------------------------

// uartPort adapts the interrupt-driven uartx port. Reads never block: the
// driver owns pacing via the clock.
type uartPort struct {
	u *uartx.UART
}

func (p *uartPort) Send(b []byte) error {
	if len(b) == 0 {
		return errcode.InvalidParams
	}
	if _, err := p.u.Write(b); err != nil {
		return &errcode.E{C: errcode.Disconnected, Op: "uart.write", Err: err}
	}
	return nil
}

func (p *uartPort) TryRecv(b []byte) (int, error) {
	if p.u.Buffered() == 0 {
		return 0, nil
	}
	return p.u.RecvSomeContext(context.Background(), b)
}

// -----------------------------------------------------------------------------
// Entropy + watchdog
// -----------------------------------------------------------------------------

type hwRand struct{}

func (hwRand) NextU32() uint32 {
	v, _ := machine.GetRNG()
	return v
}

type hwWatchdog struct{}

func (hwWatchdog) Feed() { machine.Watchdog.Update() }
