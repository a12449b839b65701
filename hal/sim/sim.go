// Package sim implements every hal contract against in-memory models, so
// the control loop and the GPS driver can be exercised deterministically on
// a development host. Tests drive the virtual clock and the transport
// queues explicitly; nothing in here touches wall-clock time.
package sim

import (
	"sync"

	"tracklog-go/errcode"
	"tracklog-go/hal"
)

// -----------------------------------------------------------------------------
// Virtual clock
// -----------------------------------------------------------------------------

// Clock is a virtual monotonic tick counter. In manual mode DelayUntil
// blocks until the test advances the clock past the requested tick. In
// auto-advance mode DelayUntil jumps the clock forward itself, which lets
// single-goroutine tests run time-dependent code without a driver goroutine.
type Clock struct {
	mu      sync.Mutex
	now     hal.Ticks
	auto    bool
	changed chan struct{}
}

func NewClock() *Clock {
	return &Clock{changed: make(chan struct{})}
}

func (c *Clock) Now() hal.Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d ticks and wakes any waiter whose
// deadline has passed. Advancing by zero is a no-op.
func (c *Clock) Advance(d hal.Ticks) {
	c.mu.Lock()
	c.now += d
	c.wakeLocked()
	c.mu.Unlock()
}

// SetAutoAdvance switches DelayUntil between blocking and self-advancing.
func (c *Clock) SetAutoAdvance(on bool) {
	c.mu.Lock()
	c.auto = on
	c.wakeLocked()
	c.mu.Unlock()
}

func (c *Clock) DelayUntil(t hal.Ticks) {
	for {
		c.mu.Lock()
		if c.auto {
			if t > c.now {
				c.now = t
				c.wakeLocked()
			}
			c.mu.Unlock()
			return
		}
		if c.now >= t {
			c.mu.Unlock()
			return
		}
		ch := c.changed
		c.mu.Unlock()
		<-ch
	}
}

func (c *Clock) wakeLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// -----------------------------------------------------------------------------
// Digital output pin
// -----------------------------------------------------------------------------

// Pin is an in-memory digital line. It records every level written so tests
// can assert on blink patterns, not just the final level.
type Pin struct {
	mu      sync.Mutex
	number  int
	level   bool
	history []bool
}

func NewPin(number int) *Pin { return &Pin{number: number} }

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.level = initial
	p.history = append(p.history[:0], initial)
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.history = append(p.history, level)
	p.mu.Unlock()
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) Toggle() { p.Set(!p.Get()) }

func (p *Pin) Number() int { return p.number }

// History returns every level the pin has held, oldest first.
func (p *Pin) History() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.history...)
}

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

// Transport models a serial link with two byte queues. The test pushes
// peripheral output into the inbound queue and inspects what the device
// sent in the outbound queue. Delivery is strictly FIFO. Send failures can
// be scripted for retry tests.
type Transport struct {
	mu           sync.Mutex
	inbound      []byte
	outbound     []byte
	failNext     int
	failWith     errcode.Code
	disconnected bool
	sends        int
	onSend       func(p []byte)
}

func NewTransport() *Transport { return &Transport{} }

func (t *Transport) Send(p []byte) error {
	t.mu.Lock()
	if len(p) == 0 {
		t.mu.Unlock()
		return errcode.InvalidParams
	}
	t.sends++
	if t.disconnected {
		t.mu.Unlock()
		return errcode.Disconnected
	}
	if t.failNext > 0 {
		t.failNext--
		code := t.failWith
		t.mu.Unlock()
		return code
	}
	t.outbound = append(t.outbound, p...)
	hook := t.onSend
	t.mu.Unlock()
	if hook != nil {
		hook(append([]byte(nil), p...))
	}
	return nil
}

// OnSend registers a hook run after every successful Send with a copy of
// the bytes written. Tests use it to script the peripheral's replies.
func (t *Transport) OnSend(fn func(p []byte)) {
	t.mu.Lock()
	t.onSend = fn
	t.mu.Unlock()
}

func (t *Transport) TryRecv(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disconnected {
		return 0, errcode.Disconnected
	}
	n := copy(p, t.inbound)
	t.inbound = t.inbound[n:]
	return n, nil
}

// Push enqueues bytes for the device to receive.
func (t *Transport) Push(p []byte) {
	t.mu.Lock()
	t.inbound = append(t.inbound, p...)
	t.mu.Unlock()
}

// PushString enqueues a sentence the peripheral would have produced.
func (t *Transport) PushString(s string) { t.Push([]byte(s)) }

// Outbound returns a copy of everything the device has sent.
func (t *Transport) Outbound() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.outbound...)
}

// TakeOutbound drains and returns the outbound queue.
func (t *Transport) TakeOutbound() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.outbound
	t.outbound = nil
	return out
}

// FailNextSends makes the next n Send calls fail with the given code.
func (t *Transport) FailNextSends(n int, code errcode.Code) {
	t.mu.Lock()
	t.failNext = n
	t.failWith = code
	t.mu.Unlock()
}

// SetDisconnected fails every operation with errcode.Disconnected until
// cleared.
func (t *Transport) SetDisconnected(down bool) {
	t.mu.Lock()
	t.disconnected = down
	t.mu.Unlock()
}

// Sends reports how many Send calls have been attempted (including failed
// ones, excluding empty-buffer contract violations).
func (t *Transport) Sends() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sends
}

// -----------------------------------------------------------------------------
// Entropy
// -----------------------------------------------------------------------------

// Entropy is a seeded xorshift32 generator. Identical seeds yield identical
// sequences, which keeps whole-run replays byte-for-byte reproducible.
type Entropy struct {
	mu    sync.Mutex
	state uint32
}

func NewEntropy(seed uint32) *Entropy {
	e := &Entropy{}
	e.Reseed(seed)
	return e
}

func (e *Entropy) Reseed(seed uint32) {
	if seed == 0 {
		seed = 1 // xorshift state must be non-zero
	}
	e.mu.Lock()
	e.state = seed
	e.mu.Unlock()
}

func (e *Entropy) NextU32() uint32 {
	e.mu.Lock()
	x := e.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	e.state = x
	e.mu.Unlock()
	return x
}

// -----------------------------------------------------------------------------
// Watchdog
// -----------------------------------------------------------------------------

// Watchdog counts feeds so tests can assert the loop keeps it alive.
type Watchdog struct {
	mu    sync.Mutex
	feeds int
}

func NewWatchdog() *Watchdog { return &Watchdog{} }

func (w *Watchdog) Feed() {
	w.mu.Lock()
	w.feeds++
	w.mu.Unlock()
}

func (w *Watchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeds
}

// -----------------------------------------------------------------------------
// Device bundle
// -----------------------------------------------------------------------------

// Device aggregates one simulated adapter with its test-side handles.
type Device struct {
	LED   *Pin
	GPS   *Transport
	Clock *Clock
	Rand  *Entropy
	Dog   *Watchdog
}

// NewDevice builds a simulated adapter. Pin numbering matches the board
// (GP25 is the status LED on the Pico).
func NewDevice(seed uint32) *Device {
	d := &Device{
		LED:   NewPin(25),
		GPS:   NewTransport(),
		Clock: NewClock(),
		Rand:  NewEntropy(seed),
		Dog:   NewWatchdog(),
	}
	_ = d.LED.ConfigureOutput(false)
	return d
}

// Peripherals returns the hal view of the device for the control loop.
func (d *Device) Peripherals() *hal.Peripherals {
	return &hal.Peripherals{
		StatusLED: d.LED,
		GPS:       d.GPS,
		Clock:     d.Clock,
		Rand:      d.Rand,
		Watchdog:  d.Dog,
	}
}
