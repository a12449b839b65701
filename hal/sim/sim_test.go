package sim

import (
	"bytes"
	"testing"
	"time"

	"tracklog-go/errcode"
	"tracklog-go/hal"
)

func TestClockMonotonic(t *testing.T) {
	c := NewClock()
	var last hal.Ticks
	for _, d := range []hal.Ticks{0, 1, 999, 0, 1_000_000, 3} {
		c.Advance(d)
		now := c.Now()
		if now < last {
			t.Fatalf("clock went backward: %d after %d", now, last)
		}
		last = now
	}
	if last != 1_001_003 {
		t.Errorf("final tick = %d, want 1001003", last)
	}
}

func TestClockDelayUntilWakesOnAdvance(t *testing.T) {
	c := NewClock()
	done := make(chan struct{})
	go func() {
		c.DelayUntil(100)
		close(done)
	}()

	c.Advance(50)
	select {
	case <-done:
		t.Fatal("DelayUntil returned before the deadline tick")
	case <-time.After(10 * time.Millisecond):
	}

	c.Advance(50)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DelayUntil did not wake after the clock passed the deadline")
	}
}

func TestClockAutoAdvance(t *testing.T) {
	c := NewClock()
	c.SetAutoAdvance(true)
	c.DelayUntil(500)
	if got := c.Now(); got != 500 {
		t.Errorf("Now() = %d after auto DelayUntil(500)", got)
	}
	// A past deadline must not move the clock back.
	c.DelayUntil(10)
	if got := c.Now(); got != 500 {
		t.Errorf("Now() = %d, clock moved backward", got)
	}
}

func TestTransportFIFO(t *testing.T) {
	tr := NewTransport()
	tr.PushString("abc")
	tr.PushString("def")

	buf := make([]byte, 4)
	n, err := tr.TryRecv(buf)
	if err != nil || n != 4 || string(buf[:n]) != "abcd" {
		t.Fatalf("TryRecv = %d,%q,%v", n, buf[:n], err)
	}
	n, err = tr.TryRecv(buf)
	if err != nil || n != 2 || string(buf[:n]) != "ef" {
		t.Fatalf("TryRecv = %d,%q,%v", n, buf[:n], err)
	}
	n, err = tr.TryRecv(buf)
	if err != nil || n != 0 {
		t.Fatalf("TryRecv on empty queue = %d,%v", n, err)
	}
}

func TestTransportSendClassification(t *testing.T) {
	tr := NewTransport()

	if err := tr.Send(nil); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("empty send: got %v, want invalid_params", err)
	}

	tr.FailNextSends(2, errcode.Busy)
	if err := tr.Send([]byte("x")); errcode.Of(err) != errcode.Busy {
		t.Errorf("scripted failure 1: got %v", err)
	}
	if err := tr.Send([]byte("x")); errcode.Of(err) != errcode.Busy {
		t.Errorf("scripted failure 2: got %v", err)
	}
	if err := tr.Send([]byte("ok")); err != nil {
		t.Errorf("send after failures drained: got %v", err)
	}
	if !bytes.Equal(tr.Outbound(), []byte("ok")) {
		t.Errorf("outbound = %q, failed sends must not enqueue", tr.Outbound())
	}

	tr.SetDisconnected(true)
	if err := tr.Send([]byte("x")); errcode.Of(err) != errcode.Disconnected {
		t.Errorf("disconnected send: got %v", err)
	}
	if _, err := tr.TryRecv(make([]byte, 1)); errcode.Of(err) != errcode.Disconnected {
		t.Errorf("disconnected recv: got %v", err)
	}
}

func TestEntropyDeterministic(t *testing.T) {
	a := NewEntropy(42)
	b := NewEntropy(42)
	for i := 0; i < 64; i++ {
		if av, bv := a.NextU32(), b.NextU32(); av != bv {
			t.Fatalf("sequences diverged at %d: %d != %d", i, av, bv)
		}
	}
	a.Reseed(42)
	first := a.NextU32()
	b2 := NewEntropy(42)
	if first != b2.NextU32() {
		t.Error("Reseed did not restart the sequence")
	}
	// Zero seed must still produce a usable generator.
	z := NewEntropy(0)
	if z.NextU32() == 0 && z.NextU32() == 0 {
		t.Error("zero seed generator stuck at zero")
	}
}

func TestDeviceBundle(t *testing.T) {
	d := NewDevice(1)
	p := d.Peripherals()
	if p.StatusLED.Number() != 25 {
		t.Errorf("status LED pin = %d, want 25", p.StatusLED.Number())
	}
	p.Watchdog.Feed()
	p.Watchdog.Feed()
	if d.Dog.Feeds() != 2 {
		t.Errorf("feeds = %d, want 2", d.Dog.Feeds())
	}
	p.StatusLED.Set(true)
	if !d.LED.Get() {
		t.Error("LED handle and hal view disagree")
	}
}
