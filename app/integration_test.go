package app

import (
	"strings"
	"testing"

	"tracklog-go/errcode"
	"tracklog-go/gps"
	"tracklog-go/hal/sim"
)

// wireRig drives the machine through the real gps driver over the simulated
// transport, with a scripted module on the far end.
func wireRig(t *testing.T, cfg Config) (*Machine, *sim.Device) {
	t.Helper()
	dev := sim.NewDevice(7)
	dev.Clock.SetAutoAdvance(true)
	dev.GPS.OnSend(func(p []byte) {
		s := string(p)
		switch {
		case strings.Contains(s, "PMTK605"):
			dev.GPS.PushString("$PMTK705,AXN_1.3,2102,ABCD,*11\r\n")
		case strings.Contains(s, "PMTK187"):
			dev.GPS.PushString("$PMTK001,187,3*3E\r\n")
		case strings.Contains(s, "PMTK183"):
			dev.GPS.PushString("$PMTKLOG,456,0,11,31,60,0,0,1,12,0*47\r\n")
		case strings.Contains(s, "PMTK185"):
			dev.GPS.PushString("$PMTK001,185,3*3C\r\n")
		case strings.Contains(s, "PMTK184"):
			dev.GPS.PushString("$PMTK001,184,3*3D\r\n")
		case strings.Contains(s, "PMTK622"):
			dev.GPS.PushString("$PMTKLOX,0,1*58\r\n")
			dev.GPS.PushString("$PMTKLOX,1,0,808BC25E,02BE014E,423C4E11,BE1E00E5*5A\r\n")
			dev.GPS.PushString("$PMTKLOX,2*47\r\n")
		}
	})
	drv := gps.New(dev.GPS, dev.Clock, true)
	return NewMachine(cfg, drv, dev.Peripherals()), dev
}

func TestWireHappyPath(t *testing.T) {
	m, _ := wireRig(t, Config{LogIntervalSecs: 30})

	if got := m.Step(EvTick); got != StateIdle {
		t.Fatalf("after boot: %v", got)
	}
	if got := m.Step(EvStart); got != StateLogging {
		t.Fatalf("after start: %v", got)
	}
	if got := m.Step(EvStop); got != StateIdle {
		t.Fatalf("after stop: %v", got)
	}

	var points []gps.LoggedPoint
	m.OnPoint = func(_ int, p gps.LoggedPoint) { points = append(points, p) }
	m.Step(EvDump)
	if got := m.Step(EvTick); got != StateIdle {
		t.Fatalf("after dump: %v", got)
	}
	if len(points) != 1 || points[0].Timestamp != 1589808000 {
		t.Errorf("points = %v", points)
	}
}

// Control events are handled strictly in arrival order.
func TestWireEventOrder(t *testing.T) {
	m, _ := wireRig(t, Config{})

	var evs []Event
	m.Trace = func(_ State, ev Event, _ State) { evs = append(evs, ev) }

	seq := []Event{EvTick, EvStart, EvStop, EvErase, EvDump, EvTick}
	for _, ev := range seq {
		m.Step(ev)
	}
	if len(evs) != len(seq) {
		t.Fatalf("trace = %v", evs)
	}
	for i := range seq {
		if evs[i] != seq[i] {
			t.Fatalf("trace = %v, want %v", evs, seq)
		}
	}
}

// A short burst of transport failures is absorbed by the driver's own
// retries; the machine never notices.
func TestWireRecoversFromTransientSendFailures(t *testing.T) {
	m, dev := wireRig(t, Config{})
	m.Step(EvTick) // boot

	dev.GPS.FailNextSends(3, errcode.Disconnected)
	if got := m.Step(EvTick); got != StateIdle && got != StateLogging {
		t.Fatalf("after transient failures: %v", got)
	}
	if m.Err() != nil {
		t.Errorf("unexpected fault: %v", m.Err())
	}
}

// A dead transport exhausts the budget and faults the machine.
func TestWireFaultsWhenTransportDies(t *testing.T) {
	m, dev := wireRig(t, Config{RetryBudget: 2})
	m.Step(EvTick) // boot

	dev.GPS.SetDisconnected(true)
	var got State
	for i := 0; i < 3; i++ {
		got = m.Step(EvTick)
	}
	if got != StateError {
		t.Fatalf("state = %v", got)
	}
	if errcode.Of(m.Err()) != errcode.Disconnected {
		t.Errorf("Err() = %v", m.Err())
	}
}
