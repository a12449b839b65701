package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"tracklog-go/bus"
	"tracklog-go/gps"
	"tracklog-go/hal/sim"
	"tracklog-go/services/config"
	"tracklog-go/types"
)

type fakeLogger struct {
	mu       sync.Mutex
	status   gps.LoggerStatus
	points   []gps.LoggedPoint
	starts   int
	interval uint32
}

func (f *fakeLogger) EnsureReady() error { return nil }
func (f *fakeLogger) StopLogging() error { return nil }
func (f *fakeLogger) EraseLogs() error   { return nil }

func (f *fakeLogger) ConfigureLogInterval(secs uint32) error {
	f.mu.Lock()
	f.interval = secs
	f.mu.Unlock()
	return nil
}

func (f *fakeLogger) StartLogging() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	return nil
}

func (f *fakeLogger) LoggerStatus() (gps.LoggerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeLogger) ReadLogs(onPoint func(int, gps.LoggedPoint)) error {
	f.mu.Lock()
	pts := f.points
	f.mu.Unlock()
	for _, p := range pts {
		onPoint(len(pts), p)
	}
	return nil
}

func startService(t *testing.T, f *fakeLogger) (*bus.Bus, context.CancelFunc) {
	t.Helper()
	dev := sim.NewDevice(1)
	dev.Clock.SetAutoAdvance(true)

	b := bus.NewBus(16)
	boot := b.NewConnection("test-setup")
	boot.Publish(boot.NewMessage(bus.Topic{"config", "tracker"},
		&types.TrackerConfig{LogIntervalSecs: 30, PollMs: 5}, true))

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(f, dev.Peripherals())
	if err := svc.Start(ctx, b.NewConnection("tracker")); err != nil {
		t.Fatal(err)
	}
	return b, cancel
}

func waitForMode(t *testing.T, sub *bus.Subscription, mode string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			st, ok := msg.Payload.(*types.TrackerState)
			if !ok {
				t.Fatalf("unexpected state payload: %#v", msg.Payload)
			}
			if st.Mode == mode {
				return
			}
		case <-deadline:
			t.Fatalf("never reached mode %q", mode)
		}
	}
}

func TestServiceReachesIdle(t *testing.T) {
	b, cancel := startService(t, &fakeLogger{})
	defer cancel()

	conn := b.NewConnection("observer")
	sub := conn.Subscribe(bus.Topic{"tracker", "state"})
	defer conn.Unsubscribe(sub)

	waitForMode(t, sub, "idle")
}

func TestControlStart(t *testing.T) {
	f := &fakeLogger{}
	b, cancel := startService(t, f)
	defer cancel()

	conn := b.NewConnection("operator")
	stateSub := conn.Subscribe(bus.Topic{"tracker", "state"})
	defer conn.Unsubscribe(stateSub)
	waitForMode(t, stateSub, "idle")

	ctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	reply, err := conn.RequestWait(ctx,
		conn.NewMessage(bus.Topic{"tracker", "control", "start"}, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reply.Payload.(*types.OKReply); !ok {
		t.Fatalf("unexpected reply: %#v", reply.Payload)
	}

	waitForMode(t, stateSub, "logging")
	f.mu.Lock()
	starts := f.starts
	f.mu.Unlock()
	if starts != 1 {
		t.Errorf("StartLogging called %d times", starts)
	}
}

// Services start in the entry point's order: config first, tracker second.
// The tracker must see the retained config on its first subscribe, not
// whatever the defaults happen to be.
func TestConfigAppliedFromConfigService(t *testing.T) {
	prev := config.EmbeddedConfigLookup
	config.EmbeddedConfigLookup = func(string) (map[string]any, bool) {
		return map[string]any{
			"tracker": &types.TrackerConfig{LogIntervalSecs: 7, PollMs: 5},
		}, true
	}
	defer func() { config.EmbeddedConfigLookup = prev }()

	dev := sim.NewDevice(1)
	dev.Clock.SetAutoAdvance(true)
	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = context.WithValue(ctx, config.CtxDeviceKey, "pico")

	f := &fakeLogger{}
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	if err := New(f, dev.Peripherals()).Start(ctx, b.NewConnection("tracker")); err != nil {
		t.Fatal(err)
	}

	conn := b.NewConnection("observer")
	sub := conn.Subscribe(bus.Topic{"tracker", "state"})
	defer conn.Unsubscribe(sub)
	waitForMode(t, sub, "idle")

	f.mu.Lock()
	interval := f.interval
	f.mu.Unlock()
	if interval != 7 {
		t.Errorf("configured interval = %d, want 7", interval)
	}
}

func TestControlUnknownVerb(t *testing.T) {
	b, cancel := startService(t, &fakeLogger{})
	defer cancel()

	conn := b.NewConnection("operator")
	ctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	reply, err := conn.RequestWait(ctx,
		conn.NewMessage(bus.Topic{"tracker", "control", "reboot"}, nil, false))
	if err != nil {
		t.Fatal(err)
	}
	er, ok := reply.Payload.(*types.ErrorReply)
	if !ok || er.OK {
		t.Fatalf("unexpected reply: %#v", reply.Payload)
	}
}

func TestDumpPublishesPoints(t *testing.T) {
	f := &fakeLogger{points: []gps.LoggedPoint{
		{Timestamp: 1589808000, Fix: 2, Height: 30},
		{Timestamp: 1589808060, Fix: 2, Height: 31},
	}}
	b, cancel := startService(t, f)
	defer cancel()

	conn := b.NewConnection("operator")
	stateSub := conn.Subscribe(bus.Topic{"tracker", "state"})
	defer conn.Unsubscribe(stateSub)
	pointSub := conn.Subscribe(bus.Topic{"tracker", "points"})
	defer conn.Unsubscribe(pointSub)
	waitForMode(t, stateSub, "idle")

	conn.Publish(conn.NewMessage(bus.Topic{"tracker", "control", "dump"}, nil, false))

	var got []*types.Point
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-pointSub.Channel():
			got = append(got, msg.Payload.(*types.Point))
		case <-deadline:
			t.Fatalf("only %d points arrived", len(got))
		}
	}
	if got[0].TS != 1589808000 || got[1].TS != 1589808060 {
		t.Errorf("points out of order: %v %v", got[0], got[1])
	}
}

func TestStatusRetained(t *testing.T) {
	f := &fakeLogger{status: gps.LoggerStatus{Interval: 30, RecordCount: 7, PercentFull: 3}}
	b, cancel := startService(t, f)
	defer cancel()

	conn := b.NewConnection("observer")
	stateSub := conn.Subscribe(bus.Topic{"tracker", "state"})
	waitForMode(t, stateSub, "idle")
	conn.Unsubscribe(stateSub)

	// Give the first status poll time to land, then read the retained copy.
	deadline := time.After(5 * time.Second)
	for {
		sub := conn.Subscribe(bus.Topic{"tracker", "status"})
		select {
		case msg := <-sub.Channel():
			st := msg.Payload.(*types.LoggerStatus)
			if st.Records != 7 || st.PercentFull != 3 {
				t.Fatalf("status = %+v", st)
			}
			conn.Unsubscribe(sub)
			return
		case <-time.After(10 * time.Millisecond):
			conn.Unsubscribe(sub)
		}
		select {
		case <-deadline:
			t.Fatal("no retained status")
		default:
		}
	}
}
