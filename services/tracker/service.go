// Package tracker runs the control machine as a bus service: control verbs
// in, retained state and status out.
package tracker

import (
	"context"

	"tracklog-go/app"
	"tracklog-go/bus"
	"tracklog-go/gps"
	"tracklog-go/hal"
	"tracklog-go/types"
	"tracklog-go/x/timex"
)

var (
	topicConfig  = bus.Topic{"config", "tracker"}
	topicControl = bus.Topic{"tracker", "control", "+"}
	topicState   = bus.Topic{"tracker", "state"}
	topicStatus  = bus.Topic{"tracker", "status"}
	topicPoints  = bus.Topic{"tracker", "points"}
)

type Service struct {
	log app.Logger
	per *hal.Peripherals
}

func New(log app.Logger, per *hal.Peripherals) *Service {
	return &Service{log: log, per: per}
}

// Start launches the service loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)
	ctlSub := conn.Subscribe(topicControl)
	defer conn.Unsubscribe(ctlSub)

	// A retained config is already queued by the time Subscribe returns.
	cfg := app.Config{}
	select {
	case msg := <-cfgSub.Channel():
		cfg = configFrom(msg.Payload)
	default:
	}

	m := app.NewMachine(cfg, s.log, s.per)
	m.OnStatus = func(st gps.LoggerStatus) {
		conn.Publish(conn.NewMessage(topicStatus, &types.LoggerStatus{
			IntervalSecs: st.Interval,
			On:           st.On,
			Records:      st.RecordCount,
			PercentFull:  uint8(st.PercentFull),
		}, true))
	}
	m.OnPoint = func(_ int, p gps.LoggedPoint) {
		conn.Publish(conn.NewMessage(topicPoints, &types.Point{
			TS:      p.Timestamp,
			Fix:     p.Fix,
			Lat:     p.Lat,
			Lon:     p.Lon,
			HeightM: p.Height,
		}, false))
	}
	m.Trace = func(from app.State, ev app.Event, to app.State) {
		if to == from {
			return
		}
		publishState(conn, m, to)
	}
	publishState(conn, m, m.State())

	events := make(chan app.Event, 8)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, events) }()

	for {
		select {
		case <-ctx.Done():
			println("Info: tracker service stopping")
			return
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				println("Error: tracker loop exited:", err.Error())
			}
			return
		case msg := <-ctlSub.Channel():
			s.handleControl(conn, events, msg)
		case msg := <-cfgSub.Channel():
			// Machine parameters are fixed at boot; a mid-run change
			// applies on the next power cycle.
			println("Info: tracker config updated, restart to apply")
			_ = msg
		}
	}
}

func (s *Service) handleControl(conn *bus.Connection, events chan<- app.Event, msg *bus.Message) {
	verb := msg.Topic[len(msg.Topic)-1]
	ev, ok := eventForVerb(verb)
	if !ok {
		println("Error: unknown control verb:", verb)
		conn.Reply(msg, &types.ErrorReply{Error: "unknown verb: " + verb}, false)
		return
	}
	select {
	case events <- ev:
		conn.Reply(msg, &types.OKReply{OK: true}, false)
	default:
		conn.Reply(msg, &types.ErrorReply{Error: "control queue full"}, false)
	}
}

func eventForVerb(verb string) (app.Event, bool) {
	switch verb {
	case types.VerbStart:
		return app.EvStart, true
	case types.VerbStop:
		return app.EvStop, true
	case types.VerbErase:
		return app.EvErase, true
	case types.VerbDump:
		return app.EvDump, true
	}
	return 0, false
}

func publishState(conn *bus.Connection, m *app.Machine, st app.State) {
	payload := &types.TrackerState{Mode: st.String(), TS: timex.NowMs()}
	if err := m.Err(); err != nil {
		payload.Error = err.Error()
	}
	conn.Publish(conn.NewMessage(topicState, payload, true))
}

func configFrom(payload any) app.Config {
	var tc types.TrackerConfig
	switch v := payload.(type) {
	case types.TrackerConfig:
		tc = v
	case *types.TrackerConfig:
		tc = *v
	default:
		return app.Config{}
	}
	return app.Config{
		LogIntervalSecs: tc.LogIntervalSecs,
		PollTicks:       hal.Ticks(tc.PollMs) * 1000,
		JitterTicks:     hal.Ticks(tc.JitterMs) * 1000,
		RetryBudget:     tc.RetryBudget,
	}
}
