package heartbeat

import (
	"context"
	"time"

	"tracklog-go/bus"
	"tracklog-go/types"
)

var topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			println("Info:", t.Format("15:04:05"), "Heartbeat")
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(*types.HeartbeatConfig)
			if !ok || cfg.IntervalSecs == 0 {
				continue
			}
			tick.Reset(time.Duration(cfg.IntervalSecs) * time.Second)
			println("Info: heartbeat interval set to", cfg.IntervalSecs, "seconds")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
