package app

import (
	"context"

	"tracklog-go/hal"
)

// Run drives the machine until the context is cancelled or the machine
// faults. Control events are drained without blocking at the top of every
// iteration, then the loop sleeps until the next poll and ticks. The
// watchdog is fed once per iteration, so a wedged driver call resets the
// board instead of hanging silently.
func (m *Machine) Run(ctx context.Context, events <-chan Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.per.Watchdog.Feed()

		for drained := false; !drained; {
			select {
			case ev, open := <-events:
				if !open {
					events = nil
					drained = true
					break
				}
				m.Step(ev)
			default:
				drained = true
			}
		}
		if m.State() == StateError {
			return m.Err()
		}

		m.per.Clock.DelayUntil(m.per.Clock.Now() + m.pollDelay())

		if m.Step(EvTick) == StateError {
			return m.Err()
		}
	}
}

// pollDelay spreads polls out with a little entropy so a fleet of trackers
// on one battery bus does not poll in lockstep.
func (m *Machine) pollDelay() hal.Ticks {
	d := m.cfg.PollTicks
	if m.cfg.JitterTicks > 0 {
		d += hal.Ticks(m.per.Rand.NextU32()) % m.cfg.JitterTicks
	}
	return d
}
