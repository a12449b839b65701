// Package app holds the tracker control logic: a state machine over the
// hal contracts and the gps driver. It never imports a board package, so
// the identical logic runs on silicon and under the simulated adapter.
package app

import (
	"tracklog-go/errcode"
	"tracklog-go/gps"
	"tracklog-go/hal"
)

// State is the tracker's mode. The set is closed; Step never produces a
// value outside it.
type State uint8

const (
	StateBooting State = iota
	StateIdle
	StateLogging
	StateDumping
	StateError
)

func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateIdle:
		return "idle"
	case StateLogging:
		return "logging"
	case StateDumping:
		return "dumping"
	case StateError:
		return "error"
	}
	return "invalid"
}

// Event is an input to the state machine. EvTick is the periodic poll; the
// rest arrive from the control topic.
type Event uint8

const (
	EvTick Event = iota
	EvStart
	EvStop
	EvErase
	EvDump

	eventCount
)

func (e Event) String() string {
	switch e {
	case EvTick:
		return "tick"
	case EvStart:
		return "start"
	case EvStop:
		return "stop"
	case EvErase:
		return "erase"
	case EvDump:
		return "dump"
	}
	return "invalid"
}

// ErrUnknownEvent faults the machine: an event outside the closed set means
// the caller and the machine disagree about the protocol.
var ErrUnknownEvent = errcode.Code("unknown_event")

// Logger is the slice of the gps driver the machine needs. *gps.Driver
// satisfies it; tests substitute a scripted fake.
type Logger interface {
	EnsureReady() error
	ConfigureLogInterval(secs uint32) error
	StartLogging() error
	StopLogging() error
	EraseLogs() error
	LoggerStatus() (gps.LoggerStatus, error)
	ReadLogs(onPoint func(estimate int, p gps.LoggedPoint)) error
}

// Config tunes the control loop. Zero values take the defaults.
type Config struct {
	LogIntervalSecs uint32    // LOCUS record period
	PollTicks       hal.Ticks // base delay between status polls
	JitterTicks     hal.Ticks // random extra delay per poll
	RetryBudget     int       // consecutive failures tolerated before faulting
}

const (
	defaultLogIntervalSecs = 60
	defaultPollTicks       = hal.Ticks(5_000_000)
	defaultJitterTicks     = hal.Ticks(1_000_000)
	defaultRetryBudget     = 5
)

func (c *Config) setDefaults() {
	if c.LogIntervalSecs == 0 {
		c.LogIntervalSecs = defaultLogIntervalSecs
	}
	if c.PollTicks == 0 {
		c.PollTicks = defaultPollTicks
	}
	if c.JitterTicks == 0 {
		c.JitterTicks = defaultJitterTicks
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = defaultRetryBudget
	}
}

// Machine is the tracker state machine. Step is total: every state and
// event pair is handled, and unknown events fault to StateError rather
// than being dropped. Not safe for concurrent use; Run is the only caller
// outside tests.
type Machine struct {
	cfg   Config
	log   Logger
	per   *hal.Peripherals
	state State

	failures int
	lastErr  error

	// OnStatus fires after each successful status poll. OnPoint fires per
	// record during a dump. Trace fires after every step. All optional.
	OnStatus func(st gps.LoggerStatus)
	OnPoint  func(estimate int, p gps.LoggedPoint)
	Trace    func(from State, ev Event, to State)
}

func NewMachine(cfg Config, log Logger, per *hal.Peripherals) *Machine {
	cfg.setDefaults()
	return &Machine{cfg: cfg, log: log, per: per, state: StateBooting}
}

func (m *Machine) State() State { return m.state }

// Err reports what faulted the machine, nil unless in StateError.
func (m *Machine) Err() error {
	if m.state != StateError {
		return nil
	}
	return m.lastErr
}

// Step feeds one event through the transition function and returns the
// resulting state.
func (m *Machine) Step(ev Event) State {
	from := m.state
	to := m.dispatch(ev)
	m.state = to
	if to == StateError && from != StateError {
		println("Error: tracker faulted in", from.String(), "on", ev.String())
		m.per.StatusLED.Set(true)
	}
	if m.Trace != nil {
		m.Trace(from, ev, to)
	}
	return to
}

func (m *Machine) dispatch(ev Event) State {
	if ev >= eventCount {
		m.lastErr = ErrUnknownEvent
		return StateError
	}
	if m.state == StateError {
		// Faulted is absorbing; a power cycle is the way out.
		return StateError
	}

	switch m.state {
	case StateBooting:
		return m.stepBooting(ev)
	case StateIdle:
		return m.stepIdle(ev)
	case StateLogging:
		return m.stepLogging(ev)
	case StateDumping:
		return m.stepDumping(ev)
	}
	m.lastErr = ErrUnknownEvent
	return StateError
}

func (m *Machine) stepBooting(ev Event) State {
	if ev != EvTick {
		// Not ready for control traffic yet.
		return StateBooting
	}
	if err := m.log.EnsureReady(); err != nil {
		return m.fail(StateBooting, err)
	}
	if err := m.log.ConfigureLogInterval(m.cfg.LogIntervalSecs); err != nil {
		return m.fail(StateBooting, err)
	}
	m.ok()
	println("Info: tracker ready")
	return StateIdle
}

func (m *Machine) stepIdle(ev Event) State {
	switch ev {
	case EvTick:
		st, err := m.log.LoggerStatus()
		if err != nil {
			return m.fail(StateIdle, err)
		}
		m.ok()
		if m.OnStatus != nil {
			m.OnStatus(st)
		}
		if st.On {
			// The logger survives module restarts; follow it.
			return StateLogging
		}
		return StateIdle
	case EvStart:
		if err := m.log.StartLogging(); err != nil {
			return m.fail(StateIdle, err)
		}
		m.ok()
		return StateLogging
	case EvStop:
		return StateIdle
	case EvErase:
		if err := m.log.EraseLogs(); err != nil {
			return m.fail(StateIdle, err)
		}
		m.ok()
		return StateIdle
	case EvDump:
		return StateDumping
	}
	m.lastErr = ErrUnknownEvent
	return StateError
}

func (m *Machine) stepLogging(ev Event) State {
	switch ev {
	case EvTick:
		st, err := m.log.LoggerStatus()
		if err != nil {
			return m.fail(StateLogging, err)
		}
		m.ok()
		if m.OnStatus != nil {
			m.OnStatus(st)
		}
		if !st.On {
			return StateIdle
		}
		return StateLogging
	case EvStart:
		return StateLogging
	case EvStop:
		if err := m.log.StopLogging(); err != nil {
			return m.fail(StateLogging, err)
		}
		m.ok()
		return StateIdle
	case EvErase:
		// The flash cannot be erased while recording to it.
		return StateLogging
	case EvDump:
		if err := m.log.StopLogging(); err != nil {
			return m.fail(StateLogging, err)
		}
		m.ok()
		return StateDumping
	}
	m.lastErr = ErrUnknownEvent
	return StateError
}

func (m *Machine) stepDumping(ev Event) State {
	if ev != EvTick {
		// A dump in flight ignores control traffic.
		return StateDumping
	}
	err := m.log.ReadLogs(func(estimate int, p gps.LoggedPoint) {
		if m.OnPoint != nil {
			m.OnPoint(estimate, p)
		}
	})
	if err != nil {
		return m.fail(StateDumping, err)
	}
	m.ok()
	return StateIdle
}

// fail counts a consecutive failure against the retry budget. Transient
// errors keep the machine in place until the budget runs out; anything
// else faults at once, since the driver has already retried it on the
// wire and the same command will keep being rejected.
func (m *Machine) fail(stay State, err error) State {
	m.lastErr = err
	if !errcode.Transient(err) {
		return StateError
	}
	m.failures++
	if m.failures > m.cfg.RetryBudget {
		return StateError
	}
	println("Error: tracker op failed, will retry:", err.Error())
	return stay
}

// ok resets the failure streak and blinks the status LED.
func (m *Machine) ok() {
	m.failures = 0
	m.lastErr = nil
	m.per.StatusLED.Toggle()
}
