// Package hal defines the capability contracts the application logic is
// written against. Exactly two implementations exist: the board binding
// (package board, MCU builds) and the in-memory simulation (package sim,
// host builds and tests). Application code must not import either directly.
package hal

// Ticks is a monotonic microsecond count since boot. It never goes backward.
type Ticks uint64

// Clock is the sole time source available to application code.
//
// DelayUntil suspends the caller until Now() >= t. It is one of the two
// suspension points in the system (the other is polling Transport.TryRecv).
// DelayUntil with a tick already in the past returns immediately.
type Clock interface {
	Now() Ticks
	DelayUntil(t Ticks)
}

// Sleep suspends on c for d ticks.
func Sleep(c Clock, d Ticks) { c.DelayUntil(c.Now() + d) }

// Pin is a digital output line. Set and Get never block and cannot fail;
// ConfigureOutput is called once by the adapter's own construction code.
type Pin interface {
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
	Number() int
}

// Transport is a byte-stream link to a peripheral (the GPS module's UART on
// the board, a pair of in-memory queues in the simulation).
//
// Send either queues the whole buffer or fails with a classified errcode
// error (errcode.Busy, errcode.WriteTimeout, errcode.Disconnected).
// Sending an empty buffer is a contract violation and fails with
// errcode.InvalidParams. Send never panics and never blocks indefinitely.
//
// TryRecv is a non-blocking poll: it copies up to len(p) pending bytes into
// p and returns how many were copied. n == 0 with a nil error means no data
// is pending. Bytes are delivered in the order the peripheral produced them.
type Transport interface {
	Send(p []byte) error
	TryRecv(p []byte) (int, error)
}

// Entropy is a source of random words. The board draws from the hardware
// RNG; the simulation uses a seeded generator so runs replay exactly.
// Callers must not assume cryptographic strength.
type Entropy interface {
	NextU32() uint32
}

// Watchdog must be fed periodically on the board or the MCU resets.
// The simulated watchdog only counts feeds.
type Watchdog interface {
	Feed()
}

// Peripherals bundles one concrete adapter's capabilities. The entry point
// constructs exactly one bundle and lends it to the control loop for the
// lifetime of the run; nothing else may hold a reference.
type Peripherals struct {
	StatusLED Pin
	GPS       Transport
	Clock     Clock
	Rand      Entropy
	Watchdog  Watchdog
}
