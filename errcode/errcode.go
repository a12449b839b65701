package errcode

// Code is a stable, short error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Timeout       Code = "timeout"
	Disconnected  Code = "disconnected"
	InvalidParams Code = "invalid_params"

	// Protocol-level conditions reported by the GPS driver.
	Protocol           Code = "protocol"
	InvalidCommand     Code = "gps_invalid_command"
	UnsupportedCommand Code = "gps_unsupported_command"
	ActionFailed       Code = "gps_action_failed"
	BootFailed         Code = "boot_failed"
	ReadTimeout        Code = "read_timeout"
	WriteTimeout       Code = "write_timeout"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Transient reports whether an error is worth retrying at all. Link and
// timing faults can clear on their own; a rejected command cannot.
func Transient(err error) bool {
	switch Of(err) {
	case Busy, Timeout, ReadTimeout, WriteTimeout, Protocol, Disconnected:
		return true
	}
	return false
}
