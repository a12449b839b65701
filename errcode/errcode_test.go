package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	if Of(nil) != OK {
		t.Errorf("Of(nil) = %v, want OK", Of(nil))
	}
	if Of(Busy) != Busy {
		t.Errorf("Of(Busy) = %v, want Busy", Of(Busy))
	}
	wrapped := &E{C: Timeout, Op: "send"}
	if Of(wrapped) != Timeout {
		t.Errorf("Of(&E{Timeout}) = %v, want Timeout", Of(wrapped))
	}
	if Of(errors.New("boom")) != Error {
		t.Errorf("Of(plain error) = %v, want Error", Of(errors.New("boom")))
	}
}

func TestEUnwrap(t *testing.T) {
	cause := Busy
	e := &E{C: WriteTimeout, Op: "send", Err: cause}
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if e.Error() != "write_timeout" {
		t.Errorf("Error() = %q", e.Error())
	}
	e.Msg = "uart0 stalled"
	if e.Error() != "write_timeout: uart0 stalled" {
		t.Errorf("Error() with msg = %q", e.Error())
	}
}

func TestTransient(t *testing.T) {
	for _, c := range []Code{Busy, Timeout, ReadTimeout, WriteTimeout, Protocol, Disconnected} {
		if !Transient(c) {
			t.Errorf("Transient(%v) = false, want true", c)
		}
	}
	for _, c := range []Code{InvalidParams, InvalidCommand, BootFailed} {
		if Transient(c) {
			t.Errorf("Transient(%v) = true, want false", c)
		}
	}
}
