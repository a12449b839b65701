package board

import (
	"tinygo.org/x/drivers"

	"tracklog-go/errcode"
	"tracklog-go/hal"
)

// NewDriverTransport adapts any drivers.UART (machine.UART included) to
// hal.Transport, for boards whose port lacks the uartx fork.
func NewDriverTransport(u drivers.UART) hal.Transport { return &driverPort{u: u} }

type driverPort struct {
	u drivers.UART
}

func (p *driverPort) Send(b []byte) error {
	if len(b) == 0 {
		return errcode.InvalidParams
	}
	if _, err := p.u.Write(b); err != nil {
		return &errcode.E{C: errcode.Disconnected, Op: "uart.write", Err: err}
	}
	return nil
}

func (p *driverPort) TryRecv(b []byte) (int, error) {
	n := 0
	for n < len(b) && p.u.Buffered() > 0 {
		if _, err := p.u.Read(b[n : n+1]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
