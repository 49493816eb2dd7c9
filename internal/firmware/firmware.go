// Package firmware holds TWI drivers written the way AVR firmware drives the
// peripheral: nothing but byte reads and writes of the register window.
package firmware

import (
	"errors"
	"fmt"

	"github.com/nevisdale/twisim/internal/twi"
)

// Memory is the CPU view of the data space.
type Memory interface {
	Read8(addr uint16) uint8
	Write8(addr uint16, data uint8)
}

var (
	ErrAddressNack     = errors.New("firmware: address not acknowledged")
	ErrDataNack        = errors.New("firmware: data not acknowledged")
	ErrArbitrationLost = errors.New("firmware: arbitration lost")
	ErrBusError        = errors.New("firmware: bus error")
	ErrTimeout         = errors.New("firmware: timed out waiting for TWINT")
	ErrSpeed           = errors.New("firmware: speed out of range")
)

// StatusError is a status code the driver did not expect at that point.
type StatusError struct {
	Want []twi.Status
	Got  twi.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("firmware: unexpected status 0x%02X %s, want %v", uint8(e.Got), e.Got, e.Want)
}

// window resolves the register addresses of one TWI instance.
type window struct {
	mem                    Memory
	twsr, twar, twdr, twcr uint16
}

func newWindow(mem Memory, base uint16) window {
	off := func(r twi.Register) uint16 {
		o, ok := twi.LayoutV1.Offset(r)
		if !ok {
			panic(fmt.Sprintf("firmware: %s missing from the register layout", r))
		}
		return base + o
	}
	return window{
		mem:  mem,
		twsr: off(twi.RegStatus),
		twar: off(twi.RegAddress),
		twdr: off(twi.RegData),
		twcr: off(twi.RegControl),
	}
}

func (w window) status() twi.Status {
	return twi.Status(w.mem.Read8(w.twsr) & 0xF8)
}

func (w window) interrupt() bool {
	return w.mem.Read8(w.twcr)&twi.ControlTWINT != 0
}
