package firmware

import (
	"io"
	"log"

	"github.com/nevisdale/twisim/internal/twi"
)

// Slave is an interrupt driven register-pointer target, the usual shape of
// an AVR acting as an I2C peripheral: the first byte of a write sets the
// pointer, further bytes are stored at it, and reads return bytes from it.
// Its ISR method is installed as the handler of the controller's IRQ line.
type Slave struct {
	name string
	log  *log.Logger
	w    window

	Regs [256]uint8
	ptr  uint8

	expectPointer bool

	// GeneralCalls collects data bytes received through the general call
	// address.
	GeneralCalls []uint8
	Stops        int
}

func NewSlave(name string, mem Memory, base uint16, logger *log.Logger) *Slave {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Slave{
		name: name,
		log:  logger,
		w:    newWindow(mem, base),
	}
}

// Listen sets the own address and enables the controller as an
// acknowledging, interrupt driven target.
func (s *Slave) Listen(addr uint8, generalCall bool) {
	twar := addr << 1
	if generalCall {
		twar |= twi.AddressGCE
	}
	s.w.mem.Write8(s.w.twar, twar)
	s.w.mem.Write8(s.w.twcr, s.listening())
}

func (s *Slave) listening() uint8 {
	return twi.ControlTWEN | twi.ControlTWEA | twi.ControlTWIE
}

func (s *Slave) Pointer() uint8 {
	return s.ptr
}

// ISR services one TWINT.
func (s *Slave) ISR(int) {
	st := s.w.status()
	next := s.listening() | twi.ControlTWINT

	switch st {
	case twi.StatusSRAddressAck, twi.StatusSRArbLostAddressAck:
		s.expectPointer = true
	case twi.StatusSRGeneralCallAck, twi.StatusSRArbLostGeneralAck:
		s.expectPointer = false

	case twi.StatusSRDataAck, twi.StatusSRDataNack:
		b := s.w.mem.Read8(s.w.twdr)
		if s.expectPointer {
			s.ptr = b
			s.expectPointer = false
			break
		}
		s.Regs[s.ptr] = b
		s.ptr++
	case twi.StatusSRGeneralDataAck, twi.StatusSRGeneralDataNack:
		s.GeneralCalls = append(s.GeneralCalls, s.w.mem.Read8(s.w.twdr))

	case twi.StatusSTAddressAck, twi.StatusSTArbLostAddressAck, twi.StatusSTDataAck:
		s.w.mem.Write8(s.w.twdr, s.Regs[s.ptr])
		s.ptr++
	case twi.StatusSTDataNack, twi.StatusSTLastDataAck:
		// master is done reading

	case twi.StatusSRStop:
		s.Stops++

	case twi.StatusBusError:
		s.log.Printf("%s: bus error, releasing", s.name)
		next |= twi.ControlTWSTO

	default:
		s.log.Printf("%s: status 0x%02X %s not handled by a target", s.name, uint8(st), st)
	}

	s.w.mem.Write8(s.w.twcr, next)
}
