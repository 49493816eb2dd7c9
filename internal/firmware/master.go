package firmware

import (
	"fmt"
	"io"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/nevisdale/twisim/internal/twi"
)

const (
	// CPUClock is the core clock the bit rate is derived from.
	CPUClock = 16 * physic.MegaHertz

	defaultSpin = 1000
	maxAddress  = 0x7F
)

// Master runs bus transactions through a TWI register window by polling
// TWINT. It implements i2c.Bus so periph device code can sit on top of it.
type Master struct {
	name string
	log  *log.Logger
	w    window

	// Spin is the number of TWCR polls before a step times out.
	Spin int

	speed physic.Frequency
	twbr  uint8

	last twi.Status
}

var _ i2c.Bus = (*Master)(nil)

func NewMaster(name string, mem Memory, base uint16, logger *log.Logger) *Master {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Master{
		name: name,
		log:  logger,
		w:    newWindow(mem, base),
		Spin: defaultSpin,
		last: twi.StatusNoInfo,
	}
}

func (m *Master) String() string {
	return m.name
}

// control writes TWCR with TWEN and bits.
func (m *Master) control(bits uint8) {
	m.w.mem.Write8(m.w.twcr, twi.ControlTWEN|bits)
}

// step clears TWINT with extra bits set and waits for the next status.
func (m *Master) step(extra uint8) (twi.Status, error) {
	m.control(twi.ControlTWINT | extra)
	for i := 0; i < m.Spin; i++ {
		if m.w.interrupt() {
			m.last = m.w.status()
			return m.last, nil
		}
	}
	m.last = twi.StatusNoInfo
	return m.last, ErrTimeout
}

func (m *Master) expect(s twi.Status, err error, want ...twi.Status) error {
	if err != nil {
		return err
	}
	for _, w := range want {
		if s == w {
			return nil
		}
	}
	switch s {
	case twi.StatusArbitrationLost:
		return ErrArbitrationLost
	case twi.StatusBusError:
		return ErrBusError
	}
	return &StatusError{Want: want, Got: s}
}

func (m *Master) start() error {
	s, err := m.step(twi.ControlTWSTA)
	return m.expect(s, err, twi.StatusStart, twi.StatusRepeatedStart)
}

func (m *Master) address(addr uint16, read bool) error {
	sla := uint8(addr) << 1
	want := twi.StatusMTAddressAck
	nack := twi.StatusMTAddressNack
	if read {
		sla |= 1
		want, nack = twi.StatusMRAddressAck, twi.StatusMRAddressNack
	}
	m.w.mem.Write8(m.w.twdr, sla)
	s, err := m.step(0)
	if err == nil && s == nack {
		return fmt.Errorf("%w: 0x%02X", ErrAddressNack, addr)
	}
	return m.expect(s, err, want)
}

func (m *Master) writeByte(b uint8) error {
	m.w.mem.Write8(m.w.twdr, b)
	s, err := m.step(0)
	if err == nil && s == twi.StatusMTDataNack {
		return ErrDataNack
	}
	return m.expect(s, err, twi.StatusMTDataAck)
}

func (m *Master) readByte(ack bool) (uint8, error) {
	var ea uint8
	want := twi.StatusMRDataNack
	if ack {
		ea, want = twi.ControlTWEA, twi.StatusMRDataAck
	}
	s, err := m.step(ea)
	if err := m.expect(s, err, want); err != nil {
		return 0, err
	}
	return m.w.mem.Read8(m.w.twdr), nil
}

// stop ends the transaction in whatever way the last status allows.
func (m *Master) stop() {
	switch m.last {
	case twi.StatusArbitrationLost:
		// the bus is already gone, only leave the master state
		m.control(twi.ControlTWINT)
	case twi.StatusNoInfo:
		// a START still waiting for the bus is withdrawn without TWINT
		m.control(twi.ControlTWSTO)
	default:
		m.control(twi.ControlTWINT | twi.ControlTWSTO)
	}
	m.last = twi.StatusNoInfo
}

// Tx writes w and then reads len(r) bytes after a repeated START. An empty
// w and r probes the address.
func (m *Master) Tx(addr uint16, w, r []byte) error {
	if addr > maxAddress {
		return fmt.Errorf("firmware: %s: address 0x%X out of range", m.name, addr)
	}
	err := m.tx(addr, w, r)
	m.stop()
	if err != nil {
		m.log.Printf("%s: tx 0x%02X: %v", m.name, addr, err)
		return fmt.Errorf("%s: %w", m.name, err)
	}
	return nil
}

func (m *Master) tx(addr uint16, w, r []byte) error {
	if err := m.start(); err != nil {
		return err
	}
	if len(w) > 0 || len(r) == 0 {
		if err := m.address(addr, false); err != nil {
			return err
		}
		for _, b := range w {
			if err := m.writeByte(b); err != nil {
				return err
			}
		}
		if len(r) == 0 {
			return nil
		}
		if err := m.start(); err != nil {
			return err
		}
	}
	if err := m.address(addr, true); err != nil {
		return err
	}
	for i := range r {
		b, err := m.readByte(i != len(r)-1)
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Scan probes every 7-bit address and returns those that acknowledge.
func (m *Master) Scan() []uint16 {
	var found []uint16
	for a := uint16(0x08); a < 0x78; a++ {
		if m.Tx(a, nil, nil) == nil {
			found = append(found, a)
		}
	}
	return found
}

// SetSpeed picks the smallest prescaler for which the bit rate divider fits
// in eight bits and writes it to TWSR. The divider itself lives in TWBR,
// which this board does not have, so it is only kept for reporting.
func (m *Master) SetSpeed(f physic.Frequency) error {
	if f <= 0 || f > CPUClock/16 {
		return fmt.Errorf("%w: %s", ErrSpeed, f)
	}
	div := int64(CPUClock/f) - 16
	for ps := uint8(0); ps < 4; ps++ {
		twbr := div / (2 << (2 * ps))
		if twbr > 0xFF {
			continue
		}
		m.w.mem.Write8(m.w.twsr, ps)
		m.twbr = uint8(twbr)
		m.speed = f
		m.log.Printf("%s: %s, prescaler %d, TWBR %d", m.name, f, 1<<(2*ps), twbr)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSpeed, f)
}

// Speed returns the last speed set and the matching TWBR value.
func (m *Master) Speed() (physic.Frequency, uint8) {
	return m.speed, m.twbr
}
