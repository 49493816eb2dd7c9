// Package bus is a simulated shared I2C bus.
//
// The bus owns nothing but the wire state: who is master, which targets the
// current transfer selected and which direction the transfer runs. TWI
// controllers connect as ports and may act as master or slave; plain devices
// attach at a fixed 7-bit address and only ever answer.
package bus

import (
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/exp/slices"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/nevisdale/twisim/internal/twi"
)

// Device is a target that only ever acts as slave.
type Device interface {
	// Start reports that the device was addressed. Returning false NACKs
	// the address.
	Start(read bool) bool
	Write(b uint8) bool
	Read() uint8
	// Stop ends the transfer (STOP or repeated START).
	Stop()
}

// ExternalPort is the port used by Tx, the scripted master that is not a TWI
// controller.
const ExternalPort = twi.Port(0xFF)

const (
	noOwner     = -1
	maxAddress  = 0x7F
	generalCall = 0x00
)

var (
	ErrBusy         = errors.New("bus: busy")
	ErrAddressTaken = errors.New("bus: address already in use")
	ErrAddress      = errors.New("bus: address out of range")
	ErrNack         = errors.New("bus: no acknowledge")
	ErrArbitration  = errors.New("bus: arbitration lost")
)

// selection is one target selected by the current transfer.
type selection struct {
	dev  Device
	port int // -1 for devices
}

type Bus struct {
	name string
	log  *log.Logger

	ports   []twi.Target
	devices map[uint8]Device

	owner       int
	needAddress bool
	read        bool
	selected    []selection

	// ports whose next byte loses arbitration
	lose map[twi.Port]bool
}

var _ twi.Bus = (*Bus)(nil)
var _ i2c.Bus = (*Bus)(nil)

func New(name string, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bus{
		name:    name,
		log:     logger,
		devices: make(map[uint8]Device),
		owner:   noOwner,
		lose:    make(map[twi.Port]bool),
	}
}

func (b *Bus) String() string {
	return b.name
}

// Attach puts a device on the bus at a 7-bit address.
func (b *Bus) Attach(addr uint8, d Device) error {
	if addr == generalCall || addr > maxAddress {
		return fmt.Errorf("%w: 0x%02X", ErrAddress, addr)
	}
	if _, ok := b.devices[addr]; ok {
		return fmt.Errorf("%w: 0x%02X", ErrAddressTaken, addr)
	}
	b.devices[addr] = d
	return nil
}

// Addresses lists attached devices in ascending order.
func (b *Bus) Addresses() []uint8 {
	addrs := make([]uint8, 0, len(b.devices))
	for a := range b.devices {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}

// Busy reports whether some master holds the bus.
func (b *Bus) Busy() bool {
	return b.owner != noOwner
}

// LoseArbitration makes the next byte from p lose arbitration. The winner is
// not modelled; the bus is simply free afterwards.
func (b *Bus) LoseArbitration(p twi.Port) {
	b.lose[p] = true
}

func (b *Bus) Connect(t twi.Target) twi.Port {
	b.ports = append(b.ports, t)
	return twi.Port(len(b.ports) - 1)
}

func (b *Bus) RequestStart(p twi.Port) twi.StartResult {
	switch b.owner {
	case noOwner:
		b.owner = int(p)
		b.log.Printf("%s: START by %d", b.name, p)
	case int(p):
		b.endTransfer()
		b.log.Printf("%s: repeated START by %d", b.name, p)
	default:
		return twi.StartDeferred
	}
	b.needAddress = true
	b.read = false
	return twi.StartGranted
}

func (b *Bus) RequestStop(p twi.Port) {
	if b.owner != int(p) {
		b.log.Printf("%s: STOP from %d ignored, bus owned by %d", b.name, p, b.owner)
		return
	}
	b.log.Printf("%s: STOP by %d", b.name, p)
	b.release()
}

func (b *Bus) SendByte(p twi.Port, v uint8) twi.Outcome {
	if b.owner != int(p) {
		return twi.OutcomeNack
	}
	if b.lose[p] {
		delete(b.lose, p)
		b.log.Printf("%s: %d lost arbitration sending 0x%02X", b.name, p, v)
		b.release()
		return twi.OutcomeArbitrationLost
	}
	if b.needAddress {
		b.needAddress = false
		return b.address(p, v)
	}
	if b.read {
		b.log.Printf("%s: write of 0x%02X during a read transfer", b.name, v)
		return twi.OutcomeNack
	}

	ack := false
	for _, s := range b.selected {
		if s.dev != nil {
			ack = s.dev.Write(v) || ack
		} else {
			ack = b.ports[s.port].OnReceive(v) || ack
		}
	}
	return outcome(ack)
}

func (b *Bus) RequestByte(p twi.Port, ack bool) (uint8, twi.Outcome) {
	if b.owner != int(p) {
		return 0xFF, twi.OutcomeNack
	}
	if b.lose[p] {
		delete(b.lose, p)
		b.log.Printf("%s: %d lost arbitration in the ACK bit", b.name, p)
		if int(p) < len(b.ports) {
			b.ports[p].OnArbitrationEvent(twi.ArbitrationLost)
		}
		b.release()
		return 0xFF, outcome(ack)
	}
	if !b.read || len(b.selected) == 0 {
		// nobody drives SDA
		return 0xFF, outcome(ack)
	}

	s := b.selected[0]
	var v uint8
	if s.dev != nil {
		v = s.dev.Read()
	} else {
		v = b.ports[s.port].OnTransmit(ack)
	}
	return v, outcome(ack)
}

// address handles the first byte after a START.
func (b *Bus) address(p twi.Port, sla uint8) twi.Outcome {
	addr, read := sla>>1, sla&1 != 0
	b.read = read
	b.selected = b.selected[:0]

	if addr == generalCall {
		if read {
			return twi.OutcomeNack
		}
		for i, t := range b.ports {
			if i != int(p) && t.OnAddressed(sla) == twi.Matched {
				b.selected = append(b.selected, selection{port: i})
			}
		}
		b.log.Printf("%s: general call, %d listeners", b.name, len(b.selected))
		return outcome(len(b.selected) > 0)
	}

	if d, ok := b.devices[addr]; ok {
		if !d.Start(read) {
			return twi.OutcomeNack
		}
		b.selected = append(b.selected, selection{dev: d, port: -1})
		return twi.OutcomeAck
	}
	for i, t := range b.ports {
		if i == int(p) {
			continue
		}
		if t.OnAddressed(sla) == twi.Matched {
			b.selected = append(b.selected, selection{port: i})
			return twi.OutcomeAck
		}
	}
	b.log.Printf("%s: no target at 0x%02X", b.name, addr)
	return twi.OutcomeNack
}

// endTransfer tells the selected targets that the transfer is over and
// returns the ports it notified.
func (b *Bus) endTransfer() []int {
	var notified []int
	for _, s := range b.selected {
		if s.dev != nil {
			s.dev.Stop()
			continue
		}
		b.ports[s.port].OnStop()
		notified = append(notified, s.port)
	}
	b.selected = b.selected[:0]
	return notified
}

// release frees the bus and gives waiting controllers their START.
func (b *Bus) release() {
	notified := b.endTransfer()
	owner := b.owner
	b.owner = noOwner
	b.needAddress = false
	b.read = false
	for i, t := range b.ports {
		if i != owner && !slices.Contains(notified, i) {
			t.OnStop()
		}
	}
}

func outcome(ack bool) twi.Outcome {
	if ack {
		return twi.OutcomeAck
	}
	return twi.OutcomeNack
}

// Tx runs a complete transfer as a scripted master: SLA+W and w, then a
// repeated START, SLA+R and len(r) bytes, then STOP.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > maxAddress {
		return fmt.Errorf("%w: 0x%X", ErrAddress, addr)
	}
	if b.RequestStart(ExternalPort) != twi.StartGranted {
		return ErrBusy
	}
	defer b.RequestStop(ExternalPort)

	sla := uint8(addr) << 1
	if len(w) > 0 || len(r) == 0 {
		if err := b.txByte(sla, "address"); err != nil {
			return err
		}
		for i, v := range w {
			if err := b.txByte(v, fmt.Sprintf("byte %d", i)); err != nil {
				return err
			}
		}
	}
	if len(r) == 0 {
		return nil
	}
	if len(w) > 0 && b.RequestStart(ExternalPort) != twi.StartGranted {
		return fmt.Errorf("%w: repeated START", ErrArbitration)
	}
	if err := b.txByte(sla|1, "address"); err != nil {
		return err
	}
	for i := range r {
		r[i], _ = b.RequestByte(ExternalPort, i != len(r)-1)
		// the ACK bit is ours; only a lost bus shows in ownership
		if b.owner != int(ExternalPort) {
			return fmt.Errorf("%w: byte %d", ErrArbitration, i)
		}
	}
	return nil
}

func (b *Bus) txByte(v uint8, what string) error {
	switch b.SendByte(ExternalPort, v) {
	case twi.OutcomeAck:
		return nil
	case twi.OutcomeArbitrationLost:
		return fmt.Errorf("%w: %s", ErrArbitration, what)
	}
	return fmt.Errorf("%w: %s 0x%02X", ErrNack, what, v)
}

// SetSpeed is accepted and ignored; the bus has no timing.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.log.Printf("%s: speed %s", b.name, f)
	return nil
}
