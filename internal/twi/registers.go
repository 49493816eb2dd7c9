package twi

// TWCR bits
const (
	ControlTWIE  = uint8(1 << iota) // interrupt enable
	_                               // reserved, reads as zero
	ControlTWEN                     // interface enable
	ControlTWWC                     // write collision flag
	ControlTWSTO                    // STOP condition
	ControlTWSTA                    // START condition
	ControlTWEA                     // enable acknowledge
	ControlTWINT                    // interrupt flag
)

const (
	// bits stored as written; TWINT and TWWC are flags owned by hardware
	controlWritable = ControlTWIE | ControlTWEN | ControlTWSTO | ControlTWSTA | ControlTWEA

	statusCodeMask      = uint8(0xF8)
	statusPrescalerMask = uint8(0x03)

	// AddressGCE enables recognition of the general call address.
	AddressGCE = uint8(0x01)
)

// reset values
const (
	resetStatus  = uint8(StatusNoInfo)
	resetAddress = uint8(0xFE)
	resetData    = uint8(0xFF)
)

// Events is the set of semantic events implied by a register write.
type Events uint8

const (
	EventStartRequested Events = 1 << iota
	EventStopRequested
	EventDataQueued
	EventInterruptAcknowledged
	EventEnabled
	EventDisabled
	EventWriteCollision
	EventInterruptEnableChanged
)

func (e Events) Has(x Events) bool {
	return e&x != 0
}

// RegisterFile holds the four registers. TWINT lives in the latch; the
// control register read composes it back in.
type RegisterFile struct {
	latch *Latch

	control   uint8
	status    Status
	prescaler uint8
	data      uint8
	address   uint8
	collision bool
}

func NewRegisterFile(latch *Latch) *RegisterFile {
	r := &RegisterFile{latch: latch}
	r.Reset()
	return r
}

// Reset loads the datasheet reset values.
func (r *RegisterFile) Reset() {
	r.control = 0
	r.status = Status(resetStatus)
	r.prescaler = 0
	r.data = resetData
	r.address = resetAddress
	r.collision = false
	r.latch.reset()
}

// Read returns the register value. Reads have no side effects.
func (r *RegisterFile) Read(reg Register) uint8 {
	switch reg {
	case RegStatus:
		return uint8(r.status)&statusCodeMask | r.prescaler
	case RegAddress:
		return r.address
	case RegData:
		return r.data
	case RegControl:
		v := r.control
		if r.collision {
			v |= ControlTWWC
		}
		if r.latch.Pending() {
			v |= ControlTWINT
		}
		return v
	}
	return 0xFF
}

// Write applies the register's write mask and reports what the write means to
// the state machine.
func (r *RegisterFile) Write(reg Register, value uint8) Events {
	var ev Events
	switch reg {
	case RegStatus:
		// status code bits are read-only
		r.prescaler = value & statusPrescalerMask

	case RegAddress:
		r.address = value

	case RegData:
		if !r.latch.Pending() {
			r.collision = true
			return EventWriteCollision
		}
		r.data = value
		r.collision = false
		ev |= EventDataQueued

	case RegControl:
		old := r.control
		r.control = value & controlWritable

		if value&ControlTWWC != 0 {
			r.collision = false
		}
		if (old^r.control)&ControlTWEN != 0 {
			if r.control&ControlTWEN != 0 {
				ev |= EventEnabled
			} else {
				ev |= EventDisabled
			}
		}
		if (old^r.control)&ControlTWIE != 0 {
			r.latch.SetEnabled(r.control&ControlTWIE != 0)
			ev |= EventInterruptEnableChanged
		}
		if value&ControlTWSTA != 0 {
			ev |= EventStartRequested
		}
		if value&ControlTWSTO != 0 {
			ev |= EventStopRequested
		}
		if value&ControlTWINT != 0 && r.latch.Pending() {
			r.latch.Clear()
			ev |= EventInterruptAcknowledged
		}
	}
	return ev
}

func (r *RegisterFile) bit(mask uint8) bool {
	return r.control&mask != 0
}

func (r *RegisterFile) enabled() bool { return r.bit(ControlTWEN) }
func (r *RegisterFile) ackEnabled() bool { return r.bit(ControlTWEA) }
func (r *RegisterFile) startBit() bool { return r.bit(ControlTWSTA) }
func (r *RegisterFile) stopBit() bool { return r.bit(ControlTWSTO) }
func (r *RegisterFile) clearStop() { r.control &^= ControlTWSTO }
func (r *RegisterFile) setStatus(s Status) { r.status = s }
func (r *RegisterFile) latchData(b uint8) { r.data = b }

// ownAddress is the 7-bit slave address from TWAR.
func (r *RegisterFile) ownAddress() uint8 {
	return r.address >> 1
}

func (r *RegisterFile) generalCallEnabled() bool {
	return r.address&AddressGCE != 0
}
