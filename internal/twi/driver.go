package twi

import (
	"fmt"
	"log"
)

// BusID and LineID are handles into the board's registries. The controller
// never keeps a reference to the bus or the interrupt line; it looks them up
// through the Resolver every time it needs them.
type (
	BusID  uint8
	LineID uint8
)

// Port identifies a connected controller on its bus.
type Port uint8

// StartResult is the bus reply to a START request.
type StartResult uint8

const (
	StartGranted StartResult = iota
	// StartDeferred means the bus is busy. The START is generated when the
	// bus reports the next STOP.
	StartDeferred
)

// Match is the reply of a target to an address on the bus.
type Match uint8

const (
	Unmatched Match = iota
	Matched
)

// Arbitration is an asynchronous arbitration report from the bus.
type Arbitration uint8

const (
	ArbitrationWon Arbitration = iota
	ArbitrationLost
)

// Bus is the shared-bus collaborator. SendByte returns OutcomeAck,
// OutcomeNack or OutcomeArbitrationLost; the first byte after a START is the
// SLA+R/W byte.
type Bus interface {
	Connect(t Target) Port
	RequestStart(p Port) StartResult
	RequestStop(p Port)
	SendByte(p Port, b uint8) Outcome
	RequestByte(p Port, ack bool) (uint8, Outcome)
}

// Target is what the bus calls when another master drives the wire.
type Target interface {
	OnAddressed(sla uint8) Match
	OnReceive(b uint8) bool
	OnTransmit(masterAck bool) uint8
	OnStop()
	OnArbitrationEvent(a Arbitration)
}

// Line is the level-sensitive interrupt line.
type Line interface {
	Assert()
	Deassert()
}

// Resolver looks up collaborators by handle.
type Resolver interface {
	Bus(id BusID) (Bus, bool)
	Line(id LineID) (Line, bool)
}

// ActionKind is an outbound bus operation.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionStart
	ActionRepeatedStart
	ActionStop
	ActionSendAddress
	ActionSendByte
	ActionRequestByte
	ActionRelease
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionRepeatedStart:
		return "repeated-start"
	case ActionStop:
		return "stop"
	case ActionSendAddress:
		return "send-address"
	case ActionSendByte:
		return "send-byte"
	case ActionRequestByte:
		return "request-byte"
	case ActionRelease:
		return "release"
	}
	return "???"
}

// Action is the pending action queued by the state machine.
type Action struct {
	Kind ActionKind
	Data uint8 // byte to send
	Ack  bool  // ACK promised for a requested byte
}

// Result is the outcome of a resolved action.
type Result struct {
	Outcome Outcome
	Data    uint8 // received byte
}

// driver is the only code that talks to the bus.
type driver struct {
	resolver Resolver
	id       BusID
	port     Port
	log      *log.Logger
	name     string

	outstanding Action
	deferred    bool
	arbLost     bool
}

func (d *driver) bus() Bus {
	b, ok := d.resolver.Bus(d.id)
	if !ok {
		// registries never drop entries and New checked the handle
		panic(fmt.Sprintf("twi: %s: bus %d vanished", d.name, d.id))
	}
	return b
}

func (d *driver) pending() ActionKind {
	return d.outstanding.Kind
}

func (d *driver) isDeferred() bool {
	return d.deferred
}

// issue executes a. It reports false when the action is still outstanding
// (a deferred START); otherwise it returns exactly one outcome.
func (d *driver) issue(a Action) (Result, bool) {
	if a.Kind == ActionNone {
		return Result{}, false
	}
	if d.outstanding.Kind != ActionNone {
		panic(fmt.Sprintf("twi: %s: %s issued while %s is outstanding", d.name, a.Kind, d.outstanding.Kind))
	}
	d.outstanding = a
	d.arbLost = false
	return d.execute()
}

// retry re-runs a deferred START.
func (d *driver) retry() (Result, bool) {
	if !d.deferred {
		return Result{}, false
	}
	return d.execute()
}

// cancel drops a deferred START.
func (d *driver) cancel() {
	if d.deferred {
		d.log.Printf("%s: deferred %s cancelled", d.name, d.outstanding.Kind)
	}
	d.outstanding = Action{}
	d.deferred = false
	d.arbLost = false
}

// reportArbitrationLoss marks the outstanding action as lost. It returns false
// when nothing is outstanding.
func (d *driver) reportArbitrationLoss() bool {
	switch d.outstanding.Kind {
	case ActionSendAddress, ActionSendByte, ActionRequestByte:
		d.arbLost = true
		return true
	}
	return false
}

func (d *driver) execute() (Result, bool) {
	a := d.outstanding
	b := d.bus()
	var res Result

	switch a.Kind {
	case ActionStart, ActionRepeatedStart:
		if b.RequestStart(d.port) == StartDeferred {
			if !d.deferred {
				d.log.Printf("%s: bus busy, %s deferred", d.name, a.Kind)
			}
			d.deferred = true
			return Result{}, false
		}
	case ActionStop, ActionRelease:
		b.RequestStop(d.port)
	case ActionSendAddress, ActionSendByte:
		res.Outcome = b.SendByte(d.port, a.Data)
	case ActionRequestByte:
		res.Data, res.Outcome = b.RequestByte(d.port, a.Ack)
	}

	if d.arbLost {
		res.Outcome = OutcomeArbitrationLost
	}
	d.outstanding = Action{}
	d.deferred = false
	d.arbLost = false
	return res, true
}
