// Package twi models the AVR Two-Wire Interface: the four architecturally
// visible registers and the protocol state machine behind them.
//
// Firmware drives the controller through register reads and writes; the
// shared bus drives it through the Target callbacks. Every completed protocol
// step leaves a status code in TWSR and raises TWINT, and the controller does
// not move again until firmware writes TWINT=1.
package twi

import (
	"io"
	"log"
)

type Config struct {
	Name   string
	Bus    BusID
	IRQ    LineID
	Logger *log.Logger // nil discards
}

type regWrite struct {
	reg   Register
	value uint8
}

type eventKind uint8

const (
	evAddressed eventKind = iota
	evReceived
	evTransmitted
	evStop
	evBusFree
)

// busEvent is a wire event waiting to be turned into a status code.
type busEvent struct {
	kind    eventKind
	dir     Direction
	general bool
	arb     bool // addressed in the same step an arbitration was lost
	data    uint8
	outcome Outcome
}

// BusEvent is a wire event that may carry a received byte and a STOP at
// once. The STOP wins and the byte is discarded.
type BusEvent struct {
	Data    uint8
	HasData bool
	Stop    bool
}

// Controller is one TWI instance.
type Controller struct {
	name     string
	log      *log.Logger
	resolver Resolver
	irq      LineID

	latch Latch
	regs  *RegisterFile
	tx    Transaction
	drv   driver

	// ownsBus is true between a granted START and the STOP (or loss).
	ownsBus bool

	// Wire-side view of the slave, updated as callbacks arrive. tx only
	// catches up when the matching event is applied.
	selected bool
	selDir   Direction

	busy   bool
	writes []regWrite
	held   []busEvent
}

// New builds a controller and connects it to its bus.
func New(cfg Config, res Resolver) (*Controller, error) {
	if res == nil {
		return nil, &ConfigurationError{Component: cfg.Name, Err: ErrNoResolver}
	}
	bus, ok := res.Bus(cfg.Bus)
	if !ok {
		return nil, &ConfigurationError{Component: cfg.Name, Err: ErrNoBus}
	}
	if _, ok := res.Line(cfg.IRQ); !ok {
		return nil, &ConfigurationError{Component: cfg.Name, Err: ErrNoLine}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	c := &Controller{
		name:     cfg.Name,
		log:      logger,
		resolver: res,
		irq:      cfg.IRQ,
	}
	c.regs = NewRegisterFile(&c.latch)
	c.drv = driver{
		resolver: res,
		id:       cfg.Bus,
		log:      logger,
		name:     cfg.Name,
	}
	c.drv.port = bus.Connect(c)
	return c, nil
}

func (c *Controller) Name() string {
	return c.name
}

// Read8 reads the register at offset within the controller's region.
// Unknown offsets read as 0xFF.
func (c *Controller) Read8(offset uint16) uint8 {
	f, ok := LayoutV1.Lookup(offset)
	if !ok {
		c.log.Printf("%s: read from unknown offset %d", c.name, offset)
		return 0xFF
	}
	return c.ReadRegister(f.Register)
}

// Write8 writes the register at offset. Writes to unknown offsets are
// dropped.
func (c *Controller) Write8(offset uint16, v uint8) {
	f, ok := LayoutV1.Lookup(offset)
	if !ok {
		c.log.Printf("%s: write 0x%02X to unknown offset %d dropped", c.name, v, offset)
		return
	}
	c.WriteRegister(f.Register, v)
}

func (c *Controller) ReadRegister(r Register) uint8 {
	return c.regs.Read(r)
}

// WriteRegister applies a firmware write. A write arriving while the
// controller is inside a transition is applied once that transition is done.
func (c *Controller) WriteRegister(r Register, v uint8) {
	c.writes = append(c.writes, regWrite{reg: r, value: v})
	c.run()
}

func (c *Controller) Transaction() Transaction {
	return c.tx
}

func (c *Controller) Status() Status {
	return c.regs.status
}

// Pending reports TWINT.
func (c *Controller) Pending() bool {
	return c.latch.Pending()
}

// Asserted reports the interrupt line level.
func (c *Controller) Asserted() bool {
	return c.latch.Asserted()
}

// Reset restores the reset state. A bus held by this controller is released.
func (c *Controller) Reset() {
	c.drv.cancel()
	if c.ownsBus {
		c.drv.issue(Action{Kind: ActionRelease})
		c.ownsBus = false
	}
	c.regs.Reset()
	c.tx = Transaction{}
	c.selected = false
	c.writes = nil
	c.held = nil
	c.syncLine()
}

// run drains queued writes and applicable bus events, then updates the
// interrupt line. Nested calls only queue.
func (c *Controller) run() {
	if c.busy {
		return
	}
	c.busy = true
	for c.step() {
	}
	c.dropStaleArbitration()
	c.busy = false
	c.syncLine()
}

func (c *Controller) step() bool {
	if len(c.writes) > 0 {
		w := c.writes[0]
		c.writes = c.writes[1:]
		c.applyWrite(w)
		return true
	}
	if len(c.held) > 0 && c.canApply(c.held[0]) {
		e := c.held[0]
		c.held = c.held[1:]
		c.applyEvent(e)
		return true
	}
	return false
}

func (c *Controller) syncLine() {
	level, changed := c.latch.sync()
	if !changed {
		return
	}
	line, ok := c.resolver.Line(c.irq)
	if !ok {
		c.log.Printf("%s: interrupt line %d vanished", c.name, c.irq)
		return
	}
	if level {
		line.Assert()
	} else {
		line.Deassert()
	}
}

// dropStaleArbitration discards an address match that was reported during
// an arbitration the bus then did not report as lost.
func (c *Controller) dropStaleArbitration() {
	if c.tx.State == StateArbitrationLost {
		return
	}
	kept := c.held[:0]
	for _, e := range c.held {
		if e.arb {
			c.log.Printf("%s: address match without arbitration loss dropped", c.name)
			c.selected = false
			continue
		}
		kept = append(kept, e)
	}
	c.held = kept
}

func (c *Controller) canApply(e busEvent) bool {
	if e.arb {
		return c.tx.State == StateArbitrationLost
	}
	return !c.latch.Pending()
}

// complete records the result of a protocol step.
func (c *Controller) complete(role Role, dir Direction, phase Phase, outcome Outcome) {
	s := mustStatus(role, dir, phase, outcome)
	c.regs.setStatus(s)
	if s != StatusNoInfo {
		c.latch.SetPending()
	}
	c.log.Printf("%s: %s status 0x%02X %s", c.name, c.tx, uint8(s), s)
}

// idle leaves the controller in Idle with nothing to report.
func (c *Controller) idle() {
	c.tx = Transaction{}
	c.regs.setStatus(StatusNoInfo)
}

func (c *Controller) applyWrite(w regWrite) {
	ev := c.regs.Write(w.reg, w.value)
	if ev.Has(EventWriteCollision) {
		c.log.Printf("%s: TWDR write 0x%02X with TWINT low", c.name, w.value)
	}
	if ev.Has(EventDisabled) {
		c.abort()
		return
	}
	if w.reg != RegControl || !c.regs.enabled() {
		return
	}

	switch {
	case ev.Has(EventInterruptAcknowledged):
		c.proceed()
	case c.latch.Pending():
		// TWSTA/TWSTO without TWINT wait for the next acknowledge
	case c.tx.State == StateIdle && c.regs.startBit() && !c.drv.isDeferred():
		c.startMaster()
	case c.regs.stopBit():
		if c.tx.State == StateMasterStartPending && c.drv.isDeferred() {
			c.drv.cancel()
			c.idle()
		}
		if !c.tx.State.master() {
			c.regs.clearStop()
		}
	}
}

// abort handles TWEN going low.
func (c *Controller) abort() {
	c.drv.cancel()
	if c.ownsBus {
		c.drv.issue(Action{Kind: ActionRelease})
		c.ownsBus = false
	}
	c.selected = false
	if len(c.held) > 0 {
		c.log.Printf("%s: disabled, %d bus events dropped", c.name, len(c.held))
	}
	c.held = nil
	c.latch.Clear()
	c.regs.clearStop()
	c.idle()
	c.log.Printf("%s: disabled", c.name)
}

// proceed runs the step firmware asked for by clearing TWINT.
func (c *Controller) proceed() {
	c.regs.setStatus(StatusNoInfo)

	switch c.tx.State {
	case StateIdle:
		if c.regs.stopBit() {
			c.regs.clearStop()
		}
		if c.regs.startBit() {
			c.startMaster()
		}

	case StateMasterStartPending:
		if c.regs.stopBit() || c.regs.startBit() {
			c.stopOrRestart()
			return
		}
		c.sendAddress()

	case StateMasterAddressPhase:
		if c.regs.stopBit() || c.regs.startBit() {
			c.stopOrRestart()
			return
		}
		if c.tx.Direction == DirectionTransmit {
			// SLA+W was not acknowledged; the byte goes to nobody
			c.sendData()
			return
		}
		c.busError()

	case StateMasterDataPhase:
		if c.regs.stopBit() || c.regs.startBit() {
			c.stopOrRestart()
			return
		}
		switch {
		case c.tx.Direction == DirectionTransmit:
			c.sendData()
		case c.tx.LastByteAcked:
			c.requestByte()
		default:
			c.busError()
		}

	case StateSlaveAddressed, StateSlaveDataPhase:
		if c.regs.stopBit() {
			// recover from an error condition without touching the wire
			c.log.Printf("%s: slave released by TWSTO", c.name)
			c.regs.clearStop()
			c.selected = false
			c.idle()
			return
		}
		if !c.selected && len(c.held) == 0 {
			// NACK or last byte ends our part; the master still owns the bus
			c.idle()
			if c.regs.startBit() {
				c.startMaster()
			}
		}

	case StateArbitrationLost:
		c.idle()
		if c.regs.startBit() {
			c.startMaster()
		}

	case StateBusError:
		c.idle()
		if c.regs.stopBit() {
			c.regs.clearStop()
			return
		}
		if c.regs.startBit() {
			c.startMaster()
		}
	}
}

func (c *Controller) startMaster() {
	kind := ActionStart
	if c.ownsBus {
		kind = ActionRepeatedStart
	}
	c.tx = Transaction{State: StateMasterStartPending, RepeatedStart: c.ownsBus}
	c.regs.setStatus(StatusNoInfo)
	if _, ok := c.drv.issue(Action{Kind: kind}); ok {
		c.startGranted()
	}
}

func (c *Controller) startGranted() {
	phase := PhaseStart
	if c.tx.RepeatedStart {
		phase = PhaseRepeatedStart
	}
	c.ownsBus = true
	c.complete(RoleMaster, DirectionNone, phase, OutcomeNone)
}

// stopOrRestart handles TWSTO and TWSTA while the controller is master.
func (c *Controller) stopOrRestart() {
	if !c.regs.stopBit() {
		c.startMaster()
		return
	}
	c.drv.issue(Action{Kind: ActionStop})
	c.ownsBus = false
	c.regs.clearStop()
	c.idle()
	c.log.Printf("%s: STOP", c.name)
	if c.regs.startBit() {
		c.startMaster()
	}
}

func (c *Controller) sendAddress() {
	sla := c.regs.data
	dir := DirectionTransmit
	if sla&1 != 0 {
		dir = DirectionReceive
	}
	c.tx = Transaction{State: StateMasterAddressPhase, Direction: dir}

	res, _ := c.drv.issue(Action{Kind: ActionSendAddress, Data: sla})
	switch res.Outcome {
	case OutcomeArbitrationLost:
		c.loseArbitration(dir, PhaseAddressSent)
		return
	case OutcomeAck:
		c.tx.State = StateMasterDataPhase
		c.tx.LastByteAcked = true
	default:
		res.Outcome = OutcomeNack
	}
	c.complete(RoleMaster, dir, PhaseAddressSent, res.Outcome)
}

// sendData clocks TWDR out. After a NACKed SLA+W the state stays in the
// address phase and the byte goes to nobody.
func (c *Controller) sendData() {
	res, _ := c.drv.issue(Action{Kind: ActionSendByte, Data: c.regs.data})
	switch res.Outcome {
	case OutcomeArbitrationLost:
		c.loseArbitration(DirectionTransmit, PhaseDataSent)
		return
	case OutcomeAck:
	default:
		res.Outcome = OutcomeNack
	}
	c.tx.LastByteAcked = res.Outcome == OutcomeAck
	c.complete(RoleMaster, DirectionTransmit, PhaseDataSent, res.Outcome)
}

func (c *Controller) requestByte() {
	ack := c.regs.ackEnabled()
	res, _ := c.drv.issue(Action{Kind: ActionRequestByte, Ack: ack})
	if res.Outcome == OutcomeArbitrationLost {
		c.loseArbitration(DirectionReceive, PhaseDataReceived)
		return
	}
	c.regs.latchData(res.Data)
	outcome := OutcomeNack
	if ack {
		outcome = OutcomeAck
	}
	c.tx.LastByteAcked = ack
	c.complete(RoleMaster, DirectionReceive, PhaseDataReceived, outcome)
}

func (c *Controller) loseArbitration(dir Direction, phase Phase) {
	c.ownsBus = false
	c.tx = Transaction{State: StateArbitrationLost, Direction: dir}
	c.complete(RoleMaster, dir, phase, OutcomeArbitrationLost)
}

// busError reports an illegal continue. The bus is released without a STOP.
func (c *Controller) busError() {
	if c.ownsBus {
		c.drv.issue(Action{Kind: ActionRelease})
		c.ownsBus = false
	}
	c.tx = Transaction{State: StateBusError}
	c.complete(RoleMaster, DirectionNone, PhaseBusError, OutcomeNone)
}

func (c *Controller) applyEvent(e busEvent) {
	switch e.kind {
	case evAddressed:
		outcome := OutcomeAck
		switch {
		case e.arb && e.general:
			outcome = OutcomeArbitrationLostGeneralCall
		case e.arb:
			outcome = OutcomeArbitrationLost
		case e.general:
			outcome = OutcomeGeneralCall
		}
		c.tx = Transaction{
			State:         StateSlaveDataPhase,
			Direction:     e.dir,
			GeneralCall:   e.general,
			LastByteAcked: true,
		}
		c.complete(RoleSlave, e.dir, PhaseAddressReceived, outcome)

	case evReceived:
		c.regs.latchData(e.data)
		outcome := e.outcome
		if c.tx.GeneralCall {
			outcome = OutcomeGeneralCall
			if e.outcome == OutcomeNack {
				outcome = OutcomeGeneralCallNack
			}
		}
		c.tx.LastByteAcked = e.outcome == OutcomeAck
		c.complete(RoleSlave, DirectionReceive, PhaseDataReceived, outcome)

	case evTransmitted:
		c.tx.LastByteAcked = e.outcome != OutcomeNack
		c.complete(RoleSlave, DirectionTransmit, PhaseDataSent, e.outcome)

	case evStop:
		c.tx = Transaction{}
		c.complete(RoleSlave, e.dir, PhaseStop, OutcomeNone)

	case evBusFree:
		if c.tx.State != StateMasterStartPending {
			return
		}
		if _, ok := c.drv.retry(); ok {
			c.startGranted()
		}
	}
}

// OnAddressed is called for every SLA+R/W byte another master puts on the
// bus. The match is decided now; the status code follows once TWINT is low.
func (c *Controller) OnAddressed(sla uint8) Match {
	addr, read := sla>>1, sla&1 != 0
	general := addr == 0 && !read && c.regs.generalCallEnabled()
	own := addr != 0 && addr == c.regs.ownAddress()
	if !(own || general) || !c.regs.enabled() || !c.regs.ackEnabled() || c.selected {
		return Unmatched
	}

	arb := false
	switch {
	case c.busy && c.drv.pending() == ActionSendAddress:
		arb = true
	case c.tx.State == StateIdle && !c.latch.Pending() && c.drv.pending() == ActionNone:
	case c.tx.State == StateMasterStartPending && !c.latch.Pending() && c.drv.isDeferred():
		// TWSTA stays set; the START is requested again once firmware
		// acknowledges the end of the slave transfer
		c.drv.cancel()
	default:
		return Unmatched
	}

	dir := DirectionReceive
	if read {
		dir = DirectionTransmit
	}
	c.selected = true
	c.selDir = dir
	if !arb {
		c.tx = Transaction{State: StateSlaveAddressed, Direction: dir, GeneralCall: general}
	}
	c.held = append(c.held, busEvent{kind: evAddressed, dir: dir, general: general, arb: arb})
	c.run()
	return Matched
}

// OnReceive is called for every byte written to this controller as slave.
// The returned ACK is decided from TWEA as the byte arrives.
func (c *Controller) OnReceive(b uint8) bool {
	if !c.selected || c.selDir != DirectionReceive {
		return false
	}
	ack := c.regs.enabled() && c.regs.ackEnabled()
	outcome := OutcomeAck
	if !ack {
		outcome = OutcomeNack
		c.selected = false
	}
	c.held = append(c.held, busEvent{kind: evReceived, data: b, outcome: outcome})
	c.run()
	return ack
}

// OnTransmit is called when the master clocks a byte out of this slave. It
// returns TWDR; masterAck is the master's reply to that byte.
func (c *Controller) OnTransmit(masterAck bool) uint8 {
	if !c.selected || c.selDir != DirectionTransmit {
		return 0xFF
	}
	b := c.regs.data
	outcome := OutcomeAck
	switch {
	case !masterAck:
		outcome = OutcomeNack
	case !c.regs.ackEnabled():
		outcome = OutcomeLastByte
	}
	if outcome != OutcomeAck {
		c.selected = false
	}
	c.held = append(c.held, busEvent{kind: evTransmitted, outcome: outcome})
	c.run()
	return b
}

// OnStop reports a STOP or a repeated START on the bus.
func (c *Controller) OnStop() {
	switch {
	case c.selected:
		c.selected = false
		c.held = append(c.held, busEvent{kind: evStop, dir: c.selDir})
	case c.drv.isDeferred():
		c.held = append(c.held, busEvent{kind: evBusFree})
	default:
		return
	}
	c.run()
}

// OnArbitrationEvent overrides the outcome of the outstanding bus action.
func (c *Controller) OnArbitrationEvent(a Arbitration) {
	if a != ArbitrationLost {
		return
	}
	if !c.drv.reportArbitrationLoss() {
		c.log.Printf("%s: arbitration loss with no bus action outstanding ignored", c.name)
	}
}

// Deliver applies a combined wire event and returns the ACK for its byte.
func (c *Controller) Deliver(ev BusEvent) bool {
	if ev.Stop {
		if ev.HasData {
			c.log.Printf("%s: byte 0x%02X dropped, STOP in the same event", c.name, ev.Data)
		}
		c.OnStop()
		return false
	}
	if ev.HasData {
		return c.OnReceive(ev.Data)
	}
	return false
}
