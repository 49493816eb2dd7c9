// Package machine wires TWI controllers, simulated buses and the interrupt
// controller into one board with a flat data space.
package machine

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/nevisdale/twisim/internal/bus"
	"github.com/nevisdale/twisim/internal/irq"
	"github.com/nevisdale/twisim/internal/twi"
)

var (
	ErrBusExists = errors.New("bus id already in use")
	ErrOverlap   = errors.New("window overlaps an existing mapping")
)

type Board struct {
	log *log.Logger

	sram *SRAM
	mem  *dataMemory
	irqc *irq.Controller

	buses map[twi.BusID]*bus.Bus
	lines map[twi.LineID]*irq.Line
	twis  []*twi.Controller
	mmio  []mapping
}

var _ twi.Resolver = (*Board)(nil)

func New(logger *log.Logger) *Board {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	b := &Board{
		log:   logger,
		sram:  NewSRAM(SRAMSize),
		irqc:  irq.New(logger),
		buses: make(map[twi.BusID]*bus.Bus),
		lines: make(map[twi.LineID]*irq.Line),
	}
	b.mem = b.newDataMemory()
	return b
}

// AddBus creates a simulated bus under id.
func (b *Board) AddBus(id twi.BusID, name string) (*bus.Bus, error) {
	if _, ok := b.buses[id]; ok {
		return nil, fmt.Errorf("board: bus %d: %w", id, ErrBusExists)
	}
	bb := bus.New(name, b.log)
	b.buses[id] = bb
	return bb, nil
}

// AddTWI builds a controller on cfg.Bus, raising cfg.IRQ, and maps its
// register window at base.
func (b *Board) AddTWI(cfg twi.Config, base uint16) (*twi.Controller, error) {
	r := NewRange(base, twi.RegionSize)
	if err := b.checkWindow(r); err != nil {
		return nil, &twi.ConfigurationError{Component: cfg.Name, Err: err}
	}
	_, shared := b.lines[cfg.IRQ]
	if !shared {
		l, err := b.irqc.Line(int(cfg.IRQ))
		if err != nil {
			return nil, &twi.ConfigurationError{Component: cfg.Name, Err: err}
		}
		b.lines[cfg.IRQ] = l
	}
	if cfg.Logger == nil {
		cfg.Logger = b.log
	}

	c, err := twi.New(cfg, b)
	if err != nil {
		if !shared {
			delete(b.lines, cfg.IRQ)
		}
		return nil, err
	}
	b.twis = append(b.twis, c)
	b.mmio = append(b.mmio, mapping{name: cfg.Name, r: r, dev: c})
	b.log.Printf("board: %s at %s, irq %d", cfg.Name, r, cfg.IRQ)
	return c, nil
}

// Map places any byte-addressed peripheral in the I/O space.
func (b *Board) Map(name string, r Range, dev ReadWriter) error {
	if err := b.checkWindow(r); err != nil {
		return fmt.Errorf("board: %s: %w", name, err)
	}
	b.mmio = append(b.mmio, mapping{name: name, r: r, dev: dev})
	return nil
}

func (b *Board) checkWindow(r Range) error {
	if r.Length == 0 || r.overlaps(SRAMRange) || uint32(r.Start)+uint32(r.Length) > SRAMStart {
		return fmt.Errorf("%w: %s is outside the I/O space", ErrOverlap, r)
	}
	for _, m := range b.mmio {
		if m.r.overlaps(r) {
			return fmt.Errorf("%w: %s and %s at %s", ErrOverlap, r, m.name, m.r)
		}
	}
	return nil
}

func (b *Board) lookup(addr uint16) (mapping, bool) {
	for _, m := range b.mmio {
		if m.r.Contains(addr) {
			return m, true
		}
	}
	return mapping{}, false
}

func (b *Board) Bus(id twi.BusID) (twi.Bus, bool) {
	bb, ok := b.buses[id]
	if !ok {
		return nil, false
	}
	return bb, true
}

func (b *Board) Line(id twi.LineID) (twi.Line, bool) {
	l, ok := b.lines[id]
	if !ok {
		return nil, false
	}
	return l, true
}

// SimBus returns the concrete bus, for attaching devices and fault injection.
func (b *Board) SimBus(id twi.BusID) *bus.Bus {
	return b.buses[id]
}

func (b *Board) Read8(addr uint16) uint8 {
	return b.mem.Read8(addr)
}

func (b *Board) Write8(addr uint16, data uint8) {
	b.mem.Write8(addr, data)
}

func (b *Board) IRQ() *irq.Controller {
	return b.irqc
}

func (b *Board) Controllers() []*twi.Controller {
	return b.twis
}

// Reset resets every controller. SRAM keeps its contents as on a real part.
func (b *Board) Reset() {
	for _, c := range b.twis {
		c.Reset()
	}
}
