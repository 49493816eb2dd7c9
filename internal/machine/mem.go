package machine

import "fmt"

type ReadWriter interface {
	Read8(addr uint16) uint8
	Write8(addr uint16, data uint8)
}

// Data space of the board, laid out like an ATmega328PB:
// $0000-$001F: general purpose registers (not modelled)
// $0020-$00FF: I/O and extended I/O; TWI0 at $B9-$BC, TWI1 at $D9-$DC
// $0100-$08FF: 2 KB of internal SRAM
const (
	TWI0Base  = 0xB9
	TWI1Base  = 0xD9
	SRAMStart = 0x100
	SRAMSize  = 0x800
)

var SRAMRange = NewRange(SRAMStart, SRAMSize)

// SRAM is byte memory addressed from zero.
type SRAM struct {
	cells []uint8
}

func NewSRAM(size int) *SRAM {
	return &SRAM{cells: make([]uint8, size)}
}

func (s *SRAM) Read8(addr uint16) uint8 {
	return s.cells[addr]
}

func (s *SRAM) Write8(addr uint16, data uint8) {
	s.cells[addr] = data
}

// Range is a window of the data space.
type Range struct {
	Start  uint16
	Length uint16
}

func NewRange(start, length uint16) Range {
	return Range{Start: start, Length: length}
}

// Contains reports whether addr falls inside the window.
func (r Range) Contains(addr uint16) bool {
	return addr >= r.Start && uint32(addr) < uint32(r.Start)+uint32(r.Length)
}

// Offset is addr relative to Start. The caller checks Contains first.
func (r Range) Offset(addr uint16) uint16 {
	return addr - r.Start
}

func (r Range) overlaps(o Range) bool {
	return uint32(r.Start) < uint32(o.Start)+uint32(o.Length) &&
		uint32(o.Start) < uint32(r.Start)+uint32(r.Length)
}

func (r Range) String() string {
	return fmt.Sprintf("$%04X-$%04X", r.Start, uint32(r.Start)+uint32(r.Length)-1)
}

// mapping is one memory-mapped peripheral.
type mapping struct {
	name string
	r    Range
	dev  ReadWriter
}

// dataMemory decodes data space accesses into SRAM and peripheral windows.
type dataMemory struct {
	board *Board
}

func (b *Board) newDataMemory() *dataMemory {
	return &dataMemory{board: b}
}

func (m dataMemory) Read8(addr uint16) uint8 {
	switch {
	// read from sram
	case SRAMRange.Contains(addr):
		return m.board.sram.Read8(SRAMRange.Offset(addr))
	// read from a peripheral
	case addr < SRAMStart:
		if mp, ok := m.board.lookup(addr); ok {
			return mp.dev.Read8(mp.r.Offset(addr))
		}
	}

	m.board.log.Printf("board: unmapped read8 at $%04X", addr)
	return 0xFF
}

func (m *dataMemory) Write8(addr uint16, data uint8) {
	switch {
	// write to sram
	case SRAMRange.Contains(addr):
		m.board.sram.Write8(SRAMRange.Offset(addr), data)
		return
	// write to a peripheral
	case addr < SRAMStart:
		if mp, ok := m.board.lookup(addr); ok {
			mp.dev.Write8(mp.r.Offset(addr), data)
			return
		}
	}

	m.board.log.Printf("board: unmapped write8 of $%02X at $%04X", data, addr)
}
