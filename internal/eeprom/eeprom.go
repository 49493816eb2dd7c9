// Package eeprom models a 24LC256-style serial EEPROM: 32 KB behind a 16-bit
// address pointer with 64-byte write pages.
package eeprom

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

const (
	Size     = 0x8000
	PageSize = 64

	// DefaultAddress is the 7-bit address with A2..A0 tied low.
	DefaultAddress = 0x50

	erased = 0xFF
)

var ErrImageSize = errors.New("eeprom: image size mismatch")

type writeState int

const (
	idle writeState = iota
	addressHi
	addressLo
	writing
)

type pending struct {
	addr uint16
	v    uint8
}

type EEPROM struct {
	log *log.Logger

	data    [Size]uint8
	address uint16

	state writeState
	// bytes of the current page write, committed at STOP
	page  []pending
	dirty bool
}

func New(logger *log.Logger) *EEPROM {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := &EEPROM{log: logger}
	for i := range e.data {
		e.data[i] = erased
	}
	return e
}

// Load fills the array from an image file. A missing file leaves the array
// erased.
func (e *EEPROM) Load(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.log.Printf("eeprom: %s does not exist, starting erased", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("eeprom: couldn't load the image: %w", err)
	}
	if len(b) != Size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrImageSize, path, len(b), Size)
	}
	copy(e.data[:], b)
	e.dirty = false
	e.log.Printf("eeprom: loaded %s", path)
	return nil
}

// Save writes the array to an image file.
func (e *EEPROM) Save(path string) error {
	if err := os.WriteFile(path, e.data[:], 0o644); err != nil {
		return fmt.Errorf("eeprom: couldn't save the image: %w", err)
	}
	e.dirty = false
	e.log.Printf("eeprom: saved %s", path)
	return nil
}

// Dirty reports whether a write was committed since the last Load or Save.
func (e *EEPROM) Dirty() bool {
	return e.dirty
}

func (e *EEPROM) Peek(addr uint16) uint8 {
	return e.data[addr%Size]
}

func (e *EEPROM) Address() uint16 {
	return e.address
}

func (e *EEPROM) Start(read bool) bool {
	if read {
		e.state = idle
		return true
	}
	e.state = addressHi
	return true
}

func (e *EEPROM) Write(b uint8) bool {
	switch e.state {
	case addressHi:
		e.address = uint16(b)<<8 | e.address&0xFF
		e.state = addressLo
	case addressLo:
		e.address = (e.address&0xFF00 | uint16(b)) % Size
		e.state = writing
	case writing:
		e.page = append(e.page, pending{addr: e.address, v: b})
		e.nextInPage()
	default:
		return false
	}
	return true
}

// Read returns the byte at the pointer. Sequential reads run through the
// whole array.
func (e *EEPROM) Read() uint8 {
	v := e.data[e.address]
	e.address = (e.address + 1) % Size
	return v
}

// Stop commits a page write. A transfer that only set the pointer commits
// nothing.
func (e *EEPROM) Stop() {
	if len(e.page) > 0 {
		for _, p := range e.page {
			e.data[p.addr] = p.v
		}
		e.log.Printf("eeprom: wrote %d bytes at $%04X", len(e.page), e.page[0].addr)
		e.page = e.page[:0]
		e.dirty = true
	}
	e.state = idle
}

// nextInPage keeps the pointer on the current page by looping back to its
// start.
func (e *EEPROM) nextInPage() {
	if e.address%PageSize == PageSize-1 {
		e.address -= PageSize - 1
	} else {
		e.address++
	}
}
