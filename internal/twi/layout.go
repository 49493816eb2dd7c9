package twi

import "fmt"

// Register identifies one of the four architecturally visible registers.
type Register uint8

const (
	RegStatus Register = iota
	RegAddress
	RegData
	RegControl
)

func (r Register) String() string {
	switch r {
	case RegStatus:
		return "TWSR"
	case RegAddress:
		return "TWAR"
	case RegData:
		return "TWDR"
	case RegControl:
		return "TWCR"
	}
	return "???"
}

// Field places a register in the MMIO window.
type Field struct {
	Register Register
	Name     string
	Offset   uint16
	Width    uint8 // bytes
}

// Layout is a versioned description of the register window. It is the single
// source of truth for offsets; the board and any external tooling decode
// addresses through it.
type Layout struct {
	Version int
	Size    uint16
	Fields  []Field
}

// RegionSize is the size in bytes of the TWI register window.
const RegionSize = 4

// The window keeps the relative order of the ATmega TWSR/TWAR/TWDR/TWCR block.
var layoutV1Fields = [...]Field{
	{RegStatus, "TWSR", 0x0, 1},
	{RegAddress, "TWAR", 0x1, 1},
	{RegData, "TWDR", 0x2, 1},
	{RegControl, "TWCR", 0x3, 1},
}

// fails to compile if the field table and RegionSize disagree
var _ = [1]struct{}{}[len(layoutV1Fields)-RegionSize]

var LayoutV1 = Layout{
	Version: 1,
	Size:    RegionSize,
	Fields:  layoutV1Fields[:],
}

func init() {
	if err := LayoutV1.Validate(); err != nil {
		panic(err)
	}
}

// Validate checks that every register appears exactly once, that all fields
// are byte wide and that together they tile [0, Size) without gaps.
func (l Layout) Validate() error {
	covered := make([]bool, l.Size)
	seen := make(map[Register]bool, len(l.Fields))
	for _, f := range l.Fields {
		if f.Width != 1 {
			return &ConfigurationError{
				Component: "layout",
				Err:       fmt.Errorf("%w: %s is %d bytes wide", ErrRegisterWidth, f.Name, f.Width),
			}
		}
		if seen[f.Register] {
			return &ConfigurationError{Component: "layout", Err: fmt.Errorf("register %s defined twice", f.Register)}
		}
		seen[f.Register] = true
		end := int(f.Offset) + int(f.Width)
		if end > int(l.Size) {
			return &ConfigurationError{Component: "layout", Err: fmt.Errorf("%s ends at %d, past size %d", f.Name, end, l.Size)}
		}
		for i := int(f.Offset); i < end; i++ {
			if covered[i] {
				return &ConfigurationError{Component: "layout", Err: fmt.Errorf("%s overlaps offset %d", f.Name, i)}
			}
			covered[i] = true
		}
	}
	for i, ok := range covered {
		if !ok {
			return &ConfigurationError{Component: "layout", Err: fmt.Errorf("gap at offset %d", i)}
		}
	}
	for _, r := range []Register{RegStatus, RegAddress, RegData, RegControl} {
		if !seen[r] {
			return &ConfigurationError{Component: "layout", Err: fmt.Errorf("register %s missing", r)}
		}
	}
	return nil
}

// Lookup decodes an offset inside the window.
func (l Layout) Lookup(offset uint16) (Field, bool) {
	for _, f := range l.Fields {
		if offset >= f.Offset && offset < f.Offset+uint16(f.Width) {
			return f, true
		}
	}
	return Field{}, false
}

// Offset returns the offset of r, or false if the layout does not have it.
func (l Layout) Offset(r Register) (uint16, bool) {
	for _, f := range l.Fields {
		if f.Register == r {
			return f.Offset, true
		}
	}
	return 0, false
}
