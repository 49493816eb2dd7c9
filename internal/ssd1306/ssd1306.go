// Package ssd1306 models the SSD1306 128x64 OLED controller as an I2C target.
//
// Every write transfer starts with a control byte. D/C# (bit 6) selects
// whether the bytes that follow are commands or GDDRAM data; Co (bit 7) set
// means only the next byte is covered and another control byte follows.
package ssd1306

import (
	"io"
	"log"
)

const (
	Width  = 128
	Height = 64
	Pages  = Height / 8

	// DefaultAddress is the 7-bit address with SA0 tied high.
	DefaultAddress = 0x3D

	controlCo = 0x80
	controlDC = 0x40

	// read-back status, D6 set while the panel is off
	statusDisplayOff = 0x40
)

type AddressingMode uint8

const (
	Horizontal AddressingMode = iota
	Vertical
	Page
)

func (m AddressingMode) String() string {
	switch m {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	case Page:
		return "page"
	}
	return "invalid"
}

type Scroll struct {
	Active     bool
	Command    uint8 // 0x26, 0x27, 0x29 or 0x2A
	StartPage  uint8
	EndPage    uint8
	Interval   uint8
	Vertical   uint8 // vertical offset for 0x29/0x2A
	AreaTop    uint8
	AreaHeight uint8
}

type Display struct {
	log *log.Logger

	// transfer state
	expectControl bool
	single        bool // Co was set: one byte, then a new control byte
	data          bool

	// command being collected
	command   uint8
	params    []uint8
	nparams   int
	inCommand bool

	gddram [Pages * Width]uint8

	mode      AddressingMode
	colStart  uint8
	colEnd    uint8
	col       uint8
	pageStart uint8
	pageEnd   uint8
	page      uint8

	On           bool
	Inverted     bool
	EntireOn     bool
	Contrast     uint8
	StartLine    uint8
	Offset       uint8
	Multiplex    uint8
	SegmentRemap bool
	COMRemap     bool
	COMPins      uint8
	ClockDiv     uint8
	Precharge    uint8
	VCOMH        uint8
	ChargePump   bool
	Scroll       Scroll
}

func New(logger *log.Logger) *Display {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	d := &Display{log: logger}
	d.Reset()
	return d
}

// Reset restores the power-on register values. GDDRAM is left as it is.
func (d *Display) Reset() {
	d.expectControl = true
	d.single = false
	d.data = false
	d.inCommand = false
	d.params = d.params[:0]

	d.mode = Page
	d.colStart, d.colEnd, d.col = 0, Width-1, 0
	d.pageStart, d.pageEnd, d.page = 0, Pages-1, 0

	d.On = false
	d.Inverted = false
	d.EntireOn = false
	d.Contrast = 0x7F
	d.StartLine = 0
	d.Offset = 0
	d.Multiplex = 63
	d.SegmentRemap = false
	d.COMRemap = false
	d.COMPins = 0x12
	d.ClockDiv = 0x80
	d.Precharge = 0x22
	d.VCOMH = 0x20
	d.ChargePump = false
	d.Scroll = Scroll{}
}

func (d *Display) Mode() AddressingMode {
	return d.mode
}

// Pointer returns the GDDRAM column and page the next data byte goes to.
func (d *Display) Pointer() (col, page uint8) {
	return d.col, d.page
}

// Pixel reports whether the panel lights the pixel at x, y after inversion
// and the entire-display-on override. A panel that is off lights nothing.
func (d *Display) Pixel(x, y int) bool {
	if !d.On || x < 0 || x >= Width || y < 0 || y >= Height {
		return false
	}
	if d.EntireOn {
		return true
	}
	return d.RAMPixel(x, y) != d.Inverted
}

// RAMPixel is the raw GDDRAM bit for x, y.
func (d *Display) RAMPixel(x, y int) bool {
	return d.gddram[(y/8)*Width+x]&(1<<(y%8)) != 0
}

// GDDRAM returns a copy of the display RAM, one byte per column per page.
func (d *Display) GDDRAM() []uint8 {
	out := make([]uint8, len(d.gddram))
	copy(out, d.gddram[:])
	return out
}

// Start begins a transfer. Reads are always accepted; writes restart with a
// control byte.
func (d *Display) Start(read bool) bool {
	if !read {
		d.expectControl = true
		d.single = false
	}
	return true
}

func (d *Display) Write(b uint8) bool {
	if d.expectControl {
		d.expectControl = false
		d.data = b&controlDC != 0
		d.single = b&controlCo != 0
		return true
	}
	if d.single {
		d.expectControl = true
	}

	if d.data {
		d.writeGDDRAM(b)
		return true
	}
	d.commandByte(b)
	return true
}

// Read returns the status byte.
func (d *Display) Read() uint8 {
	if d.On {
		return 0
	}
	return statusDisplayOff
}

// Stop ends the transfer. A command still waiting for parameters runs with
// what it has.
func (d *Display) Stop() {
	if d.inCommand {
		d.log.Printf("ssd1306: command 0x%02X cut short, %d of %d parameters", d.command, len(d.params), d.nparams)
		d.inCommand = false
		d.execute()
	}
	d.expectControl = true
}

// parameterCount is the number of bytes that follow a command byte.
func parameterCount(cmd uint8) int {
	switch cmd {
	case 0x81, 0x20, 0xD3, 0xDA, 0xD5, 0xD9, 0xDB, 0xA8, 0x8D:
		return 1
	case 0x26, 0x27:
		return 6
	case 0x29, 0x2A:
		return 5
	case 0xA3, 0x21, 0x22:
		return 2
	}
	return 0
}

func (d *Display) commandByte(b uint8) {
	if d.inCommand {
		d.params = append(d.params, b)
		if len(d.params) == d.nparams {
			d.inCommand = false
			d.execute()
		}
		return
	}
	d.command = b
	d.params = d.params[:0]
	d.nparams = parameterCount(b)
	if d.nparams == 0 {
		d.execute()
		return
	}
	d.inCommand = true
}

// param returns parameter i, or ok=false if the transfer ended before it.
func (d *Display) param(i int) (uint8, bool) {
	if i >= len(d.params) {
		d.log.Printf("ssd1306: command 0x%02X: missing parameter %d", d.command, i)
		return 0, false
	}
	return d.params[i], true
}

func (d *Display) execute() {
	cmd := d.command
	switch {
	// --- fundamental ---
	case cmd == 0x81:
		if v, ok := d.param(0); ok {
			d.Contrast = v
		}
	case cmd == 0xA4, cmd == 0xA5:
		d.EntireOn = cmd == 0xA5
	case cmd == 0xA6, cmd == 0xA7:
		d.Inverted = cmd == 0xA7
	case cmd == 0xAE, cmd == 0xAF:
		d.On = cmd == 0xAF

	// --- scrolling ---
	case cmd == 0x26, cmd == 0x27:
		d.setupScroll(cmd, false)
	case cmd == 0x29, cmd == 0x2A:
		d.setupScroll(cmd, true)
	case cmd == 0x2E:
		d.Scroll.Active = false
	case cmd == 0x2F:
		d.Scroll.Active = true
	case cmd == 0xA3:
		if v, ok := d.param(0); ok {
			d.Scroll.AreaTop = v & 0x3F
		}
		if v, ok := d.param(1); ok {
			d.Scroll.AreaHeight = v & 0x7F
		}

	// --- addressing ---
	case cmd <= 0x0F:
		d.colStart = d.colStart&0xF0 | cmd&0x0F
		d.pageModeColumn()
	case cmd <= 0x1F:
		d.colStart = (cmd&0x07)<<4 | d.colStart&0x0F
		d.pageModeColumn()
	case cmd == 0x20:
		if v, ok := d.param(0); ok {
			if v&0x03 == 0x03 {
				d.log.Printf("ssd1306: invalid addressing mode %d", v&0x03)
				return
			}
			d.mode = AddressingMode(v & 0x03)
		}
	case cmd == 0x21:
		if d.mode == Page {
			d.log.Printf("ssd1306: column address ignored in page mode")
			return
		}
		if v, ok := d.param(0); ok {
			d.colStart = v & 0x7F
			d.col = d.colStart
		}
		if v, ok := d.param(1); ok {
			d.colEnd = v & 0x7F
		}
	case cmd == 0x22:
		if d.mode == Page {
			d.log.Printf("ssd1306: page address ignored in page mode")
			return
		}
		if v, ok := d.param(0); ok {
			d.pageStart = v & 0x07
			d.page = d.pageStart
		}
		if v, ok := d.param(1); ok {
			d.pageEnd = v & 0x07
		}
	case cmd >= 0xB0 && cmd <= 0xB7:
		if d.mode != Page {
			d.log.Printf("ssd1306: page start ignored outside page mode")
			return
		}
		d.page = cmd & 0x07

	// --- hardware configuration ---
	case cmd >= 0x40 && cmd <= 0x7F:
		d.StartLine = cmd & 0x3F
	case cmd == 0xA0, cmd == 0xA1:
		d.SegmentRemap = cmd == 0xA1
	case cmd == 0xA8:
		if v, ok := d.param(0); ok {
			v &= 0x3F
			if v < 15 {
				d.log.Printf("ssd1306: invalid multiplex ratio %d", v)
				return
			}
			d.Multiplex = v
		}
	case cmd == 0xC0, cmd == 0xC8:
		d.COMRemap = cmd == 0xC8
	case cmd == 0xD3:
		if v, ok := d.param(0); ok {
			d.Offset = v & 0x3F
		}
	case cmd == 0xDA:
		if v, ok := d.param(0); ok {
			d.COMPins = v & 0x32
		}

	// --- timing and driving ---
	case cmd == 0xD5:
		if v, ok := d.param(0); ok {
			d.ClockDiv = v
		}
	case cmd == 0xD9:
		if v, ok := d.param(0); ok {
			d.Precharge = v
		}
	case cmd == 0xDB:
		if v, ok := d.param(0); ok {
			d.VCOMH = v & 0x70
		}
	case cmd == 0x8D:
		if v, ok := d.param(0); ok {
			d.ChargePump = v&0x04 != 0
		}
	case cmd == 0xE3:
		// NOP

	default:
		d.log.Printf("ssd1306: unknown command 0x%02X", cmd)
	}
}

func (d *Display) pageModeColumn() {
	if d.mode == Page {
		d.col = d.colStart
	}
}

func (d *Display) setupScroll(cmd uint8, vertical bool) {
	// layout: dummy, start page, interval, end page, then either a vertical
	// offset or two dummy bytes
	s := Scroll{Command: cmd, AreaTop: d.Scroll.AreaTop, AreaHeight: d.Scroll.AreaHeight}
	if v, ok := d.param(1); ok {
		s.StartPage = v & 0x07
	}
	if v, ok := d.param(2); ok {
		s.Interval = v & 0x07
	}
	if v, ok := d.param(3); ok {
		s.EndPage = v & 0x07
	}
	if vertical {
		if v, ok := d.param(4); ok {
			s.Vertical = v & 0x3F
		}
	}
	d.Scroll = s
}

func (d *Display) writeGDDRAM(b uint8) {
	d.gddram[int(d.page)*Width+int(d.col)] = b

	switch d.mode {
	case Horizontal:
		if d.col < d.colEnd {
			d.col++
			return
		}
		d.col = d.colStart
		if d.page < d.pageEnd {
			d.page++
		} else {
			d.page = d.pageStart
		}
	case Vertical:
		if d.page < d.pageEnd {
			d.page++
			return
		}
		d.page = d.pageStart
		if d.col < d.colEnd {
			d.col++
		} else {
			d.col = d.colStart
		}
	case Page:
		// the column wraps, the page does not move
		if d.col < Width-1 {
			d.col++
		} else {
			d.col = d.colStart
		}
	}
}
