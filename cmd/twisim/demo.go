package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/nevisdale/twisim/internal/eeprom"
	"github.com/nevisdale/twisim/internal/firmware"
	"github.com/nevisdale/twisim/internal/machine"
	"github.com/nevisdale/twisim/internal/ssd1306"
	"github.com/nevisdale/twisim/internal/twi"
)

const (
	// address of the second controller acting as a target
	peerAddress = 0x52

	bootCounterAddr = 0x0000
	// bytes per data transfer to the panel, control byte excluded
	oledChunk = 32
)

// demo is the firmware of the simulated board: TWI0 runs the OLED and the
// EEPROM as master, TWI1 answers as a register target.
type demo struct {
	log    *log.Logger
	board  *machine.Board
	master *firmware.Master
	peer   *firmware.Slave

	display *ssd1306.Display
	rom     *eeprom.EEPROM
	oled    *i2c.Dev
	romDev  *i2c.Dev

	boots uint16
	frame int
	x, dx int
}

func newDemo(logger *log.Logger) (*demo, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	b := machine.New(logger)
	sim, err := b.AddBus(0, "i2c0")
	if err != nil {
		return nil, err
	}
	if _, err := b.AddTWI(twi.Config{Name: "twi0", Bus: 0, IRQ: 0, Logger: logger}, machine.TWI0Base); err != nil {
		return nil, err
	}
	if _, err := b.AddTWI(twi.Config{Name: "twi1", Bus: 0, IRQ: 1, Logger: logger}, machine.TWI1Base); err != nil {
		return nil, err
	}

	d := &demo{
		log:     logger,
		board:   b,
		master:  firmware.NewMaster("twi0", b, machine.TWI0Base, logger),
		peer:    firmware.NewSlave("twi1", b, machine.TWI1Base, logger),
		display: ssd1306.New(logger),
		rom:     eeprom.New(logger),
		dx:      1,
	}
	if err := sim.Attach(ssd1306.DefaultAddress, d.display); err != nil {
		return nil, err
	}
	if err := sim.Attach(eeprom.DefaultAddress, d.rom); err != nil {
		return nil, err
	}
	d.oled = &i2c.Dev{Addr: ssd1306.DefaultAddress, Bus: d.master}
	d.romDev = &i2c.Dev{Addr: eeprom.DefaultAddress, Bus: d.master}

	b.IRQ().Handle(1, d.peer.ISR)
	d.peer.Listen(peerAddress, true)
	return d, nil
}

func (d *demo) command(cmds ...byte) error {
	return d.oled.Tx(append([]byte{0x00}, cmds...), nil)
}

func (d *demo) data(b []byte) error {
	for len(b) > 0 {
		n := min(len(b), oledChunk)
		if err := d.oled.Tx(append([]byte{0x40}, b[:n]...), nil); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// boot brings the panel up, clears it and bumps the boot counter kept in
// the EEPROM.
func (d *demo) boot() error {
	if err := d.master.SetSpeed(400 * physic.KiloHertz); err != nil {
		return err
	}
	err := d.command(
		0xAE,
		0xD5, 0x80,
		0xA8, 0x3F,
		0xD3, 0x00,
		0x40,
		0x8D, 0x14,
		0x20, 0x00,
		0xA1,
		0xC8,
		0xDA, 0x12,
		0x81, 0xCF,
		0xA4,
		0xA6,
		0xAF,
	)
	if err != nil {
		return fmt.Errorf("oled init: %w", err)
	}
	if err := d.command(0x21, 0, ssd1306.Width-1, 0x22, 0, ssd1306.Pages-1); err != nil {
		return err
	}
	if err := d.data(make([]byte, ssd1306.Width*ssd1306.Pages)); err != nil {
		return fmt.Errorf("oled clear: %w", err)
	}

	var buf [2]byte
	if err := d.romDev.Tx([]byte{bootCounterAddr >> 8, bootCounterAddr & 0xFF}, buf[:]); err != nil {
		return fmt.Errorf("boot counter: %w", err)
	}
	d.boots = binary.BigEndian.Uint16(buf[:])
	if d.boots == 0xFFFF {
		d.boots = 0
	}
	d.boots++
	w := []byte{bootCounterAddr >> 8, bootCounterAddr & 0xFF, 0, 0}
	binary.BigEndian.PutUint16(w[2:], d.boots)
	if err := d.romDev.Tx(w, nil); err != nil {
		return fmt.Errorf("boot counter: %w", err)
	}
	d.log.Printf("demo: boot %d", d.boots)

	// top page shows the boot count in binary, one 8-column block per bit
	row := make([]byte, ssd1306.Width)
	for bit := 0; bit < 16; bit++ {
		if d.boots&(1<<(15-bit)) == 0 {
			continue
		}
		for x := bit * 8; x < bit*8+6; x++ {
			row[x] = 0x3C
		}
	}
	if err := d.command(0x21, 0, ssd1306.Width-1, 0x22, 0, 0); err != nil {
		return err
	}
	return d.data(row)
}

// Step draws one frame of a bar bouncing across pages 1 to 7 and, every 30
// frames, round-trips the frame number through the peer controller.
func (d *demo) Step() error {
	prev := d.x
	d.x += d.dx
	if d.x <= 0 || d.x >= ssd1306.Width-1 {
		d.dx = -d.dx
	}
	d.frame++

	lo, hi := min(prev, d.x), max(prev, d.x)
	if err := d.command(0x21, byte(lo), byte(hi), 0x22, 1, ssd1306.Pages-1); err != nil {
		return err
	}
	cols := hi - lo + 1
	frame := make([]byte, 0, cols*(ssd1306.Pages-1))
	for p := 1; p < ssd1306.Pages; p++ {
		for x := lo; x <= hi; x++ {
			v := byte(0)
			if x == d.x {
				v = 0xFF
			}
			frame = append(frame, v)
		}
	}
	if err := d.data(frame); err != nil {
		return err
	}

	if d.frame%30 == 0 {
		return d.ping()
	}
	return nil
}

func (d *demo) ping() error {
	v := byte(d.frame / 30)
	if err := d.master.Tx(peerAddress, []byte{0x00, v}, nil); err != nil {
		return err
	}
	r := make([]byte, 1)
	if err := d.master.Tx(peerAddress, []byte{0x00}, r); err != nil {
		return err
	}
	if r[0] != v {
		return fmt.Errorf("peer returned 0x%02X, want 0x%02X", r[0], v)
	}
	return nil
}
