package main

import (
	"io"
	"log"
	"os"
	"strconv"

	"github.com/pkg/profile"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/nevisdale/twisim/internal/ui"
)

const usage = `usage: twisim [-ui] [-v] [-scan] [-profile] [-eeprom FILE] [-scale N] [-frames N]

	-ui		open a window showing the OLED and the TWI registers
	-v		log every bus and register event
	-scan		probe the bus for targets and print their addresses
	-profile	write a CPU profile to the current directory
	-eeprom FILE	load and save the EEPROM image
	-scale N	window scale factor (default 4)
	-frames N	frames to run without a window (default 120)
`

func main() {
	log.SetFlags(0)

	flag, args := flags.New(os.Args[1:], "-ui", "-v", "-scan", "-profile", "-h")
	parm, args := parms.New(args, "-eeprom", "-scale", "-frames")
	if flag.ByName["-h"] {
		io.WriteString(os.Stdout, usage)
		return
	}
	if len(args) > 0 {
		log.Fatalf("unexpected arguments: %v\n%s", args, usage)
	}
	scale, err := intParm(parm.ByName["-scale"], 4)
	if err != nil {
		log.Fatalf("-scale: %s", err)
	}
	frames, err := intParm(parm.ByName["-frames"], 120)
	if err != nil {
		log.Fatalf("-frames: %s", err)
	}

	if flag.ByName["-profile"] {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	logger := log.New(io.Discard, "", 0)
	if flag.ByName["-v"] {
		logger = log.New(os.Stderr, "", 0)
	}

	d, err := newDemo(logger)
	if err != nil {
		log.Fatalf("couldn't build the board: %s", err)
	}
	romPath := parm.ByName["-eeprom"]
	if romPath != "" {
		if err := d.rom.Load(romPath); err != nil {
			log.Fatalf("couldn't load the eeprom: %s", err)
		}
	}
	if err := d.boot(); err != nil {
		log.Fatalf("boot failed: %s", err)
	}
	log.Printf("boot #%d", d.boots)

	if flag.ByName["-scan"] {
		for _, a := range d.master.Scan() {
			log.Printf("target at 0x%02X", a)
		}
	}

	if flag.ByName["-ui"] {
		if err := ui.RunUI(ui.New(d, d.display, d.board.Controllers(), scale)); err != nil {
			log.Printf("ui: %s", err)
		}
	} else {
		for i := 0; i < frames; i++ {
			if err := d.Step(); err != nil {
				log.Fatalf("frame %d: %s", i, err)
			}
		}
		log.Printf("%d frames, bar at column %d", frames, d.x)
	}

	if romPath != "" && d.rom.Dirty() {
		if err := d.rom.Save(romPath); err != nil {
			log.Fatalf("couldn't save the eeprom: %s", err)
		}
	}
}

func intParm(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
