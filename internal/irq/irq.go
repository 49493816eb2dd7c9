// Package irq is a level-sensitive interrupt controller.
package irq

import (
	"fmt"
	"io"
	"log"
)

// MaxLines is the number of interrupt inputs.
const MaxLines = 16

const maxRetrigger = 1024

// Handler is the service routine for one line. It runs synchronously when the
// line rises while unmasked, and again when the line is unmasked while high.
type Handler func(n int)

// Controller latches line levels in Status; Mask selects which of them
// interrupt.
type Controller struct {
	Status uint16
	Mask   uint16

	handlers [MaxLines]Handler
	log      *log.Logger

	// lines currently inside their handler
	servicing uint16
}

func New(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Controller{log: logger}
}

// Line returns the input n. It satisfies twi.Line.
func (c *Controller) Line(n int) (*Line, error) {
	if n < 0 || n >= MaxLines {
		return nil, fmt.Errorf("irq: line %d out of range", n)
	}
	return &Line{c: c, n: n}, nil
}

// Handle installs the service routine for line n and unmasks it.
func (c *Controller) Handle(n int, h Handler) {
	c.handlers[n] = h
	c.SetMask(c.Mask | 1<<n)
}

// Active reports whether any unmasked line is high.
func (c *Controller) Active() bool {
	return c.Status&c.Mask != 0
}

// High reports the level of line n.
func (c *Controller) High(n int) bool {
	return c.Status&(1<<n) != 0
}

func (c *Controller) SetMask(mask uint16) {
	rising := mask &^ c.Mask
	c.Mask = mask
	for n := 0; n < MaxLines; n++ {
		if rising&c.Status&(1<<n) != 0 {
			c.dispatch(n)
		}
	}
}

func (c *Controller) set(n int, high bool) {
	bit := uint16(1) << n
	was := c.Status&bit != 0
	if high {
		c.Status |= bit
	} else {
		c.Status &^= bit
	}
	if high && !was && c.Mask&bit != 0 {
		c.dispatch(n)
	}
}

func (c *Controller) dispatch(n int) {
	bit := uint16(1) << n
	h := c.handlers[n]
	if h == nil || c.servicing&bit != 0 {
		return
	}
	c.servicing |= bit
	defer func() { c.servicing &^= bit }()

	c.log.Printf("irq: line %d", n)
	h(n)
	// a line left high retriggers after the handler returns
	for i := 0; c.Status&c.Mask&bit != 0; i++ {
		if i == maxRetrigger {
			c.log.Printf("irq: line %d stuck high", n)
			return
		}
		h(n)
	}
}

// Line is one input of the controller.
type Line struct {
	c *Controller
	n int
}

func (l *Line) Assert() {
	l.c.set(l.n, true)
}

func (l *Line) Deassert() {
	l.c.set(l.n, false)
}

func (l *Line) Number() int {
	return l.n
}
