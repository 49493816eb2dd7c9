package twi

// Latch is the TWINT flag together with the TWIE enable bit. The pending flag
// is what firmware polls; the line is only driven while both are set.
type Latch struct {
	pending bool
	enabled bool

	// level last reported to the line collaborator
	level bool
}

func (l *Latch) SetPending() {
	l.pending = true
}

func (l *Latch) Clear() {
	l.pending = false
}

func (l *Latch) SetEnabled(v bool) {
	l.enabled = v
}

func (l *Latch) Pending() bool {
	return l.pending
}

func (l *Latch) Enabled() bool {
	return l.enabled
}

// Asserted is the level the interrupt line must have right now.
func (l *Latch) Asserted() bool {
	return l.pending && l.enabled
}

// sync returns the current level and whether it differs from the level last
// reported.
func (l *Latch) sync() (level, changed bool) {
	level = l.Asserted()
	changed = level != l.level
	l.level = level
	return level, changed
}

func (l *Latch) reset() {
	l.pending = false
	l.enabled = false
}
