package main

// Edge is the outcome of polling one digital input.
type Edge uint8

const (
	NoChange Edge = iota
	Pressed
	Released
)

func (e Edge) String() string {
	switch e {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return "no_change"
	}
}

// Debouncer is an edge latch over a fixed set of digital inputs.
//
// Each input is Idle or Held. An active read while Idle moves it to Held and
// yields Pressed exactly once; the next inactive read re-arms it and yields
// Released. There is no timing filter: chatter faster than the poll cadence
// is not seen.
type Debouncer struct {
	held []bool
}

// NewDebouncer creates a debouncer for n inputs, all Idle.
func NewDebouncer(n int) *Debouncer {
	return &Debouncer{held: make([]bool, n)}
}

// Poll feeds the current reading of input id. active is true while the
// physical contact is closed (pin pulled LOW).
func (d *Debouncer) Poll(id int, active bool) Edge {
	if id < 0 || id >= len(d.held) {
		return NoChange
	}
	switch {
	case active && !d.held[id]:
		d.held[id] = true
		return Pressed
	case !active && d.held[id]:
		d.held[id] = false
		return Released
	default:
		return NoChange
	}
}

// Held reports whether input id is latched.
func (d *Debouncer) Held(id int) bool {
	return id >= 0 && id < len(d.held) && d.held[id]
}
