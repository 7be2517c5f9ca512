package main

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Board is the hardware the control surface runs on.
//
// Pins are identified by their board numbers. Digital inputs are wired with
// pull-ups: DigitalRead returns LOW (false) while a contact is closed.
// Reads never fail; a driver returns the last value it saw (zero / HIGH
// before the first reading).
type Board interface {
	Configure(setup PinSetup) error
	AnalogRead(pin int) int
	DigitalRead(pin int) bool
	DigitalWrite(pin int, high bool) error
	Close() error
}

// PinSetup lists the pins the control surface uses.
type PinSetup struct {
	Analog  []int
	Inputs  []int // pull-up inputs
	Outputs []int
}

// pinSetupFor derives the pin setup from the configuration.
func pinSetupFor(cfg *Config) PinSetup {
	var ps PinSetup
	ps.Analog = append(ps.Analog, cfg.Sliders.Pins...)
	for _, t := range cfg.Mute.Targets {
		ps.Inputs = appendUnique(ps.Inputs, t.ButtonPin)
		ps.Outputs = appendUnique(ps.Outputs, t.LEDPin)
	}
	ps.Inputs = appendUnique(ps.Inputs, cfg.Route.SwitchPin)
	ps.Outputs = appendUnique(ps.Outputs, cfg.Route.Primary.LEDPin)
	ps.Outputs = appendUnique(ps.Outputs, cfg.Route.Secondary.LEDPin)
	return ps
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// openBoard opens the driver selected in the config.
func openBoard(cfg *Config, logger *slog.Logger) (Board, error) {
	switch cfg.Board.Driver {
	case BoardSerial:
		return OpenSerialBoard(cfg.Board.Serial, logger)
	case BoardMIDI:
		return OpenMIDIBoard(cfg.Board.MIDI, cfg.Sliders.ADCMax, logger)
	case BoardEvdev:
		return OpenEvdevBoard(cfg.Board.Evdev, cfg.Sliders.ADCMax, logger)
	case BoardSim:
		return NewMemBoard(), nil
	default:
		return nil, fmt.Errorf("unknown board driver %q", cfg.Board.Driver)
	}
}

// ============================================================================
// pinCache - latest readings shared between a driver's reader goroutine and
// the control loop
// ============================================================================

type pinCache struct {
	mu      sync.Mutex
	analog  map[int]int
	digital map[int]bool
	outputs map[int]bool
}

func newPinCache() *pinCache {
	return &pinCache{
		analog:  make(map[int]int),
		digital: make(map[int]bool),
		outputs: make(map[int]bool),
	}
}

func (c *pinCache) setAnalog(pin, v int) {
	c.mu.Lock()
	c.analog[pin] = v
	c.mu.Unlock()
}

func (c *pinCache) setDigital(pin int, high bool) {
	c.mu.Lock()
	c.digital[pin] = high
	c.mu.Unlock()
}

func (c *pinCache) setOutput(pin int, high bool) {
	c.mu.Lock()
	c.outputs[pin] = high
	c.mu.Unlock()
}

func (c *pinCache) analogValue(pin int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analog[pin]
}

// digitalValue defaults to HIGH: an unseen pull-up input is open.
func (c *pinCache) digitalValue(pin int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.digital[pin]
	if !ok {
		return HIGH
	}
	return v
}

func (c *pinCache) outputValue(pin int) (high, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	high, ok = c.outputs[pin]
	return high, ok
}

// ============================================================================
// MemBoard - in-memory board for the sim driver and tests
// ============================================================================

// MemBoard keeps all pins in memory. Inputs are set through SetAnalog and
// SetContact, typically from IPC sim events.
type MemBoard struct {
	pins *pinCache

	mu         sync.Mutex
	configured PinSetup
}

func NewMemBoard() *MemBoard {
	return &MemBoard{pins: newPinCache()}
}

func (b *MemBoard) Configure(setup PinSetup) error {
	b.mu.Lock()
	b.configured = setup
	b.mu.Unlock()
	for _, p := range setup.Inputs {
		b.pins.setDigital(p, HIGH)
	}
	for _, p := range setup.Outputs {
		if _, ok := b.pins.outputValue(p); !ok {
			b.pins.setOutput(p, LOW)
		}
	}
	return nil
}

func (b *MemBoard) AnalogRead(pin int) int   { return b.pins.analogValue(pin) }
func (b *MemBoard) DigitalRead(pin int) bool { return b.pins.digitalValue(pin) }

func (b *MemBoard) DigitalWrite(pin int, high bool) error {
	b.pins.setOutput(pin, high)
	return nil
}

func (b *MemBoard) Close() error { return nil }

// SetAnalog sets a raw analog reading.
func (b *MemBoard) SetAnalog(pin, raw int) { b.pins.setAnalog(pin, raw) }

// SetContact closes (active) or opens the contact on a pull-up input.
func (b *MemBoard) SetContact(pin int, active bool) { b.pins.setDigital(pin, !active) }

// Output returns the last level written to pin.
func (b *MemBoard) Output(pin int) (high, ok bool) { return b.pins.outputValue(pin) }

// Configured returns the pin setup passed to Configure.
func (b *MemBoard) Configured() PinSetup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configured
}

// sortedKeys returns map keys in ascending order for stable logging.
func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
