package main

import (
	"log/slog"
	"sync/atomic"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// EvdevBoard maps Linux input devices (keyboards, media keys, joysticks)
// onto board pins. Keys become pull-up inputs, absolute axes become analog
// pins scaled to the ADC range. It has no outputs; LED writes are cached.
type EvdevBoard struct {
	pins   *pinCache
	keys   map[uint16]int
	axes   map[uint16]int
	absMax int
	adcMax int

	closed atomic.Bool
	close  func() error // closes the device files, set by the platform opener

	logger *slog.Logger
}

func newEvdevBoard(cfg EvdevBoardConfig, adcMax int, logger *slog.Logger) *EvdevBoard {
	if logger == nil {
		logger = discardLogger()
	}
	if adcMax <= 0 {
		adcMax = defaultADCMax
	}
	absMax := cfg.AbsMax
	if absMax <= 0 {
		absMax = defaultEvdevAbsMax
	}
	b := &EvdevBoard{
		pins:   newPinCache(),
		keys:   make(map[uint16]int, len(cfg.Keys)),
		axes:   make(map[uint16]int, len(cfg.Axes)),
		absMax: absMax,
		adcMax: adcMax,
		logger: logger,
	}
	for code, pin := range cfg.Keys {
		b.keys[uint16(code)] = pin
	}
	for code, pin := range cfg.Axes {
		b.axes[uint16(code)] = pin
	}
	return b
}

// handleEvent applies one input event to the pin cache.
func (b *EvdevBoard) handleEvent(ev inputEvent) {
	switch ev.Type {
	case EV_KEY:
		pin, ok := b.keys[ev.Code]
		if !ok {
			return
		}
		switch ev.Value {
		case evValuePress, evValueRepeat:
			b.pins.setDigital(pin, LOW)
		case evValueRelease:
			b.pins.setDigital(pin, HIGH)
		}

	case EV_ABS:
		pin, ok := b.axes[ev.Code]
		if !ok {
			return
		}
		v := int(ev.Value)
		if v < 0 {
			v = 0
		}
		if v > b.absMax {
			v = b.absMax
		}
		b.pins.setAnalog(pin, v*b.adcMax/b.absMax)
	}
}

func (b *EvdevBoard) Configure(setup PinSetup) error {
	if len(setup.Outputs) > 0 {
		b.logger.Debug("evdev board has no outputs; led writes are not shown", "outputs", setup.Outputs)
	}
	return nil
}

func (b *EvdevBoard) AnalogRead(pin int) int   { return b.pins.analogValue(pin) }
func (b *EvdevBoard) DigitalRead(pin int) bool { return b.pins.digitalValue(pin) }

func (b *EvdevBoard) DigitalWrite(pin int, high bool) error {
	b.pins.setOutput(pin, high)
	return nil
}

func (b *EvdevBoard) Close() error {
	if b.closed.Swap(true) || b.close == nil {
		return nil
	}
	return b.close()
}
