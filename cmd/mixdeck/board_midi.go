package main

import (
	"fmt"
	"log/slog"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDIBoard turns a MIDI control surface into a board.
//
// Faders (control change) become analog pins scaled to the ADC range, pads or
// keys (notes) become pull-up digital inputs, and LED pins are echoed back as
// notes whose velocity follows the pin level.
type MIDIBoard struct {
	pins    *pinCache
	channel uint8
	adcMax  int

	faders map[uint8]int // controller -> analog pin
	keys   map[uint8]int // note -> input pin
	leds   map[int]uint8 // output pin -> note

	sendMu sync.Mutex
	send   func(gomidi.Message) error // nil when no output port is configured
	stop   func()

	logger *slog.Logger
}

// OpenMIDIBoard finds the configured ports and starts listening.
func OpenMIDIBoard(cfg MIDIBoardConfig, adcMax int, logger *slog.Logger) (*MIDIBoard, error) {
	in, err := gomidi.FindInPort(cfg.InPort)
	if err != nil {
		return nil, fmt.Errorf("find midi input %q: %w", cfg.InPort, err)
	}

	var send func(gomidi.Message) error
	if cfg.OutPort != "" {
		out, err := gomidi.FindOutPort(cfg.OutPort)
		if err != nil {
			return nil, fmt.Errorf("find midi output %q: %w", cfg.OutPort, err)
		}
		send, err = gomidi.SendTo(out)
		if err != nil {
			return nil, fmt.Errorf("open midi output %q: %w", cfg.OutPort, err)
		}
	}

	b := newMIDIBoard(cfg, adcMax, send, logger)

	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		b.handleMessage(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listen midi input %q: %w", cfg.InPort, err)
	}
	b.stop = stop

	logger.Info("midi board open", "in", in.String(), "out", cfg.OutPort, "channel", cfg.Channel,
		"faders", sortedKeys(cfg.Faders), "keys", sortedKeys(cfg.Keys))
	return b, nil
}

func newMIDIBoard(cfg MIDIBoardConfig, adcMax int, send func(gomidi.Message) error, logger *slog.Logger) *MIDIBoard {
	if logger == nil {
		logger = discardLogger()
	}
	if adcMax <= 0 {
		adcMax = defaultADCMax
	}
	b := &MIDIBoard{
		pins:    newPinCache(),
		channel: uint8(cfg.Channel),
		adcMax:  adcMax,
		faders:  make(map[uint8]int, len(cfg.Faders)),
		keys:    make(map[uint8]int, len(cfg.Keys)),
		leds:    make(map[int]uint8, len(cfg.LEDs)),
		send:    send,
		logger:  logger,
	}
	for cc, pin := range cfg.Faders {
		b.faders[uint8(cc)] = pin
	}
	for note, pin := range cfg.Keys {
		b.keys[uint8(note)] = pin
	}
	for pin, note := range cfg.LEDs {
		b.leds[pin] = uint8(note)
	}
	return b
}

// handleMessage updates the pin cache from one incoming message.
func (b *MIDIBoard) handleMessage(msg gomidi.Message) {
	var ch, key, vel, cc, val uint8

	switch {
	case msg.GetControlChange(&ch, &cc, &val):
		if ch != b.channel {
			return
		}
		if pin, ok := b.faders[cc]; ok {
			b.pins.setAnalog(pin, int(val)*b.adcMax/127)
		}

	case msg.GetNoteOn(&ch, &key, &vel):
		if ch != b.channel {
			return
		}
		if pin, ok := b.keys[key]; ok {
			// Velocity 0 is a note off by convention.
			b.pins.setDigital(pin, vel == 0)
		}

	case msg.GetNoteOff(&ch, &key, &vel):
		if ch != b.channel {
			return
		}
		if pin, ok := b.keys[key]; ok {
			b.pins.setDigital(pin, HIGH)
		}
	}
}

func (b *MIDIBoard) Configure(setup PinSetup) error {
	for _, p := range setup.Outputs {
		if _, ok := b.leds[p]; !ok {
			b.logger.Warn("midi board has no note for output pin", "pin", p)
		}
	}
	return nil
}

func (b *MIDIBoard) AnalogRead(pin int) int   { return b.pins.analogValue(pin) }
func (b *MIDIBoard) DigitalRead(pin int) bool { return b.pins.digitalValue(pin) }

// DigitalWrite echoes the level as a note. Unmapped pins are kept in the
// cache only.
func (b *MIDIBoard) DigitalWrite(pin int, high bool) error {
	b.pins.setOutput(pin, high)

	note, ok := b.leds[pin]
	if !ok || b.send == nil {
		return nil
	}
	var vel uint8
	if high {
		vel = 127
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if err := b.send(gomidi.NoteOn(b.channel, note, vel)); err != nil {
		return fmt.Errorf("midi led note %d: %w", note, err)
	}
	return nil
}

func (b *MIDIBoard) Close() error {
	if b.stop != nil {
		b.stop()
		b.stop = nil
	}
	return nil
}
