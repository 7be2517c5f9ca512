// Package mixdeck holds the wire formats shared by the mixdeck daemon, its
// command line tools and the control-surface firmware.
//
// Two formats live here:
//   - the UDP text protocol spoken to the host mixer application
//   - the line-oriented serial frames exchanged with the firmware
//
// Both are plain ASCII and avoid fmt so the package builds under TinyGo.
package mixdeck

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultControlPort is the UDP port the host mixer application listens on.
const DefaultControlPort = 16991

// DefaultSliderPrefix is the tag word in front of a slider report.
const DefaultSliderPrefix = "sliders "

// Kind identifies an outbound message.
type Kind uint8

const (
	KindSliders Kind = iota + 1
	KindMute
	KindUnmute
	KindSet
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindSliders:
		return "sliders"
	case KindMute:
		return "mute"
	case KindUnmute:
		return "unmute"
	case KindSet:
		return "set"
	case KindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Message is one datagram of the host protocol.
//
// Name is used by mute, unmute and set. Levels is used by slider reports and
// holds one value per channel in channel order.
type Message struct {
	Kind   Kind
	Name   string
	Levels []int
}

// Mute builds a "mute <name>" message.
func Mute(name string) Message { return Message{Kind: KindMute, Name: name} }

// Unmute builds an "unmute <name>" message.
func Unmute(name string) Message { return Message{Kind: KindUnmute, Name: name} }

// MuteState builds a mute or unmute message for name.
func MuteState(name string, muted bool) Message {
	if muted {
		return Mute(name)
	}
	return Unmute(name)
}

// Set builds a "set <name>" message asserting the active output.
func Set(name string) Message { return Message{Kind: KindSet, Name: name} }

// Switch builds the route toggle message.
func Switch() Message { return Message{Kind: KindSwitch} }

// Sliders builds a slider report. The levels slice is copied.
func Sliders(levels []int) Message {
	cp := make([]int, len(levels))
	copy(cp, levels)
	return Message{Kind: KindSliders, Levels: cp}
}

// IsSliderReport reports whether m travels on the slider port.
func (m Message) IsSliderReport() bool { return m.Kind == KindSliders }

// Format renders m as datagram text. sliderPrefix is prepended to slider
// reports only; pass "" for the bare pipe-delimited form.
func (m Message) Format(sliderPrefix string) string {
	switch m.Kind {
	case KindSliders:
		var b strings.Builder
		b.WriteString(sliderPrefix)
		for i, v := range m.Levels {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(strconv.Itoa(v))
		}
		return b.String()
	case KindMute, KindUnmute, KindSet:
		return m.Kind.String() + " " + m.Name
	case KindSwitch:
		return "switch"
	default:
		return ""
	}
}

func (m Message) String() string { return m.Format(DefaultSliderPrefix) }

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrMissingName    = errors.New("missing device name")
	ErrUnknownMessage = errors.New("unknown message")
)

// ParseMessage parses datagram text. Slider reports are accepted with the
// given prefix or bare; a bare report must consist only of pipe-separated
// integers.
func ParseMessage(text, sliderPrefix string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	if text == "switch" {
		return Switch(), nil
	}

	if p := strings.TrimSpace(sliderPrefix); p != "" {
		if rest, ok := strings.CutPrefix(text, p+" "); ok {
			return parseLevels(rest)
		}
	}

	word, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	switch word {
	case "mute", "unmute", "set":
		if rest == "" {
			return Message{}, ErrMissingName
		}
		switch word {
		case "mute":
			return Mute(rest), nil
		case "unmute":
			return Unmute(rest), nil
		default:
			return Set(rest), nil
		}
	}

	if m, err := parseLevels(text); err == nil {
		return m, nil
	}
	return Message{}, ErrUnknownMessage
}

func parseLevels(s string) (Message, error) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	levels := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Message{}, errors.New("bad slider level " + strconv.Quote(p))
		}
		levels = append(levels, v)
	}
	return Message{Kind: KindSliders, Levels: levels}, nil
}
