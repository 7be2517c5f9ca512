package mixdeck

import (
	"errors"
	"strconv"
	"strings"
)

// Serial frames between the firmware and the daemon.
//
// Device to host, one line per sampling tick:
//
//	A34=512 A35=0 D14=1 D5=1
//
// A is a raw analog reading, D a digital level (1 = HIGH).
//
// Host to device, one line per LED write:
//
//	L12=1

// DefaultBaudRate is the UART speed used by the firmware.
const DefaultBaudRate = 115200

// Pin reading kinds.
const (
	PinAnalog  byte = 'A'
	PinDigital byte = 'D'
	PinLED     byte = 'L'
)

// Reading is one pin value inside a frame.
type Reading struct {
	Kind  byte
	Pin   int
	Value int
}

var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrBadField   = errors.New("malformed frame field")
)

// AppendFrame appends the line for readings, including the trailing newline.
func AppendFrame(dst []byte, readings []Reading) []byte {
	for i, r := range readings {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = appendField(dst, r.Kind, r.Pin, r.Value)
	}
	return append(dst, '\n')
}

// ParseFrame parses a device to host line. Unknown field kinds are rejected.
func ParseFrame(line string) ([]Reading, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyFrame
	}
	out := make([]Reading, 0, len(fields))
	for _, f := range fields {
		r, err := parseField(f)
		if err != nil {
			return nil, err
		}
		if r.Kind != PinAnalog && r.Kind != PinDigital {
			return nil, ErrBadField
		}
		out = append(out, r)
	}
	return out, nil
}

// AppendLED appends a host to device LED command line.
func AppendLED(dst []byte, pin int, high bool) []byte {
	v := 0
	if high {
		v = 1
	}
	dst = appendField(dst, PinLED, pin, v)
	return append(dst, '\n')
}

// ParseLED parses an LED command line.
func ParseLED(line string) (pin int, high bool, err error) {
	r, err := parseField(strings.TrimSpace(line))
	if err != nil {
		return 0, false, err
	}
	if r.Kind != PinLED || (r.Value != 0 && r.Value != 1) {
		return 0, false, ErrBadField
	}
	return r.Pin, r.Value == 1, nil
}

func appendField(dst []byte, kind byte, pin, value int) []byte {
	dst = append(dst, kind)
	dst = strconv.AppendInt(dst, int64(pin), 10)
	dst = append(dst, '=')
	return strconv.AppendInt(dst, int64(value), 10)
}

func parseField(f string) (Reading, error) {
	if len(f) < 4 {
		return Reading{}, ErrBadField
	}
	pinStr, valStr, ok := strings.Cut(f[1:], "=")
	if !ok {
		return Reading{}, ErrBadField
	}
	pin, err := strconv.Atoi(pinStr)
	if err != nil || pin < 0 {
		return Reading{}, ErrBadField
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return Reading{}, ErrBadField
	}
	return Reading{Kind: f[0], Pin: pin, Value: val}, nil
}
