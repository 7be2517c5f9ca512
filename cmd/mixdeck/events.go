package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - reducer inputs
// ============================================================================
// Events come from three places:
//   - the control loop's own polling (debounced presses, slider reports)
//   - local clients over IPC (virtual presses, simulated pin input)
//   - the effects layer (command failures)
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Boot runs the one-time startup sequence: LEDs, "set <route>", first report.
type Boot struct{}

func (Boot) eventMarker() {}

// ButtonPressed is a clean press edge on a mute target's button.
type ButtonPressed struct {
	Target int `json:"target"`
}

func (ButtonPressed) eventMarker() {}

// SwitchPressed is a clean press edge on the route switch.
type SwitchPressed struct{}

func (SwitchPressed) eventMarker() {}

// SliderLevels carries a slider report produced by the sampler.
// It is only emitted when a channel crossed the change threshold or when the
// report was forced.
type SliderLevels struct {
	Levels []int `json:"levels"`
	Forced bool  `json:"forced,omitempty"`
}

func (SliderLevels) eventMarker() {}

// SetMute requests an explicit mute state for a target.
type SetMute struct {
	Target int  `json:"target"`
	Muted  bool `json:"muted"`
}

func (SetMute) eventMarker() {}

// SelectRoute requests a specific output route by device name or by
// "primary"/"secondary".
type SelectRoute struct {
	Route string `json:"route"`
}

func (SelectRoute) eventMarker() {}

// ForceReport requests an immediate full slider report.
type ForceReport struct{}

func (ForceReport) eventMarker() {}

// SimAnalog sets a raw analog reading on the simulated board.
// The control loop applies it before the next poll; the reducer ignores it.
type SimAnalog struct {
	Pin   int `json:"pin"`
	Value int `json:"value"`
}

func (SimAnalog) eventMarker() {}

// SimDigital closes (Active) or opens a contact on the simulated board.
type SimDigital struct {
	Pin    int  `json:"pin"`
	Active bool `json:"active"`
}

func (SimDigital) eventMarker() {}

// RequestStateSnapshot asks the loop for a coherent state snapshot.
// The reply is delivered by the effects layer.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope carries remote-control events over IPC with a type
// discriminator. Only events a client may send are encodable.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "press_button":
		var a ButtonPressed
		if err := decodeData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonPressed: %w", err)
		}
		return a, nil

	case "press_switch":
		return SwitchPressed{}, nil

	case "force_report":
		return ForceReport{}, nil

	case "set_mute":
		var a SetMute
		if err := decodeData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetMute: %w", err)
		}
		return a, nil

	case "select_route":
		var a SelectRoute
		if err := decodeData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SelectRoute: %w", err)
		}
		if a.Route == "" {
			return nil, fmt.Errorf("select_route: route must not be empty")
		}
		return a, nil

	case "sim_analog":
		var a SimAnalog
		if err := decodeData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SimAnalog: %w", err)
		}
		return a, nil

	case "sim_digital":
		var a SimDigital
		if err := decodeData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SimDigital: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// decodeData treats a missing payload as an empty object.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	withData := func(typ string, v any) error {
		env.Type = typ
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch e := e.(type) {
	case ButtonPressed:
		err = withData("press_button", e)
	case SwitchPressed:
		env.Type = "press_switch"
	case ForceReport:
		env.Type = "force_report"
	case SetMute:
		err = withData("set_mute", e)
	case SelectRoute:
		err = withData("select_route", e)
	case SimAnalog:
		err = withData("sim_analog", e)
	case SimDigital:
		err = withData("sim_digital", e)
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}
