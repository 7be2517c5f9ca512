package main

import (
	"fmt"
	"slices"
	"strings"

	"mixdeck"
)

// receiver mirrors the host mixer's view of the control surface: one volume
// per slider, a mute flag per device and the active output device.
type receiver struct {
	names  mixdeck.RouteNames
	active mixdeck.Route
	levels []int
	muted  map[string]bool
}

func newReceiver(names mixdeck.RouteNames) *receiver {
	return &receiver{
		names: names,
		muted: make(map[string]bool),
	}
}

// apply updates the mirror and describes what changed. A slider report that
// repeats the current levels yields no lines.
func (r *receiver) apply(msg mixdeck.Message) []string {
	switch msg.Kind {
	case mixdeck.KindSliders:
		var out []string
		for i, v := range msg.Levels {
			if i < len(r.levels) && r.levels[i] == v {
				continue
			}
			out = append(out, fmt.Sprintf("volume %d -> %d%%", i, v))
		}
		r.levels = append(r.levels[:0], msg.Levels...)
		return out

	case mixdeck.KindSwitch:
		r.active = r.active.Other()
		return []string{"output -> " + r.names.Name(r.active)}

	case mixdeck.KindSet:
		route, err := r.names.Lookup(msg.Name)
		if err != nil {
			return []string{"set: unknown device " + msg.Name}
		}
		if route == r.active {
			return nil
		}
		r.active = route
		return []string{"output -> " + r.names.Name(r.active)}

	case mixdeck.KindMute, mixdeck.KindUnmute:
		muted := msg.Kind == mixdeck.KindMute
		if r.muted[msg.Name] == muted {
			return nil
		}
		r.muted[msg.Name] = muted
		if muted {
			return []string{msg.Name + " muted"}
		}
		return []string{msg.Name + " unmuted"}
	}
	return nil
}

// summary is a one-line view of the whole mirror.
func (r *receiver) summary() string {
	levels := make([]string, len(r.levels))
	for i, v := range r.levels {
		levels[i] = fmt.Sprint(v)
	}
	var muted []string
	for name, m := range r.muted {
		if m {
			muted = append(muted, name)
		}
	}
	slices.Sort(muted)
	return fmt.Sprintf("output=%s levels=[%s] muted=%v",
		r.names.Name(r.active), strings.Join(levels, " "), muted)
}
