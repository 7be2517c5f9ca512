package main

import "mixdeck"

// This file is the mixer's decision point. Reduce combines sampler and
// debouncer output (plus remote-control events) into the next state and the
// side effects the control loop must perform, in order.
//
// The reducer performs no I/O and never blocks. Delays and forced samples are
// requested as commands so the loop stays the only place that touches the
// board, the network and the clock.

// ReduceResult is the output of Reduce.
//
// Commands run in order. Broadcasts are best-effort notifications for the
// state stream.
type ReduceResult struct {
	State      *MixerState
	Commands   []Command
	Broadcasts []StateBroadcast
}

type reduction struct {
	s     *MixerState
	cfg   MixerConfig
	cmds  []Command
	bcast []StateBroadcast
}

func (r *reduction) send(m mixdeck.Message) {
	r.cmds = append(r.cmds, CmdSend{Message: m})
}

func (r *reduction) led(pin int, high bool) {
	r.cmds = append(r.cmds, CmdSetLED{Pin: pin, High: high})
}

func (r *reduction) emit(b StateBroadcast) {
	r.bcast = append(r.bcast, b)
}

// Reduce applies one event to the mixer state.
func Reduce(s *MixerState, e Event, cfg MixerConfig) ReduceResult {
	if s == nil {
		s = NewMixerState(cfg)
	}
	// Tolerate a config with more targets than the state was built for.
	for len(s.Targets) < len(cfg.Targets) {
		s.Targets = append(s.Targets, TargetState{})
	}

	r := &reduction{s: s, cfg: cfg}

	switch ev := e.(type) {
	case Boot:
		r.boot()

	case ButtonPressed:
		if r.validTarget(ev.Target) {
			r.applyMute(ev.Target, !s.Targets[ev.Target].Muted, false)
		}

	case SetMute:
		if r.validTarget(ev.Target) && s.Targets[ev.Target].Muted != ev.Muted {
			r.applyMute(ev.Target, ev.Muted, false)
		}

	case SwitchPressed:
		r.switchRoute(s.Route.Other())

	case SelectRoute:
		route, err := cfg.RouteNames.Lookup(ev.Route)
		if err == nil && route != s.Route {
			r.switchRoute(route)
		}

	case ForceReport:
		r.cmds = append(r.cmds, CmdForceReport{})

	case SliderLevels:
		r.report(ev.Levels, ev.Forced)

	case RequestStateSnapshot:
		if ev.Reply != nil {
			r.cmds = append(r.cmds, CmdPublishStateSnapshot{
				Reply:    ev.Reply,
				Snapshot: s.Snapshot(cfg),
			})
		}

	case CommandFailed:
		// Delivery is best-effort; the next decision is derived from local state.

	default:
		// SimAnalog/SimDigital are consumed by the loop; anything else is a no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcast,
	}
}

func (r *reduction) validTarget(i int) bool {
	return i >= 0 && i < len(r.cfg.Targets)
}

// boot configures every LED, asserts the initial route and forces the first
// full report after the boot delay.
func (r *reduction) boot() {
	r.s.Route = r.cfg.InitialRoute

	for i, t := range r.cfg.Targets {
		r.led(t.LEDPin, !r.s.Targets[i].Muted)
	}
	r.led(r.cfg.RouteLEDs[mixdeck.RoutePrimary], r.s.Route == mixdeck.RoutePrimary)
	r.led(r.cfg.RouteLEDs[mixdeck.RouteSecondary], r.s.Route == mixdeck.RouteSecondary)

	name := r.cfg.RouteNames.Name(r.s.Route)
	r.send(mixdeck.Set(name))
	r.emit(BroadcastRouteChanged{Route: name})

	if r.cfg.BootDelay > 0 {
		r.cmds = append(r.cmds, CmdSettle{Duration: r.cfg.BootDelay})
	}
	r.cmds = append(r.cmds, CmdForceReport{})
}

// applyMute sets target i's mute flag and emits LED + message + broadcast.
// Mute LEDs are active-low: LOW while muted.
func (r *reduction) applyMute(i int, muted, byLevel bool) {
	r.s.setMuted(i, muted, byLevel)

	name := r.cfg.TargetName(i, r.s.Route)
	r.led(r.cfg.Targets[i].LEDPin, !muted)
	r.send(mixdeck.MuteState(name, muted))
	r.emit(BroadcastMuteChanged{Target: i, Name: name, Muted: muted, ByLevel: muted && byLevel})
}

// switchRoute makes route active: both route LEDs off, the new one on,
// "switch", settle, then a forced report so the host sees the levels of the
// channel that just became active.
func (r *reduction) switchRoute(route mixdeck.Route) {
	r.s.Route = route

	r.led(r.cfg.RouteLEDs[mixdeck.RoutePrimary], LOW)
	r.led(r.cfg.RouteLEDs[mixdeck.RouteSecondary], LOW)
	r.led(r.cfg.RouteLEDs[route], HIGH)
	r.send(mixdeck.Switch())
	r.emit(BroadcastRouteChanged{Route: r.cfg.RouteNames.Name(route)})

	if r.cfg.SettleDelay > 0 {
		r.cmds = append(r.cmds, CmdSettle{Duration: r.cfg.SettleDelay})
	}
	r.cmds = append(r.cmds, CmdForceReport{})
}

// report sends a slider report and then evaluates the auto-mute rule against
// the bound channel.
func (r *reduction) report(levels []int, forced bool) {
	r.send(mixdeck.Sliders(levels))
	r.s.setReported(levels)
	r.emit(BroadcastSliderLevels{Levels: append([]int(nil), levels...), Forced: forced})

	rule := r.cfg.AutoMute
	if !rule.enabled(r.cfg) || rule.Channel >= len(levels) {
		return
	}
	level := levels[rule.Channel]
	t := r.s.Targets[rule.Target]

	switch {
	case level < rule.Threshold && !t.Muted:
		r.applyMute(rule.Target, true, true)
	case level >= rule.Threshold && t.Muted && t.MutedByLevel:
		r.applyMute(rule.Target, false, false)
	}
}
