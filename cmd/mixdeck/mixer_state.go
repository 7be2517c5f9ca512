package main

import (
	"time"

	"mixdeck"
)

// MixerConfig is the reducer's view of the configuration.
type MixerConfig struct {
	Targets []TargetConfig

	RouteNames   mixdeck.RouteNames
	RouteLEDs    [2]int // indexed by mixdeck.Route
	InitialRoute mixdeck.Route

	// SettleDelay is held after a route switch before the forced report.
	SettleDelay time.Duration
	// BootDelay is held after the boot "set" message before the first report.
	BootDelay time.Duration

	AutoMute AutoMuteRule
}

// TargetConfig is one mute target's static binding.
type TargetConfig struct {
	Name       string
	ButtonPin  int
	LEDPin     int
	RouteAware bool
}

// AutoMuteRule couples a slider channel to a mute target.
// A negative Channel disables the rule.
type AutoMuteRule struct {
	Channel   int
	Target    int
	Threshold int
}

func (r AutoMuteRule) enabled(cfg MixerConfig) bool {
	return r.Channel >= 0 && r.Target >= 0 && r.Target < len(cfg.Targets)
}

// TargetName returns the device name reported for target i while route is
// active. Route-aware targets follow the active output.
func (c MixerConfig) TargetName(i int, route mixdeck.Route) string {
	if i < 0 || i >= len(c.Targets) {
		return ""
	}
	t := c.Targets[i]
	if t.RouteAware {
		return c.RouteNames.Name(route)
	}
	return t.Name
}

// MixerState is the loop-owned state the reducer threads through.
//
// Only the control loop goroutine touches it. Other goroutines obtain a copy
// through RequestStateSnapshot.
type MixerState struct {
	// Levels are the slider levels most recently reported downstream.
	Levels      []int
	LevelsKnown bool

	Targets []TargetState

	Route mixdeck.Route

	// Reports counts slider reports sent since boot.
	Reports int
}

// TargetState is the persistent state of one mute target.
type TargetState struct {
	Muted bool

	// MutedByLevel is set when the current mute came from the slider
	// crossing below the auto-mute threshold. Only such a mute is lifted
	// automatically when the slider comes back up.
	MutedByLevel bool
}

// NewMixerState returns the power-on state: nothing muted, initial route.
func NewMixerState(cfg MixerConfig) *MixerState {
	return &MixerState{
		Targets: make([]TargetState, len(cfg.Targets)),
		Route:   cfg.InitialRoute,
	}
}

// setMuted records a mute change for target i.
func (s *MixerState) setMuted(i int, muted, byLevel bool) {
	s.Targets[i].Muted = muted
	s.Targets[i].MutedByLevel = muted && byLevel
}

// setReported records a slider report.
func (s *MixerState) setReported(levels []int) {
	s.Levels = append(s.Levels[:0], levels...)
	s.LevelsKnown = true
	s.Reports++
}

// StateSnapshot is an immutable copy of MixerState for other goroutines.
type StateSnapshot struct {
	Levels      []int
	LevelsKnown bool
	Targets     []TargetSnapshot
	Route       string
	Reports     int
}

type TargetSnapshot struct {
	Name         string
	Muted        bool
	MutedByLevel bool
}

// Snapshot copies s, resolving names against cfg.
func (s *MixerState) Snapshot(cfg MixerConfig) StateSnapshot {
	snap := StateSnapshot{
		Levels:      append([]int(nil), s.Levels...),
		LevelsKnown: s.LevelsKnown,
		Targets:     make([]TargetSnapshot, len(s.Targets)),
		Route:       cfg.RouteNames.Name(s.Route),
		Reports:     s.Reports,
	}
	for i, t := range s.Targets {
		snap.Targets[i] = TargetSnapshot{
			Name:         cfg.TargetName(i, s.Route),
			Muted:        t.Muted,
			MutedByLevel: t.MutedByLevel,
		}
	}
	return snap
}

// ==============================
// Broadcasts (state stream)
// ==============================

// StateBroadcast is a reducer-emitted, externally observable state change.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastSliderLevels is emitted for every slider report sent.
type BroadcastSliderLevels struct {
	Levels []int
	Forced bool
}

func (BroadcastSliderLevels) broadcastMarker() {}

// BroadcastMuteChanged is emitted when a target's mute state flips.
type BroadcastMuteChanged struct {
	Target  int
	Name    string
	Muted   bool
	ByLevel bool
}

func (BroadcastMuteChanged) broadcastMarker() {}

// BroadcastRouteChanged is emitted at boot and on every route switch.
type BroadcastRouteChanged struct {
	Route string
}

func (BroadcastRouteChanged) broadcastMarker() {}
