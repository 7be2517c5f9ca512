package main

import "time"

// SamplerConfig controls slider normalization and noise suppression.
type SamplerConfig struct {
	Pins []int

	// Raw reports ADC counts (0..ADCMax) instead of percent (0..100).
	Raw    bool
	ADCMax int

	// ChangeThreshold is the minimum accepted change in percent of full scale.
	ChangeThreshold float64

	// Interval is the minimum time between two unforced samples.
	Interval time.Duration
}

// AnalogReader is the part of a Board the sampler needs.
type AnalogReader interface {
	AnalogRead(pin int) int
}

// Sampler turns raw slider readings into threshold-gated level reports.
//
// Owned by the control loop goroutine; not safe for concurrent use.
type Sampler struct {
	cfg   SamplerConfig
	board AnalogReader
	now   func() time.Time

	accepted []int // per-channel baseline, updated only on accepted change
	current  []int // levels read by the last sample
	lastAt   time.Time
	sampled  bool
}

// NewSampler creates a sampler with a zero baseline for every channel.
func NewSampler(cfg SamplerConfig, board AnalogReader, now func() time.Time) *Sampler {
	if cfg.ADCMax <= 0 {
		cfg.ADCMax = defaultADCMax
	}
	if now == nil {
		now = time.Now
	}
	return &Sampler{
		cfg:      cfg,
		board:    board,
		now:      now,
		accepted: make([]int, len(cfg.Pins)),
		current:  make([]int, len(cfg.Pins)),
	}
}

// Channels returns the number of sliders.
func (s *Sampler) Channels() int { return len(s.cfg.Pins) }

// Scale returns the full-scale value of reported levels.
func (s *Sampler) Scale() int {
	if s.cfg.Raw {
		return s.cfg.ADCMax
	}
	return 100
}

// Sample reads all sliders and reports whether any channel moved by at least
// the change threshold since its last accepted level.
//
// Unforced calls inside the rate-limit interval do not touch the board and
// report no change. A forced call always reads the board and returns the
// current levels; changed still reflects the threshold test.
func (s *Sampler) Sample(force bool) (levels []int, changed bool) {
	now := s.now()
	if !force && s.sampled && now.Sub(s.lastAt) < s.cfg.Interval {
		return nil, false
	}
	s.lastAt = now
	s.sampled = true

	scale := float64(s.Scale())
	for i, pin := range s.cfg.Pins {
		level := s.normalize(s.board.AnalogRead(pin))
		s.current[i] = level

		delta := level - s.accepted[i]
		if delta < 0 {
			delta = -delta
		}
		if float64(delta)*100/scale >= s.cfg.ChangeThreshold {
			s.accepted[i] = level
			changed = true
		}
	}

	out := make([]int, len(s.current))
	copy(out, s.current)
	return out, changed
}

func (s *Sampler) normalize(raw int) int {
	if raw < 0 {
		raw = 0
	}
	if raw > s.cfg.ADCMax {
		raw = s.cfg.ADCMax
	}
	if s.cfg.Raw {
		return raw
	}
	return raw * 100 / s.cfg.ADCMax
}
