// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package polling computes how often a position source should deliver fixes for a given phase and speed.
package polling

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wneessen/arrival-alarm/internal/phase"
)

const (
	DefaultRestInterval        = 10 * time.Minute
	DefaultApproachInterval    = 3 * time.Minute
	DefaultPrepareInterval     = time.Minute
	DefaultDistanceFilter      = 10.0
	DefaultHighSpeedMultiplier = 0.3
	DefaultHighSpeedMin        = 10 * time.Second
	DefaultHighSpeedMax        = 30 * time.Second
)

var ErrInvalidConfig = errors.New("invalid polling configuration")

// Directive tells a position source how to sample. A time-based directive has a positive Interval and
// no DistanceFilter, a distance-based directive has a positive DistanceFilter and no Interval.
type Directive struct {
	Interval       time.Duration
	DistanceFilter float64
}

// DistanceBased reports whether the directive asks for movement-triggered fixes.
func (d Directive) DistanceBased() bool {
	return d.DistanceFilter > 0
}

// IsZero reports whether the directive is unset.
func (d Directive) IsZero() bool {
	return d.Interval == 0 && d.DistanceFilter == 0
}

func (d Directive) String() string {
	if d.DistanceBased() {
		return fmt.Sprintf("every %gm", d.DistanceFilter)
	}
	return "every " + d.Interval.String()
}

// Config holds the per-phase base intervals and the high-speed override parameters.
type Config struct {
	RestInterval     time.Duration
	ApproachInterval time.Duration
	PrepareInterval  time.Duration
	DistanceFilter   float64

	HighSpeedMultiplier float64
	HighSpeedMin        time.Duration
	HighSpeedMax        time.Duration
}

// DefaultConfig returns the standard polling cadence.
func DefaultConfig() Config {
	return Config{
		RestInterval:        DefaultRestInterval,
		ApproachInterval:    DefaultApproachInterval,
		PrepareInterval:     DefaultPrepareInterval,
		DistanceFilter:      DefaultDistanceFilter,
		HighSpeedMultiplier: DefaultHighSpeedMultiplier,
		HighSpeedMin:        DefaultHighSpeedMin,
		HighSpeedMax:        DefaultHighSpeedMax,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.RestInterval <= 0 || c.ApproachInterval <= 0 || c.PrepareInterval <= 0 {
		return fmt.Errorf("%w: phase intervals must be positive", ErrInvalidConfig)
	}
	if c.DistanceFilter <= 0 || math.IsNaN(c.DistanceFilter) || math.IsInf(c.DistanceFilter, 0) {
		return fmt.Errorf("%w: distance filter must be positive", ErrInvalidConfig)
	}
	if c.HighSpeedMultiplier <= 0 || math.IsNaN(c.HighSpeedMultiplier) || math.IsInf(c.HighSpeedMultiplier, 0) {
		return fmt.Errorf("%w: high speed multiplier must be positive", ErrInvalidConfig)
	}
	if c.HighSpeedMin <= 0 || c.HighSpeedMin > c.HighSpeedMax {
		return fmt.Errorf("%w: high speed clamp must satisfy 0 < min (%s) <= max (%s)", ErrInvalidConfig,
			c.HighSpeedMin, c.HighSpeedMax)
	}
	return nil
}

// Scheduler maps a phase and the high-speed flag onto a Directive. It holds no timer state.
type Scheduler struct {
	config Config
}

// NewScheduler returns a Scheduler for the given configuration.
func NewScheduler(config Config) (Scheduler, error) {
	if err := config.Validate(); err != nil {
		return Scheduler{}, err
	}
	return Scheduler{config: config}, nil
}

// Next returns the directive for p. When highSpeed is set, time-based intervals are scaled by the
// high-speed multiplier and clamped to the high-speed bounds. The target phase always uses the
// distance filter.
func (s Scheduler) Next(p phase.Phase, highSpeed bool) Directive {
	var base time.Duration
	switch p {
	case phase.Target:
		return Directive{DistanceFilter: s.config.DistanceFilter}
	case phase.Prepare:
		base = s.config.PrepareInterval
	case phase.Approach:
		base = s.config.ApproachInterval
	default:
		base = s.config.RestInterval
	}

	if highSpeed {
		base = s.clamp(time.Duration(math.Round(float64(base) * s.config.HighSpeedMultiplier)))
	}
	return Directive{Interval: base}
}

func (s Scheduler) clamp(d time.Duration) time.Duration {
	return min(max(d, s.config.HighSpeedMin), s.config.HighSpeedMax)
}
