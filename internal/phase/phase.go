// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package phase maps the distance to a target onto a coarse distance band. Transitions towards the
// target are eager while transitions away from it need to clear an exit buffer, so that GPS jitter
// around a band boundary does not flap the polling cadence.
package phase

import (
	"errors"
	"fmt"
	"math"
)

// Phase is a discrete distance band. The zero value is Rest, the coarsest band.
type Phase int

const (
	Rest Phase = iota
	Approach
	Prepare
	Target
)

// Default entry thresholds and exit buffer in meters.
const (
	DefaultTargetThreshold   = 1000
	DefaultPrepareThreshold  = 2000
	DefaultApproachThreshold = 10000
	DefaultExitBuffer        = 1000
)

var ErrInvalidBands = errors.New("invalid phase bands")

var names = map[Phase]string{
	Rest:     "rest",
	Approach: "approach",
	Prepare:  "prepare",
	Target:   "target",
}

// String returns the lower-case name of the phase.
func (p Phase) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Finer reports whether p is a smaller distance band than other.
func (p Phase) Finer(other Phase) bool {
	return p > other
}

// Bands holds the inclusive entry threshold of each band and the exit buffer that has to be cleared
// on top of it before a coarser band is entered again.
type Bands struct {
	Target   float64
	Prepare  float64
	Approach float64

	TargetExit   float64
	PrepareExit  float64
	ApproachExit float64
}

// DefaultBands returns the standard band layout.
func DefaultBands() Bands {
	return Bands{
		Target:       DefaultTargetThreshold,
		Prepare:      DefaultPrepareThreshold,
		Approach:     DefaultApproachThreshold,
		TargetExit:   DefaultExitBuffer,
		PrepareExit:  DefaultExitBuffer,
		ApproachExit: DefaultExitBuffer,
	}
}

// Validate checks that the thresholds are strictly increasing and the buffers are non-negative.
func (b Bands) Validate() error {
	for _, v := range []float64{b.Target, b.Prepare, b.Approach, b.TargetExit, b.PrepareExit, b.ApproachExit} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: thresholds and buffers must be finite and non-negative", ErrInvalidBands)
		}
	}
	if b.Target <= 0 || b.Target >= b.Prepare || b.Prepare >= b.Approach {
		return fmt.Errorf("%w: want 0 < target (%v) < prepare (%v) < approach (%v)", ErrInvalidBands,
			b.Target, b.Prepare, b.Approach)
	}
	return nil
}

// upper returns the entry threshold of p plus its exit buffer, i.e. the distance that has to be
// exceeded to leave p towards a coarser band.
func (b Bands) upper(p Phase) float64 {
	switch p {
	case Target:
		return b.Target + b.TargetExit
	case Prepare:
		return b.Prepare + b.PrepareExit
	case Approach:
		return b.Approach + b.ApproachExit
	default:
		return math.Inf(1)
	}
}

// Classifier assigns phases to distances. It is stateless; the previous phase is passed in on every call.
type Classifier struct {
	bands Bands
}

// NewClassifier returns a Classifier for the given bands.
func NewClassifier(bands Bands) (Classifier, error) {
	if err := bands.Validate(); err != nil {
		return Classifier{}, err
	}
	return Classifier{bands: bands}, nil
}

// Bands returns the configured bands.
func (c Classifier) Bands() Bands {
	return c.bands
}

// Initial classifies a distance without any history, using the plain entry thresholds.
func (c Classifier) Initial(distance float64) Phase {
	switch {
	case distance <= c.bands.Target:
		return Target
	case distance <= c.bands.Prepare:
		return Prepare
	case distance <= c.bands.Approach:
		return Approach
	default:
		return Rest
	}
}

// Classify returns the phase for distance given the current phase. Moving to a finer band only needs
// the plain entry threshold, moving to a coarser band needs the distance to exceed each crossed band's
// threshold plus its exit buffer.
func (c Classifier) Classify(current Phase, distance float64) Phase {
	if math.IsNaN(distance) {
		return current
	}
	plain := c.Initial(distance)
	if !current.Finer(plain) {
		return plain
	}

	next := current
	for next != Rest && distance > c.bands.upper(next) {
		next--
	}
	return next
}
