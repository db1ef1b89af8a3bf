// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package speed derives travel speed from consecutive position fixes.
package speed

import (
	"errors"
	"math"

	"github.com/wneessen/arrival-alarm/internal/geo"
)

// DefaultHighSpeedThreshold is the speed in km/h above which travel counts as high speed.
const DefaultHighSpeedThreshold = 80.0

var (
	ErrNoPriorFix    = errors.New("no prior fix to derive speed from")
	ErrNoElapsedTime = errors.New("fixes have no elapsed time between them")
)

// Estimate returns the speed in km/h between prev and cur. It fails with ErrNoPriorFix if prev is nil and
// with ErrNoElapsedTime if cur is not strictly later than prev.
func Estimate(prev *geo.Fix, cur geo.Fix) (float64, error) {
	if prev == nil {
		return 0, ErrNoPriorFix
	}
	elapsed := cur.At.Sub(prev.At).Hours()
	if elapsed <= 0 {
		return 0, ErrNoElapsedTime
	}
	kmh := geo.Distance(prev.Point, cur.Point) / 1000 / elapsed
	if math.IsNaN(kmh) || math.IsInf(kmh, 0) || kmh < 0 {
		return 0, ErrNoElapsedTime
	}
	return kmh, nil
}

// Estimator keeps the last known speed. Samples that cannot produce a speed leave it untouched.
type Estimator struct {
	threshold float64
	kmh       float64
	known     bool
}

// NewEstimator returns an Estimator flagging speeds above threshold km/h as high speed. A non-positive
// threshold selects DefaultHighSpeedThreshold.
func NewEstimator(threshold float64) *Estimator {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultHighSpeedThreshold
	}
	return &Estimator{threshold: threshold}
}

// Observe updates the estimate from the two most recent fixes and returns the current speed and whether
// it is known.
func (e *Estimator) Observe(prev *geo.Fix, cur geo.Fix) (float64, bool) {
	kmh, err := Estimate(prev, cur)
	if err == nil {
		e.kmh, e.known = kmh, true
	}
	return e.kmh, e.known
}

// Speed returns the last known speed.
func (e *Estimator) Speed() (float64, bool) {
	return e.kmh, e.known
}

// IsHighSpeed reports whether the last known speed exceeds the threshold. Unknown speed is never high.
func (e *Estimator) IsHighSpeed() bool {
	return e.known && IsHighSpeed(e.kmh, e.threshold)
}

// Threshold returns the configured high-speed threshold in km/h.
func (e *Estimator) Threshold() float64 {
	return e.threshold
}

// IsHighSpeed reports whether kmh is strictly above threshold.
func IsHighSpeed(kmh, threshold float64) bool {
	return kmh > threshold
}
