// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracking

import (
	"fmt"
	"math"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geofence"
	"github.com/wneessen/arrival-alarm/internal/phase"
	"github.com/wneessen/arrival-alarm/internal/polling"
	"github.com/wneessen/arrival-alarm/internal/speed"
)

// Config holds the tunables of a tracking session.
type Config struct {
	Bands              phase.Bands
	Polling            polling.Config
	HighSpeedThreshold float64
	ArrivalPolicy      geofence.Policy
	// MaxArrivalAccuracy is the worst accuracy in meters a single fix may have to confirm an arrival on
	// its own. Zero disables the check.
	MaxArrivalAccuracy float64
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Bands:              phase.DefaultBands(),
		Polling:            polling.DefaultConfig(),
		HighSpeedThreshold: speed.DefaultHighSpeedThreshold,
		ArrivalPolicy:      geofence.PolicySingle,
	}
}

// NewConfig converts the application configuration into an engine configuration.
func NewConfig(conf *config.Config) (Config, error) {
	tc := conf.Tracking
	policy, err := geofence.ParsePolicy(tc.Arrival.Policy)
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Bands: phase.Bands{
			Target:       tc.Bands.Target,
			Prepare:      tc.Bands.Prepare,
			Approach:     tc.Bands.Approach,
			TargetExit:   tc.ExitBuffers.Target,
			PrepareExit:  tc.ExitBuffers.Prepare,
			ApproachExit: tc.ExitBuffers.Approach,
		},
		Polling: polling.Config{
			RestInterval:        tc.Intervals.Rest,
			ApproachInterval:    tc.Intervals.Approach,
			PrepareInterval:     tc.Intervals.Prepare,
			DistanceFilter:      tc.DistanceFilter,
			HighSpeedMultiplier: tc.HighSpeed.Multiplier,
			HighSpeedMin:        tc.HighSpeed.Min,
			HighSpeedMax:        tc.HighSpeed.Max,
		},
		HighSpeedThreshold: tc.HighSpeed.Threshold,
		ArrivalPolicy:      policy,
		MaxArrivalAccuracy: tc.Arrival.MaxAccuracy,
	}
	return c, c.Validate()
}

// Validate checks all parts of the configuration.
func (c Config) Validate() error {
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if err := c.Polling.Validate(); err != nil {
		return err
	}
	if c.HighSpeedThreshold <= 0 || math.IsNaN(c.HighSpeedThreshold) {
		return fmt.Errorf("invalid high speed threshold: %v", c.HighSpeedThreshold)
	}
	if c.MaxArrivalAccuracy < 0 || math.IsNaN(c.MaxArrivalAccuracy) {
		return fmt.Errorf("invalid arrival accuracy: %v", c.MaxArrivalAccuracy)
	}
	return nil
}
