// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package speed

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wneessen/arrival-alarm/internal/geo"
)

var start = time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)

func fixAt(lat, lon float64, offset time.Duration) geo.Fix {
	return geo.Fix{Point: geo.Point{Lat: lat, Lon: lon}, At: start.Add(offset)}
}

func TestEstimate(t *testing.T) {
	t.Run("no prior fix", func(t *testing.T) {
		_, err := Estimate(nil, fixAt(0, 0, 0))
		if !errors.Is(err, ErrNoPriorFix) {
			t.Errorf("expected error to be %s, got %v", ErrNoPriorFix, err)
		}
	})
	t.Run("zero elapsed time", func(t *testing.T) {
		prev := fixAt(0, 0, 0)
		_, err := Estimate(&prev, fixAt(0.01, 0, 0))
		if !errors.Is(err, ErrNoElapsedTime) {
			t.Errorf("expected error to be %s, got %v", ErrNoElapsedTime, err)
		}
	})
	t.Run("out of order fix", func(t *testing.T) {
		prev := fixAt(0, 0, time.Minute)
		_, err := Estimate(&prev, fixAt(0.01, 0, 0))
		if !errors.Is(err, ErrNoElapsedTime) {
			t.Errorf("expected error to be %s, got %v", ErrNoElapsedTime, err)
		}
	})
	t.Run("one degree of latitude per hour", func(t *testing.T) {
		prev := fixAt(0, 0, 0)
		kmh, err := Estimate(&prev, fixAt(1, 0, time.Hour))
		if err != nil {
			t.Fatalf("failed to estimate speed: %s", err)
		}
		if math.Abs(kmh-111.3) > 0.5 {
			t.Errorf("expected speed to be about 111.3 km/h, got %f", kmh)
		}
	})
	t.Run("stationary is zero", func(t *testing.T) {
		prev := fixAt(10, 10, 0)
		kmh, err := Estimate(&prev, fixAt(10, 10, time.Minute))
		if err != nil {
			t.Fatalf("failed to estimate speed: %s", err)
		}
		if kmh != 0 {
			t.Errorf("expected speed to be 0, got %f", kmh)
		}
	})
}

func TestEstimator_Observe(t *testing.T) {
	t.Run("first fix has unknown speed", func(t *testing.T) {
		e := NewEstimator(0)
		if _, known := e.Observe(nil, fixAt(0, 0, 0)); known {
			t.Error("expected speed to be unknown")
		}
		if e.IsHighSpeed() {
			t.Error("unknown speed must not be high speed")
		}
	})
	t.Run("zero elapsed sample retains previous speed", func(t *testing.T) {
		e := NewEstimator(0)
		prev := fixAt(0, 0, 0)
		cur := fixAt(0.01, 0, time.Minute)
		want, known := e.Observe(&prev, cur)
		if !known {
			t.Fatal("expected speed to be known")
		}
		got, known := e.Observe(&cur, fixAt(0.02, 0, time.Minute))
		if !known {
			t.Fatal("expected speed to stay known")
		}
		if got != want || math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("expected speed to stay %f, got %f", want, got)
		}
	})
	t.Run("high speed detection", func(t *testing.T) {
		tests := []struct {
			name      string
			threshold float64
			distance  float64 // degrees of latitude travelled in one minute
			want      bool
		}{
			// 0.03 degrees per minute is about 200 km/h
			{"train", 0, 0.03, true},
			// 0.005 degrees per minute is about 33 km/h
			{"bicycle", 0, 0.005, false},
			{"custom threshold", 20, 0.005, true},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				e := NewEstimator(tc.threshold)
				prev := fixAt(0, 0, 0)
				e.Observe(&prev, fixAt(tc.distance, 0, time.Minute))
				if e.IsHighSpeed() != tc.want {
					kmh, _ := e.Speed()
					t.Errorf("expected high speed to be %t at %f km/h", tc.want, kmh)
				}
			})
		}
	})
	t.Run("default threshold", func(t *testing.T) {
		if NewEstimator(-1).Threshold() != DefaultHighSpeedThreshold {
			t.Error("expected default threshold")
		}
	})
}

func TestIsHighSpeed(t *testing.T) {
	if IsHighSpeed(80, 80) {
		t.Error("expected threshold itself not to be high speed")
	}
	if !IsHighSpeed(80.1, 80) {
		t.Error("expected speed above threshold to be high speed")
	}
}
