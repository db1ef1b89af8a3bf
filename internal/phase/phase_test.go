// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package phase

import (
	"errors"
	"math"
	"testing"
)

func testClassifier(t *testing.T) Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultBands())
	if err != nil {
		t.Fatalf("failed to create classifier: %s", err)
	}
	return c
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Rest, "rest"},
		{Approach, "approach"},
		{Prepare, "prepare"},
		{Target, "target"},
		{Phase(42), "phase(42)"},
	}
	for _, tc := range tests {
		if tc.phase.String() != tc.want {
			t.Errorf("expected %q, got %q", tc.want, tc.phase.String())
		}
	}
}

func TestNewClassifier(t *testing.T) {
	t.Run("default bands succeed", func(t *testing.T) {
		if _, err := NewClassifier(DefaultBands()); err != nil {
			t.Errorf("expected no error, got %s", err)
		}
	})
	t.Run("invalid bands fail", func(t *testing.T) {
		tests := []struct {
			name   string
			modify func(*Bands)
		}{
			{"unordered thresholds", func(b *Bands) { b.Prepare = b.Approach }},
			{"zero target", func(b *Bands) { b.Target = 0 }},
			{"negative buffer", func(b *Bands) { b.ApproachExit = -1 }},
			{"NaN threshold", func(b *Bands) { b.Prepare = math.NaN() }},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				bands := DefaultBands()
				tc.modify(&bands)
				if _, err := NewClassifier(bands); !errors.Is(err, ErrInvalidBands) {
					t.Errorf("expected error to be %s, got %v", ErrInvalidBands, err)
				}
			})
		}
	})
}

func TestClassifier_Initial(t *testing.T) {
	c := testClassifier(t)
	tests := []struct {
		distance float64
		want     Phase
	}{
		{0, Target},
		{1000, Target},
		{1000.1, Prepare},
		{2000, Prepare},
		{2000.1, Approach},
		{10000, Approach},
		{10000.1, Rest},
		{500000, Rest},
	}
	for _, tc := range tests {
		if got := c.Initial(tc.distance); got != tc.want {
			t.Errorf("expected phase %s for %f, got %s", tc.want, tc.distance, got)
		}
	}
}

func TestClassifier_Classify(t *testing.T) {
	c := testClassifier(t)
	tests := []struct {
		name     string
		current  Phase
		distance float64
		want     Phase
	}{
		{"rest to approach is eager", Rest, 10000, Approach},
		{"rest to target skips bands", Rest, 50, Target},
		{"approach stays inside exit buffer", Approach, 10500, Approach},
		{"approach stays on buffer boundary", Approach, 11000, Approach},
		{"approach falls back beyond buffer", Approach, 11000.1, Rest},
		{"target stays inside exit buffer", Target, 1999, Target},
		{"target stays on buffer boundary", Target, 2000, Target},
		{"target rises beyond buffer", Target, 2000.1, Prepare},
		{"target rises to prepare only while within its buffer", Target, 2900, Prepare},
		{"target rises to approach beyond both buffers", Target, 3000.1, Approach},
		{"prepare falls back to rest far away", Prepare, 20000, Rest},
		{"prepare to target is eager", Prepare, 1000, Target},
		{"same band keeps phase", Prepare, 1500, Prepare},
		{"NaN keeps phase", Approach, math.NaN(), Approach},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.current, tc.distance); got != tc.want {
				t.Errorf("expected phase %s, got %s", tc.want, got)
			}
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := testClassifier(t)
	for _, current := range []Phase{Rest, Approach, Prepare, Target} {
		for d := 0.0; d <= 15000; d += 125 {
			first := c.Classify(current, d)
			for i := 0; i < 3; i++ {
				if got := c.Classify(current, d); got != first {
					t.Fatalf("expected classification of (%s, %f) to be stable, got %s and %s", current, d,
						first, got)
				}
			}
		}
	}
}

func TestClassifier_NoOscillation(t *testing.T) {
	t.Run("hovering around the approach boundary", func(t *testing.T) {
		c := testClassifier(t)
		current := c.Initial(10001)
		if current != Rest {
			t.Fatalf("expected initial phase to be rest, got %s", current)
		}
		current = c.Classify(current, 9999)
		if current != Approach {
			t.Fatalf("expected phase to be approach, got %s", current)
		}
		for i := 0; i < 50; i++ {
			d := 10001.0
			if i%2 == 1 {
				d = 9999
			}
			if current = c.Classify(current, d); current != Approach {
				t.Fatalf("expected phase to stay approach on fix %d, got %s", i, current)
			}
		}
	})
	t.Run("hovering around the target boundary", func(t *testing.T) {
		c := testClassifier(t)
		current := Target
		for i := 0; i < 50; i++ {
			d := 1001.0
			if i%2 == 1 {
				d = 999
			}
			if current = c.Classify(current, d); current != Target {
				t.Fatalf("expected phase to stay target on fix %d, got %s", i, current)
			}
		}
	})
	t.Run("custom exit buffer", func(t *testing.T) {
		bands := DefaultBands()
		bands.ApproachExit = 0
		c, err := NewClassifier(bands)
		if err != nil {
			t.Fatalf("failed to create classifier: %s", err)
		}
		if got := c.Classify(Approach, 10001); got != Rest {
			t.Errorf("expected phase to be rest without exit buffer, got %s", got)
		}
	})
}
