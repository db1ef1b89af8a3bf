// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geofence

import (
	"testing"
	"time"

	"github.com/wneessen/arrival-alarm/internal/geo"
)

var (
	target = geo.Target{ID: "cityhall", Point: geo.Point{Lat: 37.5665, Lon: 126.9780}, Radius: 100}
	inside = geo.Fix{Point: geo.Point{Lat: 37.5670, Lon: 126.9780}, At: time.Now()}
	far    = geo.Fix{Point: geo.Point{Lat: 37.60, Lon: 126.98}, At: time.Now()}
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicySingle, false},
		{"single", PolicySingle, false},
		{"Consecutive", PolicyConsecutive, false},
		{"triple", PolicySingle, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePolicy(tc.in)
			if tc.wantErr && err == nil {
				t.Fatal("expected error, but didn't get one")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %s", err)
			}
			if got != tc.want {
				t.Errorf("expected policy %s, got %s", tc.want, got)
			}
		})
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Run("single policy arrives on first inside fix", func(t *testing.T) {
		e := New(PolicySingle, 0)
		if d := e.Evaluate(far, target); d.Inside || d.Arrived {
			t.Fatalf("expected far fix to be outside, got %+v", d)
		}
		d := e.Evaluate(inside, target)
		if !d.Inside || !d.Arrived {
			t.Errorf("expected arrival, got %+v", d)
		}
		if d.Distance > target.Radius {
			t.Errorf("expected distance within radius, got %f", d.Distance)
		}
	})
	t.Run("consecutive policy needs two inside fixes", func(t *testing.T) {
		e := New(PolicyConsecutive, 0)
		if d := e.Evaluate(inside, target); !d.Inside || d.Arrived {
			t.Fatalf("expected no arrival on first inside fix, got %+v", d)
		}
		if d := e.Evaluate(inside, target); !d.Arrived {
			t.Errorf("expected arrival on second inside fix, got %+v", d)
		}
	})
	t.Run("consecutive run is broken by an outside fix", func(t *testing.T) {
		e := New(PolicyConsecutive, 0)
		e.Evaluate(inside, target)
		e.Evaluate(far, target)
		if d := e.Evaluate(inside, target); d.Arrived {
			t.Errorf("expected no arrival after broken run, got %+v", d)
		}
	})
	t.Run("single policy distrusts inaccurate fixes", func(t *testing.T) {
		e := New(PolicySingle, 50)
		noisy := inside
		noisy.Accuracy = 200
		if d := e.Evaluate(noisy, target); d.Arrived {
			t.Fatalf("expected inaccurate fix not to arrive alone, got %+v", d)
		}
		if d := e.Evaluate(noisy, target); !d.Arrived {
			t.Errorf("expected confirmed inaccurate fix to arrive, got %+v", d)
		}
	})
	t.Run("single policy trusts accurate fixes", func(t *testing.T) {
		e := New(PolicySingle, 50)
		precise := inside
		precise.Accuracy = 5
		if d := e.Evaluate(precise, target); !d.Arrived {
			t.Errorf("expected accurate fix to arrive, got %+v", d)
		}
	})
	t.Run("reset clears the run", func(t *testing.T) {
		e := New(PolicyConsecutive, 0)
		e.Evaluate(inside, target)
		e.Reset()
		if d := e.Evaluate(inside, target); d.Arrived {
			t.Errorf("expected no arrival after reset, got %+v", d)
		}
	})
}
