// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package source holds the plumbing shared by all position transports.
package source

import (
	"sync"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/polling"
)

// Gate applies a polling directive to a stream of raw fixes. Under a time-based directive at most one
// fix per interval passes; under a distance-based directive a fix passes once it is at least
// DistanceFilter meters away from the last passed fix. The first fix always passes.
type Gate struct {
	mu        sync.Mutex
	directive polling.Directive
	last      geo.Fix
	hasLast   bool
}

// NewGate returns a Gate for directive d.
func NewGate(d polling.Directive) *Gate {
	return &Gate{directive: d}
}

// Set replaces the directive. The last passed fix is kept as reference.
func (g *Gate) Set(d polling.Directive) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.directive = d
}

// Directive returns the current directive.
func (g *Gate) Directive() polling.Directive {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.directive
}

// Allow reports whether fix passes and records it as the new reference if so.
func (g *Gate) Allow(fix geo.Fix) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasLast {
		switch {
		case g.directive.DistanceBased():
			if geo.Distance(g.last.Point, fix.Point) < g.directive.DistanceFilter {
				return false
			}
		case fix.At.Sub(g.last.At) < g.directive.Interval:
			return false
		}
	}
	g.last, g.hasLast = fix, true
	return true
}

// AllowDistance is like Allow but ignores the interval of time-based directives. It is used by
// transports that already poll on the directive's interval.
func (g *Gate) AllowDistance(fix geo.Fix) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasLast && g.directive.DistanceBased() &&
		geo.Distance(g.last.Point, fix.Point) < g.directive.DistanceFilter {
		return false
	}
	g.last, g.hasLast = fix, true
	return true
}
