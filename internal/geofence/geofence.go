// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geofence decides when a stream of fixes has arrived at a target.
//
// A single noisy fix must not cause a false arrival, so the evaluator supports two debounce
// policies: PolicySingle accepts the first in-radius fix (as long as its accuracy is good enough),
// PolicyConsecutive requires two consecutive in-radius fixes.
package geofence

import (
	"fmt"
	"strings"

	"github.com/wneessen/arrival-alarm/internal/geo"
)

// Policy selects the arrival debounce strategy.
type Policy int

const (
	PolicySingle Policy = iota
	PolicyConsecutive
)

// ParsePolicy parses a policy name as used in the configuration.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return PolicySingle, nil
	case "consecutive":
		return PolicyConsecutive, nil
	default:
		return PolicySingle, fmt.Errorf("unsupported arrival policy: %s", s)
	}
}

func (p Policy) String() string {
	if p == PolicyConsecutive {
		return "consecutive"
	}
	return "single"
}

// Decision is the result of evaluating one fix.
type Decision struct {
	Distance float64
	Inside   bool
	Arrived  bool
}

// Evaluator tests fixes against a target radius. It remembers whether the previous fix was inside
// the radius to implement the consecutive policy.
type Evaluator struct {
	policy      Policy
	maxAccuracy float64
	insideRun   int
}

// New returns an Evaluator. A positive maxAccuracy makes PolicySingle distrust in-radius fixes whose known
// accuracy is worse than maxAccuracy meters; those need a consecutive confirmation.
func New(policy Policy, maxAccuracy float64) *Evaluator {
	return &Evaluator{policy: policy, maxAccuracy: maxAccuracy}
}

// Policy returns the configured debounce policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluate checks fix against target and returns the arrival decision.
func (e *Evaluator) Evaluate(fix geo.Fix, target geo.Target) Decision {
	decision := Decision{Distance: geo.Distance(fix.Point, target.Point)}
	decision.Inside = geo.IsWithinRadius(fix.Point, target.Point, target.Radius)
	if !decision.Inside {
		e.insideRun = 0
		return decision
	}

	e.insideRun++
	required := 2
	if e.policy == PolicySingle && e.trusted(fix) {
		required = 1
	}
	decision.Arrived = e.insideRun >= required
	return decision
}

// Reset forgets any in-radius history.
func (e *Evaluator) Reset() {
	e.insideRun = 0
}

func (e *Evaluator) trusted(fix geo.Fix) bool {
	if e.maxAccuracy <= 0 || !fix.HasAccuracy() {
		return true
	}
	return fix.Accuracy <= e.maxAccuracy
}
