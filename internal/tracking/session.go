// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package tracking implements the adaptive tracking engine. A Session turns a stream of position fixes
// for one target into distance and phase updates, keeps the position source on a battery-aware
// cadence and fires the arrival exactly once.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/geofence"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/phase"
	"github.com/wneessen/arrival-alarm/internal/polling"
	"github.com/wneessen/arrival-alarm/internal/speed"
)

var (
	ErrInvalidFix        = errors.New("invalid position fix")
	ErrSessionNotActive  = errors.New("tracking session is not active")
	ErrSessionStarted    = errors.New("tracking session was already started")
	ErrSourceReconfigure = errors.New("position source rejected polling directive")
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateActive
	StateArrived
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateArrived:
		return "arrived"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateArrived || s == StateCancelled
}

// ArrivedEvent is the terminal outcome of a session that reached its target.
type ArrivedEvent struct {
	SessionID string
	Target    geo.Target
	FinalFix  geo.Fix
	Distance  float64
	At        time.Time
}

// Session tracks a single target. Fixes are processed one at a time; OnFix, Cancel and Resync may be
// called from any goroutine.
type Session struct {
	id         string
	target     geo.Target
	source     Source
	bus        *geobus.GeoBus
	logger     *logger.Logger
	classifier phase.Classifier
	scheduler  polling.Scheduler

	mu           sync.Mutex
	state        State
	phase        phase.Phase
	lastFix      geo.Fix
	haveLast     bool
	lastDecision geofence.Decision
	speed        *speed.Estimator
	fence        *geofence.Evaluator
	requested    polling.Directive
	applied      polling.Directive
	sub          Subscription
	stop         context.CancelFunc
	arrival      ArrivedEvent
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewSession returns an idle session for target that will read fixes from source and publish its events
// on bus.
func NewSession(target geo.Target, source Source, bus *geobus.GeoBus, conf Config, log *logger.Logger) (*Session, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	if source == nil {
		return nil, errors.New("position source is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracking config: %w", err)
	}
	classifier, err := phase.NewClassifier(conf.Bands)
	if err != nil {
		return nil, err
	}
	scheduler, err := polling.NewScheduler(conf.Polling)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	id := uuid.NewString()

	return &Session{
		id:         id,
		target:     target,
		source:     source,
		bus:        bus,
		logger:     &logger.Logger{Logger: log.With(slog.String("session", id), slog.String("target", target.Key()))},
		classifier: classifier,
		scheduler:  scheduler,
		speed:      speed.NewEstimator(conf.HighSpeedThreshold),
		fence:      geofence.New(conf.ArrivalPolicy, conf.MaxArrivalAccuracy),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string {
	return s.id
}

// Target returns the tracked target.
func (s *Session) Target() geo.Target {
	return s.target
}

// Start activates the session. The initial phase is derived from initial if given, otherwise the session
// starts at phase.Rest. A valid initial fix is processed like any other fix and may already arrive.
func (s *Session) Start(ctx context.Context, initial *geo.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: session is %s", ErrSessionStarted, s.state)
	}

	var first *geo.Fix
	if initial != nil {
		if err := initial.Validate(); err != nil {
			s.logger.Debug("dropping invalid initial fix", logger.Err(err))
		} else {
			first = initial
		}
	}
	s.phase = phase.Rest
	if first != nil {
		s.phase = s.classifier.Initial(geo.Distance(first.Point, s.target.Point))
	}
	directive := s.scheduler.Next(s.phase, false)

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := s.source.Subscribe(runCtx, directive)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to position source %q: %w", s.source.Name(), err)
	}
	s.sub, s.stop = sub, cancel
	s.requested, s.applied = directive, directive
	s.state = StateActive
	s.logger.Info("tracking session started", slog.String("source", s.source.Name()),
		slog.String("phase", s.phase.String()), slog.String("directive", directive.String()))
	s.publish(geobus.Event{Kind: geobus.KindStarted, Phase: s.phase, Directive: directive})

	if first != nil {
		s.handleFix(*first)
	}
	if s.state == StateActive {
		s.wg.Add(1)
		go s.consume(runCtx, sub.Fixes())
	}
	return nil
}

// OnFix processes a single fix. Invalid fixes are dropped with ErrInvalidFix and leave the session state
// untouched; fixes for sessions that are not active are ignored with ErrSessionNotActive.
func (s *Session) OnFix(fix geo.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		s.logger.Debug("ignoring fix for inactive session", slog.String("state", s.state.String()))
		return fmt.Errorf("%w: session is %s", ErrSessionNotActive, s.state)
	}
	if err := fix.Validate(); err != nil {
		s.logger.Debug("dropping invalid fix", logger.Err(err))
		return fmt.Errorf("%w: %w", ErrInvalidFix, err)
	}
	s.handleFix(fix)
	return nil
}

// Cancel stops an active session and releases its subscription. Once Cancel returns, the session emits
// no further events. Cancelling an idle or terminal session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancelled := s.cancelLocked()
	s.mu.Unlock()
	if cancelled {
		s.wg.Wait()
	}
}

// Resync re-applies the most recently computed directive to the position source. It is used to recover
// a stale cadence, e.g. after the system resumed from sleep.
func (s *Session) Resync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return fmt.Errorf("%w: session is %s", ErrSessionNotActive, s.state)
	}
	if err := s.sub.Reconfigure(s.requested); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceReconfigure, err)
	}
	s.applied = s.requested
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phase returns the current phase.
func (s *Session) Phase() phase.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Directive returns the directive the position source currently runs with.
func (s *Session) Directive() polling.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// LastFix returns the most recent accepted fix.
func (s *Session) LastFix() (geo.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFix, s.haveLast
}

// Done returns a channel that is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Arrival returns the arrival outcome if the session arrived.
func (s *Session) Arrival() (ArrivedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrival, s.state == StateArrived
}

func (s *Session) consume(ctx context.Context, fixes <-chan geo.Fix) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.state == StateActive {
				s.cancelLocked()
			}
			s.mu.Unlock()
			return
		case fix, ok := <-fixes:
			if !ok {
				s.logger.Warn("position source closed the fix stream")
				s.mu.Lock()
				s.cancelLocked()
				s.mu.Unlock()
				return
			}
			if err := s.OnFix(fix); err != nil && !errors.Is(err, ErrSessionNotActive) {
				s.logger.Debug("fix rejected", logger.Err(err))
			}
		}
	}
}

// handleFix runs the per-fix pipeline. The caller holds s.mu and has validated fix.
func (s *Session) handleFix(fix geo.Fix) {
	var prev *geo.Fix
	if s.haveLast {
		prev = &s.lastFix
	}
	kmh, known := s.speed.Observe(prev, fix)
	// An out-of-order fix is evaluated but stays out of the speed reference.
	if prev == nil || !fix.At.Before(prev.At) {
		s.lastFix, s.haveLast = fix, true
	}

	distance := geo.Distance(fix.Point, s.target.Point)
	if next := s.classifier.Classify(s.phase, distance); next != s.phase {
		s.logger.Info("tracking phase changed", slog.String("from", s.phase.String()),
			slog.String("to", next.String()), slog.Float64("distance", distance))
		s.phase = next
	}
	s.applyDirective(s.scheduler.Next(s.phase, s.speed.IsHighSpeed()))

	s.lastDecision = s.fence.Evaluate(fix, s.target)
	update := geobus.Event{
		Kind:      geobus.KindUpdate,
		Fix:       fix,
		Distance:  distance,
		Bearing:   geo.Bearing(fix.Point, s.target.Point),
		Phase:     s.phase,
		Directive: s.applied,
	}
	if known {
		update.SpeedKmh = &kmh
	}
	s.publish(update)

	if s.lastDecision.Arrived {
		s.arrive(fix, distance)
	}
}

// applyDirective reconfigures the source when the directive changed materially. A rejected directive
// keeps the previous one active; it is retried with the next material change or an explicit Resync.
func (s *Session) applyDirective(d polling.Directive) {
	if d == s.requested {
		return
	}
	s.requested = d
	if err := s.sub.Reconfigure(d); err != nil {
		s.logger.Warn("position source rejected directive, keeping previous",
			slog.String("directive", d.String()), slog.String("previous", s.applied.String()), logger.Err(err))
		return
	}
	s.logger.Debug("polling directive applied", slog.String("directive", d.String()))
	s.applied = d
}

func (s *Session) arrive(fix geo.Fix, distance float64) {
	s.state = StateArrived
	s.arrival = ArrivedEvent{
		SessionID: s.id,
		Target:    s.target,
		FinalFix:  fix,
		Distance:  distance,
		At:        time.Now(),
	}
	s.logger.Info("arrived at target", slog.Float64("distance", distance),
		slog.String("policy", s.fence.Policy().String()))
	s.publish(geobus.Event{Kind: geobus.KindArrived, Fix: fix, Distance: distance, Phase: s.phase,
		Directive: s.applied, At: s.arrival.At})
	s.release()
}

// cancelLocked transitions an active session to cancelled. The caller holds s.mu.
func (s *Session) cancelLocked() bool {
	if s.state != StateActive {
		s.logger.Debug("ignoring cancel for inactive session", slog.String("state", s.state.String()))
		return false
	}
	s.state = StateCancelled
	s.logger.Info("tracking session cancelled")
	s.publish(geobus.Event{Kind: geobus.KindStopped, Fix: s.lastFix, Phase: s.phase, Directive: s.applied})
	s.release()
	return true
}

func (s *Session) release() {
	s.stop()
	if err := s.sub.Close(); err != nil {
		s.logger.Warn("failed to close position source subscription", logger.Err(err))
	}
	close(s.done)
}

func (s *Session) publish(e geobus.Event) {
	if s.bus == nil {
		return
	}
	e.Key = s.target.Key()
	e.SessionID = s.id
	e.Target = s.target
	s.bus.Publish(e)
}
