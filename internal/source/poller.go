// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/polling"
	"github.com/wneessen/arrival-alarm/internal/tracking"
)

const (
	DefaultFastInterval = time.Second * 5
	DefaultTimeout      = time.Second * 10
)

var ErrInvalidDirective = errors.New("invalid polling directive")

// Locator performs a single position lookup.
type Locator interface {
	Name() string
	Locate(ctx context.Context) (geo.Fix, error)
}

// Poller turns a Locator into a tracking.Source. Every subscription runs its own scheduled job: time-based
// directives poll on their interval, distance-based directives poll on the fast interval and pass only
// fixes that moved far enough.
type Poller struct {
	locator Locator
	fast    time.Duration
	timeout time.Duration
	logger  *logger.Logger
}

// NewPoller returns a Poller for locator. Non-positive durations fall back to the defaults.
func NewPoller(locator Locator, fast, timeout time.Duration, log *logger.Logger) *Poller {
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Poller{
		locator: locator,
		fast:    fast,
		timeout: timeout,
		logger:  &logger.Logger{Logger: log.With(slog.String("source", locator.Name()))},
	}
}

func (p *Poller) Name() string {
	return p.locator.Name()
}

// Subscribe starts polling with directive d until the subscription is closed or ctx is cancelled.
func (p *Poller) Subscribe(ctx context.Context, d polling.Directive) (tracking.Subscription, error) {
	if d.IsZero() {
		return nil, ErrInvalidDirective
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{
		poller:    p,
		ctx:       ctx,
		cancel:    cancel,
		scheduler: scheduler,
		gate:      NewGate(d),
		fixes:     make(chan geo.Fix, 1),
	}
	job, err := scheduler.NewJob(gocron.DurationJob(p.interval(d)), gocron.NewTask(sub.poll), sub.jobOptions()...)
	if err != nil {
		cancel()
		return nil, errors.Join(fmt.Errorf("failed to create poll job: %w", err), scheduler.Shutdown())
	}
	sub.jobID = job.ID()
	scheduler.Start()
	p.logger.Debug("polling started", slog.String("directive", d.String()))
	return sub, nil
}

func (p *Poller) interval(d polling.Directive) time.Duration {
	if d.DistanceBased() {
		return p.fast
	}
	return d.Interval
}

type pollSubscription struct {
	poller    *Poller
	ctx       context.Context
	cancel    context.CancelFunc
	scheduler gocron.Scheduler
	gate      *Gate
	fixes     chan geo.Fix

	mu     sync.Mutex
	jobID  uuid.UUID
	closed bool
}

func (s *pollSubscription) Fixes() <-chan geo.Fix {
	return s.fixes
}

// Reconfigure reschedules the poll job for d. The first poll under the new directive runs right away.
func (s *pollSubscription) Reconfigure(d polling.Directive) error {
	if d.IsZero() {
		return ErrInvalidDirective
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("subscription is closed")
	}
	job, err := s.scheduler.Update(s.jobID, gocron.DurationJob(s.poller.interval(d)), gocron.NewTask(s.poll),
		s.jobOptions()...)
	if err != nil {
		return fmt.Errorf("failed to reschedule poll job: %w", err)
	}
	s.jobID = job.ID()
	s.gate.Set(d)
	s.poller.logger.Debug("polling reconfigured", slog.String("directive", d.String()))
	return nil
}

func (s *pollSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down poll scheduler: %w", err)
	}
	return nil
}

func (s *pollSubscription) jobOptions() []gocron.JobOption {
	return []gocron.JobOption{
		gocron.WithContext(s.ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(s.poller.Name() + "_poll_job"),
	}
}

func (s *pollSubscription) poll(ctx context.Context) {
	ctxLocate, cancel := context.WithTimeout(ctx, s.poller.timeout)
	defer cancel()
	fix, err := s.poller.locator.Locate(ctxLocate)
	if err != nil {
		if ctx.Err() == nil {
			s.poller.logger.Warn("position lookup failed", logger.Err(err))
		}
		return
	}
	if err = fix.Validate(); err != nil {
		s.poller.logger.Debug("dropping invalid fix", logger.Err(err))
		return
	}
	if !s.gate.AllowDistance(fix) {
		return
	}

	select {
	case <-ctx.Done():
	case s.fixes <- fix:
	}
}
