// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd implements the foreground position source: a long-lived gpsd watch whose TPV reports are
// thinned out according to the current polling directive.
package gpsd

import (
	"context"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/polling"
	"github.com/wneessen/arrival-alarm/internal/source"
	"github.com/wneessen/arrival-alarm/internal/tracking"
)

const (
	name         = "gpsd"
	retryPeriod  = time.Second * 30
	fixesBuffer  = 1
	reportFilter = "TPV"
)

// Watcher streams fixes from a gpsd daemon.
type Watcher struct {
	addr   string
	retry  time.Duration
	logger *logger.Logger
}

// New returns a Watcher for the gpsd daemon at host:port.
func New(host, port string, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{
		addr:   net.JoinHostPort(host, port),
		retry:  retryPeriod,
		logger: &logger.Logger{Logger: log.With(slog.String("source", name))},
	}
}

func (w *Watcher) Name() string {
	return name
}

// Subscribe starts watching gpsd. Connection failures are retried until the subscription is closed.
func (w *Watcher) Subscribe(ctx context.Context, d polling.Directive) (tracking.Subscription, error) {
	if d.IsZero() {
		return nil, source.ErrInvalidDirective
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &watchSubscription{
		gate:   source.NewGate(d),
		fixes:  make(chan geo.Fix, fixesBuffer),
		cancel: cancel,
	}
	go w.watch(ctx, sub)
	return sub, nil
}

func (w *Watcher) watch(ctx context.Context, sub *watchSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session, err := gpsd.Dial(w.addr)
		if err != nil {
			w.logger.Warn("failed to connect to gpsd", slog.String("addr", w.addr), logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retry):
				continue
			}
		}

		session.AddFilter(reportFilter, func(r interface{}) {
			tpv, ok := r.(*gpsd.TPVReport)
			if !ok || tpv.Mode < gpsd.Mode2D {
				return
			}
			fix := fixFromReport(tpv)
			if err := fix.Validate(); err != nil {
				w.logger.Debug("dropping invalid gpsd report", logger.Err(err))
				return
			}
			if !sub.gate.Allow(fix) {
				return
			}
			select {
			case <-ctx.Done():
			case sub.fixes <- fix:
			}
		})

		// go-gpsd has no Close(); the watch ends when the daemon drops the connection.
		done := session.Watch()
		select {
		case <-ctx.Done():
			return
		case <-done:
			w.logger.Debug("gpsd watch ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry):
		}
	}
}

func fixFromReport(tpv *gpsd.TPVReport) geo.Fix {
	at := tpv.Time
	if at.IsZero() {
		at = time.Now()
	}
	fix := geo.Fix{
		Point:  geo.Point{Lat: tpv.Lat, Lon: tpv.Lon},
		At:     at,
		Source: name,
	}
	if tpv.Epx > 0 && tpv.Epy > 0 {
		fix.Accuracy = math.Hypot(tpv.Epx, tpv.Epy)
	}
	return fix
}

type watchSubscription struct {
	gate   *source.Gate
	fixes  chan geo.Fix
	cancel context.CancelFunc
	once   sync.Once
}

func (s *watchSubscription) Fixes() <-chan geo.Fix {
	return s.fixes
}

// Reconfigure swaps the directive the TPV stream is thinned with. The gpsd watch itself stays untouched.
func (s *watchSubscription) Reconfigure(d polling.Directive) error {
	if d.IsZero() {
		return source.ErrInvalidDirective
	}
	s.gate.Set(d)
	return nil
}

func (s *watchSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
