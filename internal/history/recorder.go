// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/logger"
)

const (
	recorderBuffer = 64
	recordTimeout  = time.Second * 5
)

// Recorder writes the lifecycle events of all sessions on a bus to a Store. Position updates are not
// recorded.
type Recorder struct {
	store  Store
	logger *logger.Logger
}

// NewRecorder returns a Recorder for store.
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Discard()
	}
	return &Recorder{store: store, logger: log}
}

// Subscribe registers the recorder on bus. Events published from now on are buffered until Run drains
// them.
func (r *Recorder) Subscribe(bus *geobus.GeoBus) (<-chan geobus.Event, func()) {
	return bus.SubscribeAll(recorderBuffer, geobus.KindStarted, geobus.KindArrived, geobus.KindStopped)
}

// Run records events until ctx is cancelled. Events still buffered at that point are recorded before Run
// returns.
func (r *Recorder) Run(ctx context.Context, events <-chan geobus.Event) {
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx, events)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, e)
		}
	}
}

func (r *Recorder) drain(ctx context.Context, events <-chan geobus.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e geobus.Event) {
	if e.Kind == geobus.KindUpdate {
		return
	}
	// Detached: stop events are recorded while shutting down.
	ctxRecord, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.store.Record(ctxRecord, EntryFromEvent(e)); err != nil {
		r.logger.Error("failed to record history entry", logger.Err(err), slog.String("kind", e.Kind.String()),
			slog.String("session", e.SessionID))
		return
	}
	r.logger.Debug("history entry recorded", slog.String("kind", e.Kind.String()),
		slog.String("session", e.SessionID))
}
