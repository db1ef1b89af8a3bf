// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/phase"
	"github.com/wneessen/arrival-alarm/internal/polling"
)

// Kind describes what happened in a tracking session.
type Kind int

const (
	KindStarted Kind = iota
	KindUpdate
	KindArrived
	KindStopped
)

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindUpdate:
		return "update"
	case KindArrived:
		return "arrived"
	case KindStopped:
		return "stopped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Terminal reports whether no further events follow for the session.
func (k Kind) Terminal() bool {
	return k == KindArrived || k == KindStopped
}

// Event is a single session notification published on the bus.
type Event struct {
	Kind      Kind
	Key       string
	SessionID string
	Target    geo.Target
	Fix       geo.Fix
	Distance  float64
	Bearing   float64
	Phase     phase.Phase
	// SpeedKmh is nil while the speed is unknown.
	SpeedKmh  *float64
	Directive polling.Directive
	At        time.Time
}

// TerminalTimeout bounds how long Publish waits for a subscriber with a full buffer to accept an
// arrived or stopped event.
var TerminalTimeout = time.Second * 2

// GeoBus fans out session events to per-target and global subscribers. Position updates never block: a
// subscriber whose buffer is full misses the update. Terminal events wait for buffer space for up to
// TerminalTimeout.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	latest      map[string]Event
	subscribers map[string]map[chan Event]struct{}
	globalSubs  map[chan Event][]Kind
}

// New initializes and returns a new instance of GeoBus.
func New(logger *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:      logger,
		latest:      make(map[string]Event),
		subscribers: make(map[string]map[chan Event]struct{}),
		globalSubs:  make(map[chan Event][]Kind),
	}
}

// Subscribe adds a subscriber for events of the given target key and returns the event channel and an
// unsubscribe function. The latest known event for the key is delivered right away.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Event]struct{})
	}
	b.subscribers[key][ch] = struct{}{}
	if last, ok := b.latest[key]; ok {
		send(ch, last)
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// SubscribeAll adds a subscriber for the events of all targets. With kinds given, only events of those
// kinds are delivered.
func (b *GeoBus) SubscribeAll(size int, kinds ...Kind) (<-chan Event, func()) {
	ch := make(chan Event, size)
	b.mu.Lock()
	b.globalSubs[ch] = kinds
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.globalSubs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish records e as the latest event of its key and broadcasts it.
func (b *GeoBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e.Kind == KindStarted {
		delete(b.latest, e.Key)
	} else {
		b.latest[e.Key] = e
	}

	deliver := send
	if e.Kind.Terminal() {
		deliver = sendWait
	}
	dropped := 0
	for ch := range b.subscribers[e.Key] {
		if !deliver(ch, e) {
			dropped++
		}
	}
	for ch, kinds := range b.globalSubs {
		if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
			continue
		}
		if !deliver(ch, e) {
			dropped++
		}
	}
	if dropped > 0 && b.logger != nil {
		b.logger.Debug("subscriber buffers full, event dropped", slog.String("kind", e.Kind.String()),
			slog.String("key", e.Key), slog.Int("dropped", dropped))
	}
}

// Latest returns the most recent non-start event for key.
func (b *GeoBus) Latest(key string) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.latest[key]
	return e, ok
}

func send(ch chan Event, e Event) bool {
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

func sendWait(ch chan Event, e Event) bool {
	if send(ch, e) {
		return true
	}
	timer := time.NewTimer(TerminalTimeout)
	defer timer.Stop()
	select {
	case ch <- e:
		return true
	case <-timer.C:
		return false
	}
}
