// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/geobus"
	"github.com/wneessen/arrival-alarm/internal/logger"
)

// Manager owns the sessions of all tracked targets. At most one session is active per target key.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	source   Source
	bus      *geobus.GeoBus
	config   Config
	logger   *logger.Logger
}

// NewManager returns a Manager that starts sessions on source and publishes their events on bus.
func NewManager(source Source, bus *geobus.GeoBus, conf Config, log *logger.Logger) (*Manager, error) {
	if source == nil {
		return nil, errors.New("position source is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracking config: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		source:   source,
		bus:      bus,
		config:   conf,
		logger:   log,
	}, nil
}

// Start begins tracking target. A session that is already running for the same target is cancelled
// before the new one subscribes to the position source.
func (m *Manager) Start(ctx context.Context, target geo.Target, initial *geo.Fix) (*Session, error) {
	session, err := NewSession(target, m.source, m.bus, m.config, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := target.Key()
	if prev, ok := m.sessions[key]; ok {
		m.logger.Debug("replacing tracking session", slog.String("target", key),
			slog.String("previous", prev.ID()))
		prev.Cancel()
		delete(m.sessions, key)
	}
	if err = session.Start(ctx, initial); err != nil {
		return nil, err
	}
	m.sessions[key] = session
	return session, nil
}

// Cancel stops the session of the target key. It reports whether a session was found.
func (m *Manager) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[key]
	if !ok {
		return false
	}
	session.Cancel()
	delete(m.sessions, key)
	return true
}

// Get returns the session of the target key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[key]
	return session, ok
}

// Active returns all active sessions ordered by target key. Sessions that reached a terminal state are
// forgotten.
func (m *Manager) Active() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.sessions))
	for key, session := range m.sessions {
		if session.State().Terminal() {
			delete(m.sessions, key)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	active := make([]*Session, 0, len(keys))
	for _, key := range keys {
		active = append(active, m.sessions[key])
	}
	return active
}

// Resync re-applies the current directive of every active session to the position source.
func (m *Manager) Resync() error {
	var errs error
	for _, session := range m.Active() {
		if err := session.Resync(); err != nil && !errors.Is(err, ErrSessionNotActive) {
			errs = errors.Join(errs, fmt.Errorf("session %s: %w", session.ID(), err))
		}
	}
	return errs
}

// Shutdown cancels all sessions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, session := range m.sessions {
		session.Cancel()
		delete(m.sessions, key)
	}
}
