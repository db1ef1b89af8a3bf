// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package history persists the lifecycle of tracking sessions: when an alarm was armed, when it fired
// and when it was stopped.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geobus"
)

var ErrUnknownBackend = errors.New("unknown history backend")

// Entry is one recorded session event.
type Entry struct {
	SessionID  string    `json:"session_id"`
	TargetKey  string    `json:"target"`
	TargetName string    `json:"target_name,omitempty"`
	Kind       string    `json:"kind"`
	Phase      string    `json:"phase"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Distance   float64   `json:"distance"`
	At         time.Time `json:"at"`
}

// EntryFromEvent converts a bus event into a history entry.
func EntryFromEvent(e geobus.Event) Entry {
	return Entry{
		SessionID:  e.SessionID,
		TargetKey:  e.Key,
		TargetName: e.Target.Name,
		Kind:       e.Kind.String(),
		Phase:      e.Phase.String(),
		Lat:        e.Fix.Point.Lat,
		Lon:        e.Fix.Point.Lon,
		Distance:   e.Distance,
		At:         e.At,
	}
}

// Store records and lists history entries.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	// List returns up to limit entries of the target, newest first.
	List(ctx context.Context, targetKey string, limit int64) ([]Entry, error)
	Close() error
}

// New opens the store configured in conf. The "none" backend returns a nil Store.
func New(ctx context.Context, conf *config.Config) (Store, error) {
	switch conf.History.Backend {
	case "none", "":
		return nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     conf.History.Redis.Addr,
			Password: conf.History.Redis.Password,
			DB:       conf.History.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", conf.History.Redis.Addr, err)
		}
		return NewRedisStore(client, conf.History.Redis.Key, conf.History.MaxEntries), nil
	case "postgres":
		store, err := ConnectPostgres(ctx, conf.History.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, conf.History.Backend)
	}
}
