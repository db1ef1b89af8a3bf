// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = time.Second * 5

// Querier represents the minimal database operations used by the store. Both *pgxpool.Pool and pgxmock
// pools satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps entries in the alarm_history table.
type PostgresStore struct {
	db    Querier
	close func()
}

// ConnectPostgres opens a pool for dsn and makes sure the history table exists.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	store := NewPostgresStore(pool)
	store.close = pool.Close
	if err = store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore returns a store on db. Closing the store does not close db.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the history table if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alarm_history (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			target      TEXT NOT NULL,
			target_name TEXT NOT NULL DEFAULT '',
			kind        TEXT NOT NULL,
			phase       TEXT NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lon         DOUBLE PRECISION NOT NULL,
			distance_m  DOUBLE PRECISION NOT NULL,
			at          TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO alarm_history (session_id, target, target_name, kind, phase, lat, lon, distance_m, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.SessionID, entry.TargetKey, entry.TargetName, entry.Kind, entry.Phase, entry.Lat, entry.Lon,
		entry.Distance, entry.At)
	if err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, targetKey string, limit int64) ([]Entry, error) {
	if limit < 1 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, target, target_name, kind, phase, lat, lon, distance_m, at
		FROM alarm_history
		WHERE target=$1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, targetKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.SessionID, &e.TargetKey, &e.TargetName, &e.Kind, &e.Phase, &e.Lat, &e.Lon,
			&e.Distance, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
