// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a capped list of JSON encoded entries per target.
type RedisStore struct {
	client *redis.Client
	prefix string
	max    int64
}

// NewRedisStore returns a RedisStore that stores at most max entries per target below the key prefix.
func NewRedisStore(client *redis.Client, prefix string, max int64) *RedisStore {
	if max < 1 {
		max = 1
	}
	return &RedisStore{client: client, prefix: prefix, max: max}
}

func (s *RedisStore) key(targetKey string) string {
	return s.prefix + ":" + targetKey
}

func (s *RedisStore) Record(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	key := s.key(entry.TargetKey)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.max-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, targetKey string, limit int64) ([]Entry, error) {
	if limit < 1 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key(targetKey), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err = json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
