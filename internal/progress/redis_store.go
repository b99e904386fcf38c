// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "lessoncast:progress:"

// RedisStore keeps one JSON document per (principal, lesson) key.
// The client is owned by the caller; Close does not close it.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix selects the default namespace.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(principalID, lessonRef string) string {
	return s.prefix + principalID + ":" + lessonRef
}

func (s *RedisStore) Put(ctx context.Context, principalID, lessonRef string, state *State) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("progress store: encode: %w", err)
	}
	return s.client.Set(ctx, s.key(principalID, lessonRef), buf, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, principalID, lessonRef string) (*State, error) {
	buf, err := s.client.Get(ctx, s.key(principalID, lessonRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(buf, &st); err != nil {
		return nil, fmt.Errorf("progress store: decode: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Delete(ctx context.Context, principalID, lessonRef string) error {
	return s.client.Del(ctx, s.key(principalID, lessonRef)).Err()
}

func (s *RedisStore) Close() error { return nil }
