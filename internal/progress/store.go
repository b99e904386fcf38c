// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package progress persists how far a learner got through a lesson.
package progress

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/lessoncast/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// FinishedRatio is the watched fraction at which a lesson counts as finished.
const FinishedRatio = 0.95

// State is the stored progress of one principal on one lesson.
type State struct {
	PosSeconds      int64     `json:"pos_seconds"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	Finished        bool      `json:"finished"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewState derives a progress record from a playback position.
func NewState(pos, duration time.Duration, now time.Time) *State {
	st := &State{
		PosSeconds:      int64(pos / time.Second),
		DurationSeconds: int64(duration / time.Second),
		UpdatedAt:       now.UTC(),
	}
	if duration > 0 && float64(pos) >= FinishedRatio*float64(duration) {
		st.Finished = true
	}
	return st
}

// Store persists progress keyed by (principal, lesson). Get returns nil, nil
// when nothing is stored.
type Store interface {
	Put(ctx context.Context, principalID, lessonRef string, state *State) error
	Get(ctx context.Context, principalID, lessonRef string) (*State, error)
	Delete(ctx context.Context, principalID, lessonRef string) error
	Close() error
}

// Options carries backend specific dependencies for NewStore.
type Options struct {
	Dir   string
	Redis redis.UniversalClient
	// RedisPrefix namespaces redis keys, default "lessoncast:progress:".
	RedisPrefix string
}

// ErrUnknownBackend is returned by NewStore for unsupported backends.
var ErrUnknownBackend = errors.New("unknown progress store backend")

// NewStore creates a store for backend (memory, sqlite, redis, badger).
// sqlite without a directory falls back to memory.
func NewStore(backend string, opts Options) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	var (
		st  Store
		err error
	)
	switch backend {
	case "memory":
		st = NewMemoryStore()
	case "sqlite":
		if opts.Dir == "" {
			st = NewMemoryStore()
			backend = "memory"
			break
		}
		st, err = NewSqliteStore(filepath.Join(opts.Dir, "progress.sqlite"))
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("progress store: redis backend requires a client")
		}
		st = NewRedisStore(opts.Redis, opts.RedisPrefix)
	case "badger":
		if opts.Dir == "" {
			return nil, fmt.Errorf("progress store: badger backend requires a directory")
		}
		st, err = NewBadgerStore(filepath.Join(opts.Dir, "progress.badger"))
	default:
		return nil, fmt.Errorf("%w: %s (supported: memory, sqlite, redis, badger)", ErrUnknownBackend, backend)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{Store: st, backend: backend}, nil
}

// Backend reports the backend name of a store built by NewStore.
func Backend(s Store) string {
	if in, ok := s.(*instrumented); ok {
		return in.backend
	}
	return ""
}

type instrumented struct {
	Store
	backend string
}

func (s *instrumented) Put(ctx context.Context, principalID, lessonRef string, state *State) error {
	err := s.Store.Put(ctx, principalID, lessonRef, state)
	metrics.IncProgressWrite(s.backend, err)
	return err
}

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*State)}
}

func (s *MemoryStore) Put(_ context.Context, principalID, lessonRef string, state *State) error {
	clone := *state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrClosed
	}
	s.data[compositeKey(principalID, lessonRef)] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, principalID, lessonRef string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if val, ok := s.data[compositeKey(principalID, lessonRef)]; ok {
		clone := *val
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryStore) Delete(_ context.Context, principalID, lessonRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, compositeKey(principalID, lessonRef))
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

// ErrClosed is returned by writes to a closed store.
var ErrClosed = errors.New("progress store closed")

func compositeKey(principal, lesson string) string {
	return principal + "\x00" + lesson
}
