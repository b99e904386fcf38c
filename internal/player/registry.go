// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"errors"
	"sort"
	"sync"
)

// Factory builds the player for id; each player gets its own surface.
type Factory func(id string) (*Player, error)

// Registry owns the players of a process, keyed by player ID.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
	factory Factory
	limit   int
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{players: make(map[string]*Player), factory: factory}
}

// SetLimit bounds the number of registered players; n <= 0 removes the bound.
// Players already registered are kept when the bound shrinks.
func (r *Registry) SetLimit(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

// Get returns the player for id.
func (r *Registry) Get(id string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// GetOrCreate returns the player for id, creating it on first use. A new
// player is refused with ErrPlayerLimit once the limit is reached.
func (r *Registry) GetOrCreate(id string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrPlayerClosed
	}
	if p, ok := r.players[id]; ok {
		return p, nil
	}
	if r.limit > 0 && len(r.players) >= r.limit {
		return nil, ErrPlayerLimit
	}
	p, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	r.players[id] = p
	return p, nil
}

// Remove closes and forgets the player for id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	p, ok := r.players[id]
	delete(r.players, id)
	r.mu.Unlock()
	if ok {
		_ = p.Close()
	}
	return ok
}

// IDs lists registered players in lexical order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every player. Further GetOrCreate calls fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	players := r.players
	r.players = make(map[string]*Player)
	r.mu.Unlock()

	var errs []error
	for _, p := range players {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
