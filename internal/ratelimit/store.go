// Package ratelimit implements a fixed-window attempt limiter shared by the
// login and verification flows. State lives behind a Store so a single
// process can run on the in-memory map while multi-process deployments plug
// in the Redis store; the limiter itself never persists anything.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the counter state for one key within its current window.
type Entry struct {
	WindowStart  time.Time `json:"window_start"`
	AttemptCount int       `json:"attempt_count"`
}

// Store persists rate-limit entries. Implementations only need best-effort
// durability: losing entries on restart weakens abuse mitigation briefly and
// is acceptable.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps entries in a process-local map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns the entry for key, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Set stores the entry. The TTL is ignored; stale entries are overwritten on
// the next attempt for the same key.
func (s *MemoryStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
