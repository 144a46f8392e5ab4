// Package memory provides a LocalStore kept entirely in process memory.
// It backs tests and deployments that run without a cache file; contents
// are lost when the process exits.
package memory

import (
	"context"
	"sync"

	"eventdeck/internal/domain"
)

type entry struct {
	scope string
	value []byte
}

// Store is a map-backed LocalStore. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, scope string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = entry{scope: scope, value: stored}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Clear removes every entry stored under scope in one pass.
func (s *Store) Clear(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.scope == scope {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
