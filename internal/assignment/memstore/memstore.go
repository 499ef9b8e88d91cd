// Package memstore provides an in-memory implementation of assignment.Slot.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

var _ assignment.Slot = (*Store)(nil)

// Store holds slot values in memory. Suitable for dev/testing; contents are
// lost on restart.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
