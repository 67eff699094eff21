// Package kvstore provides the opaque string-keyed persistence the client
// core relies on: one interface with in-memory, file and Redis backends.
// Values are JSON-serialized strings; the store itself does not interpret
// them.
package kvstore

import (
	"context"
	"sync"

	"story-client/internal/models"
)

// Store is a minimal get/set/remove contract over string keys.
// Get returns models.ErrKeyNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Compile-time check to ensure memoryStore implements Store
var _ Store = (*memoryStore)(nil)

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a volatile in-process Store. Used in tests and as
// the degradation target when persistent backends are unavailable.
func NewMemoryStore() Store {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", models.ErrKeyNotFound
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
