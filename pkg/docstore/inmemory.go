package docstore

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a generic, thread-safe, in-memory Store implementation.
type InMemoryStore[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[K comparable, V any]() *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		data: make(map[K]V),
	}
}

// Put adds or replaces a document.
func (s *InMemoryStore[K, V]) Put(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Get retrieves a document.
func (s *InMemoryStore[K, V]) Get(_ context.Context, key K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// Len returns the number of stored documents.
func (s *InMemoryStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op.
func (s *InMemoryStore[K, V]) Close() error { return nil }
