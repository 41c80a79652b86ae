package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.data[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.data, key)
	return nil
}

// RemoveMany deletes all keys under a single lock.
func (s *MemoryStore) RemoveMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// ListKeys returns all keys in lexical order.
func (s *MemoryStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Update runs fn while holding the store lock.
func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	current, found := s.data[key]
	next, write, err := fn(current, found)
	if err != nil {
		return err
	}
	if write {
		s.data[key] = next
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
