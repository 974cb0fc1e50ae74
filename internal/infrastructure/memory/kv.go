// Package memory provides an in-process implementation of domain.KV.
// Values are kept JSON-encoded so callers never share mutable state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"vn.io.arda/storefront-notifier/internal/domain"
)

// KV is a thread-safe in-memory key-value store.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty store.
func New() *KV {
	return &KV{data: make(map[string][]byte)}
}

// Get decodes the value for key into dest.
func (s *KV) Get(_ context.Context, key string, dest any) error {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
	}
	return json.Unmarshal(raw, dest)
}

// Set stores value under key.
func (s *KV) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return nil
}

// Update runs fn and stores its result while holding the write lock.
func (s *KV) Update(_ context.Context, key string, fn domain.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[key]
	value, err := fn(func(dest any) error {
		if !ok {
			return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
		}
		return json.Unmarshal(raw, dest)
	})
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.data[key] = encoded
	return nil
}

// Delete removes key.
func (s *KV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns all stored keys.
func (s *KV) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
