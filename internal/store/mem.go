// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"strconv"
	"sync"
)

// MemStore is an in-memory implementation of the [Store] interface.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var (
	memMu     sync.Mutex
	memStores = make(map[string]*MemStore)
)

// OpenMem returns the MemStore registered under name, creating it if needed.
// Closing a MemStore keeps its contents, so the next OpenMem of the same name
// sees them.
func OpenMem(name string) *MemStore {
	memMu.Lock()
	defer memMu.Unlock()
	s, ok := memStores[name]
	if !ok {
		s = NewMemStore()
		memStores[name] = s
	}
	return s
}

// NewMemStore creates a new unregistered MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

// Get retrieves a value for a given key.
func (s *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Contains reports whether the key is present.
func (s *MemStore) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// SetMax stores n for a given key unless it holds a higher or equal integer.
func (s *MemStore) SetMax(_ context.Context, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !lower(s.data[key], n) {
		return nil
	}
	s.data[key] = strconv.FormatInt(n, 10)
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}
