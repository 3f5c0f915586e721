package kv

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is a tier that lives and dies with the process. molt switch
// uses one as its session tier and tests use it for both tiers. The zero
// value is empty and ready to use.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStore returns an empty tier.
func NewMemoryStore() *MemoryStore {
	return new(MemoryStore)
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.Lock()
	v, ok := s.m[key]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// List returns the key names in lexical order.
func (s *MemoryStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.m)), nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// GetMultiple reads keys under one lock; missing keys are left out.
func (s *MemoryStore) GetMultiple(keys []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Collect(func(yield func(string, string) bool) {
		for _, k := range keys {
			if v, ok := s.m[k]; ok && !yield(k, v) {
				return
			}
		}
	}), nil
}
