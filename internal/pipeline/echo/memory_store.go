// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package echo

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
)

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.SuppressionEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.SuppressionEntry)}
}

func (s *MemoryStore) Put(_ context.Context, entry model.SuppressionEntry) error {
	s.mu.Lock()
	s.entries[entry.CorrelationID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, correlationID string) (model.SuppressionEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[correlationID]
	return e, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, correlationID string) error {
	s.mu.Lock()
	delete(s.entries, correlationID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.SuppressionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SuppressionEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRegisteredBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.RegisteredAt.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]model.SuppressionEntry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
