// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package state is the local application state behind the mutation
// boundary. It keeps the latest payload per aggregate.
package state

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/rs/zerolog"
)

// Entry is the current state of one aggregate.
type Entry struct {
	Key              string          `json:"key"`
	Type             string          `json:"type"`
	Source           model.Source    `json:"source"`
	CorrelationID    string          `json:"correlationId,omitempty"`
	EventID          string          `json:"eventId,omitempty"`
	AggregateVersion *int64          `json:"aggregateVersion,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Revision         uint64          `json:"revision"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Entries []Entry              `json:"entries"`
	Applied map[model.Source]int `json:"applied"`
	Stale   int                  `json:"stale"`
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	applied map[model.Source]int
	stale   int
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates an empty store.
func New(clk clock.Clock, logger *zerolog.Logger) *Store {
	l := xglog.WithComponent("state")
	if logger != nil {
		l = *logger
	}
	return &Store{
		entries: make(map[string]*Entry),
		applied: make(map[model.Source]int),
		clock:   clock.OrReal(clk),
		logger:  l,
	}
}

// envelope is the subset of a backend domain event the store needs.
type envelope struct {
	EventType        string          `json:"event_type"`
	AggregateType    string          `json:"aggregate_type"`
	AggregateID      string          `json:"aggregate_id"`
	AggregateVersion *int64          `json:"aggregate_version"`
	Payload          json.RawMessage `json:"payload"`
}

// Apply implements model.ApplyFunc. Remote events older than the stored
// aggregate version are skipped.
func (s *Store) Apply(_ context.Context, m model.Mutation) error {
	key, version, payload := resolve(m)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	if ok && version != nil && cur.AggregateVersion != nil && *version <= *cur.AggregateVersion {
		s.stale++
		s.logger.Debug().
			Str(xglog.FieldEvent, "state.stale").
			Str("key", key).
			Int64("version", *version).
			Int64("current", *cur.AggregateVersion).
			Msg("skipping stale mutation")
		return nil
	}
	if !ok {
		cur = &Entry{Key: key}
		s.entries[key] = cur
	}

	cur.Type = m.Type
	cur.Source = m.Source
	cur.CorrelationID = m.CorrelationID
	cur.EventID = m.EventID
	cur.Payload = payload
	if version != nil {
		cur.AggregateVersion = version
	}
	cur.Revision++
	cur.UpdatedAt = s.clock.Now()

	s.applied[m.Source]++
	metrics.StateMutationsTotal.WithLabelValues(string(m.Source)).Inc()
	return nil
}

// resolve derives the aggregate key. Remote payloads are domain event
// envelopes; local payloads are backend results keyed by their id field.
func resolve(m model.Mutation) (string, *int64, json.RawMessage) {
	if m.Source == model.SourceRemote {
		var env envelope
		if err := json.Unmarshal(m.Payload, &env); err == nil && env.AggregateType != "" && env.AggregateID != "" {
			return env.AggregateType + ":" + env.AggregateID, env.AggregateVersion, env.Payload
		}
		return "event:" + m.Type, nil, m.Payload
	}

	aggregate, _, _ := strings.Cut(m.Type, ".")
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(m.Payload, &head); err == nil && len(head.ID) > 0 {
		var id string
		if err := json.Unmarshal(head.ID, &id); err != nil {
			id = string(head.ID)
		}
		if id != "" && id != "null" {
			return aggregate + ":" + id, nil, m.Payload
		}
	}
	return "instruction:" + m.Type, nil, m.Payload
}

// Get returns a copy of the entry stored under key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of aggregates held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns all entries sorted by key.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Entries: make([]Entry, 0, len(s.entries)),
		Applied: make(map[model.Source]int, len(s.applied)),
		Stale:   s.stale,
	}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	for src, n := range s.applied {
		snap.Applied[src] = n
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Key < snap.Entries[j].Key })
	return snap
}
