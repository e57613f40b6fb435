// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package echo implements the suppression table that lets a client discard
// push events it caused itself, and the sweeper that expires its entries.
package echo

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/rs/zerolog"
)

const (
	DefaultTTL           = 10 * time.Second
	DefaultSweepInterval = 5 * time.Second

	destroyTimeout = 5 * time.Second
)

// Options configures a Table and its sweeper.
type Options struct {
	Store         Store // MemoryStore when nil
	// Clock supplies registration times and the sweep cutoff. The sweep
	// cadence follows SweepInterval in wall time, so with a fake clock an
	// entry is evicted on the first tick after the clock passes its TTL.
	Clock         clock.Clock
	TTL           time.Duration
	SweepInterval time.Duration
	Logger        *zerolog.Logger
}

// Table records correlation ids of locally committed instructions for a
// bounded window.
type Table struct {
	store   Store
	clock   clock.Clock
	ttl     time.Duration
	logger  zerolog.Logger
	sweeper *Sweeper
	closed  atomic.Bool
}

// EntryStats describes one live entry.
type EntryStats struct {
	CorrelationID   string        `json:"correlationId"`
	InstructionType string        `json:"instructionType"`
	RegisteredAt    time.Time     `json:"registeredAt"`
	Age             time.Duration `json:"ageNs"`
}

// Stats is a diagnostic snapshot of the table.
type Stats struct {
	Size    int          `json:"size"`
	TTL     string       `json:"ttl"`
	Entries []EntryStats `json:"entries"`
}

// NewTable creates a table. The sweeper is created but not started.
func NewTable(opts Options) *Table {
	logger := xglog.WithComponent("echo")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	clk := clock.OrReal(opts.Clock)

	return &Table{
		store:   opts.Store,
		clock:   clk,
		ttl:     opts.TTL,
		logger:  logger,
		sweeper: newSweeper(opts.Store, clk, opts.TTL, opts.SweepInterval, logger),
	}
}

// Sweeper returns the table's expiry sweeper.
func (t *Table) Sweeper() *Sweeper { return t.sweeper }

// TTL returns the suppression window.
func (t *Table) TTL() time.Duration { return t.ttl }

// Register inserts or overwrites the entry for correlationID with
// registeredAt = now. It fails with ErrClosed after Destroy, since no sweeper
// would evict the entry.
func (t *Table) Register(ctx context.Context, correlationID string, snap model.InstructionSnapshot) error {
	if correlationID == "" {
		return ErrEmptyCorrelationID
	}
	if t.closed.Load() {
		return ErrClosed
	}
	entry := model.SuppressionEntry{
		CorrelationID:   correlationID,
		RegisteredAt:    t.clock.Now(),
		InstructionType: snap.Type,
		PayloadSnapshot: snap.Payload,
	}
	if err := t.store.Put(ctx, entry); err != nil {
		metrics.IncEchoStoreError("put")
		return err
	}
	t.logger.Debug().
		Str(xglog.FieldEvent, "echo.registered").
		Str(xglog.FieldCorrelationID, correlationID).
		Str(xglog.FieldType, snap.Type).
		Msg("suppression entry registered")
	return nil
}

// Revoke removes the entry for correlationID. Only used when an instruction
// registered before its outcome was known and then failed.
func (t *Table) Revoke(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return ErrEmptyCorrelationID
	}
	if err := t.store.Delete(ctx, correlationID); err != nil {
		metrics.IncEchoStoreError("delete")
		return err
	}
	metrics.EchoRevocationsTotal.Inc()
	t.logger.Debug().
		Str(xglog.FieldEvent, "echo.revoked").
		Str(xglog.FieldCorrelationID, correlationID).
		Msg("suppression entry revoked")
	return nil
}

// Handle reports whether ev should be applied. It returns false only when ev
// carries the correlation id of a live entry.
func (t *Table) Handle(ctx context.Context, ev model.InboundEvent) bool {
	if ev.CorrelationID == "" {
		metrics.IncEchoDecision("apply", "no_correlation")
		return true
	}

	entry, ok, err := t.store.Get(ctx, ev.CorrelationID)
	if err != nil {
		// A store outage must not swallow remote changes.
		metrics.IncEchoStoreError("get")
		t.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "echo.lookup_failed").
			Str(xglog.FieldCorrelationID, ev.CorrelationID).
			Msg("suppression lookup failed, applying event")
		metrics.IncEchoDecision("apply", "store_error")
		return true
	}
	if !ok {
		metrics.IncEchoDecision("apply", "foreign")
		return true
	}

	metrics.IncEchoDecision("discard", "local_echo")
	t.logger.Info().
		Str(xglog.FieldEvent, "echo.suppressed").
		Str(xglog.FieldCorrelationID, ev.CorrelationID).
		Str(xglog.FieldEventID, ev.EventID).
		Str(xglog.FieldType, entry.InstructionType).
		Dur(xglog.FieldAge, entry.Age(t.clock.Now())).
		Msg("suppressed echo of local change")
	return false
}

// IsLocalOperation reports whether correlationID has a live entry. It has no
// side effects.
func (t *Table) IsLocalOperation(ctx context.Context, correlationID string) bool {
	if correlationID == "" {
		return false
	}
	_, ok, err := t.store.Get(ctx, correlationID)
	if err != nil {
		metrics.IncEchoStoreError("get")
		return false
	}
	return ok
}

// Stats returns the live entries, oldest first.
func (t *Table) Stats(ctx context.Context) Stats {
	stats := Stats{TTL: t.ttl.String(), Entries: []EntryStats{}}
	entries, err := t.store.List(ctx)
	if err != nil {
		metrics.IncEchoStoreError("list")
		t.logger.Warn().Err(err).Str(xglog.FieldEvent, "echo.stats_failed").Msg("listing suppression entries failed")
		return stats
	}
	now := t.clock.Now()
	for _, e := range entries {
		stats.Entries = append(stats.Entries, EntryStats{
			CorrelationID:   e.CorrelationID,
			InstructionType: e.InstructionType,
			RegisteredAt:    e.RegisteredAt,
			Age:             e.Age(now),
		})
	}
	sort.Slice(stats.Entries, func(i, j int) bool {
		return stats.Entries[i].RegisteredAt.Before(stats.Entries[j].RegisteredAt)
	})
	stats.Size = len(stats.Entries)
	return stats
}

// Destroy stops the sweeper and clears every entry. Previously suppressed
// correlation ids are applied afterwards.
func (t *Table) Destroy() {
	t.closed.Store(true)
	t.sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := t.store.Clear(ctx); err != nil {
		metrics.IncEchoStoreError("clear")
		t.logger.Error().Err(err).Str(xglog.FieldEvent, "echo.destroy_failed").Msg("clearing suppression table failed")
	}
	metrics.EchoTableSize.Set(0)
	t.logger.Debug().Str(xglog.FieldEvent, "echo.destroyed").Msg("suppression table destroyed")
}

// Close destroys the table and releases the store.
func (t *Table) Close() error {
	t.Destroy()
	return t.store.Close()
}
