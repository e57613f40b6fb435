// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package echo

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/rs/zerolog"
)

// Sweeper evicts entries older than the TTL on a fixed interval, independent
// of dispatch and event traffic.
type Sweeper struct {
	store    Store
	clock    clock.Clock
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSweeper(store Store, clk clock.Clock, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, clock: clk, ttl: ttl, interval: interval, logger: logger}
}

// Interval returns the sweep period.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop halts the loop and waits for it to exit. Safe to call repeatedly.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Str(xglog.FieldEvent, "echo.sweeper_started").
		Dur("interval", s.interval).
		Dur(xglog.FieldTTL, s.ttl).
		Msg("suppression sweeper started")

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Str(xglog.FieldEvent, "echo.sweep_failed").Msg("suppression sweep failed")
			}
		case <-ctx.Done():
			s.logger.Info().Str(xglog.FieldEvent, "echo.sweeper_stopped").Msg("suppression sweeper stopped")
			return
		}
	}
}

// Sweep removes every entry whose age exceeds the TTL and returns how many
// were removed. An entry aged exactly TTL survives.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.ttl)
	removed, err := s.store.DeleteRegisteredBefore(ctx, cutoff)
	if removed > 0 {
		metrics.EchoEvictionsTotal.Add(float64(removed))
		s.logger.Debug().
			Str(xglog.FieldEvent, "echo.evicted").
			Int("evicted", removed).
			Msg("expired suppression entries evicted")
	}
	if err != nil {
		metrics.IncEchoStoreError("sweep")
		return removed, err
	}
	if entries, err := s.store.List(ctx); err == nil {
		metrics.EchoTableSize.Set(float64(len(entries)))
	}
	return removed, nil
}
