// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline assembles the optimistic command pipeline: phase tracker,
// echo suppression table with its sweeper, dispatcher and event filter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/dispatch"
	"github.com/ManuGH/cutiesync/internal/pipeline/echo"
	"github.com/ManuGH/cutiesync/internal/pipeline/filter"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/pipeline/tracker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrTTLNotAboveSweep is returned when an entry could be evicted before it
// was ever eligible to suppress an echo.
var ErrTTLNotAboveSweep = errors.New("pipeline: suppression ttl must be greater than the sweep interval")

// Config holds the tunables of one pipeline instance.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Registration  dispatch.Registration
	MaxTraces     int

	// RetryAttempts > 1 wraps the dispatcher in the retry decorator.
	RetryAttempts        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Deps are the collaborators supplied by the host application.
type Deps struct {
	Executor  dispatch.Executor
	WriteBack model.ApplyFunc
	Store     echo.Store // MemoryStore when nil
	Clock     clock.Clock
	Tracer    trace.Tracer
	Logger    *zerolog.Logger
}

// Pipeline owns one tracker, table, dispatcher and filter. There are no
// package-level instances; every client builds its own.
type Pipeline struct {
	Tracker    *tracker.Tracker
	Table      *echo.Table
	Dispatcher dispatch.Interface
	Filter     *filter.Filter

	closeOnce sync.Once
	closeErr  error
}

// New builds the pipeline and starts the sweeper.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = echo.DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = echo.DefaultSweepInterval
	}
	if cfg.TTL <= cfg.SweepInterval {
		return nil, fmt.Errorf("%w (ttl=%s sweep=%s)", ErrTTLNotAboveSweep, cfg.TTL, cfg.SweepInterval)
	}

	logger := xglog.WithComponent("pipeline")
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	sub := func(component string) *zerolog.Logger {
		l := logger.With().Str(xglog.FieldComponent, component).Logger()
		return &l
	}

	trk := tracker.New(tracker.Options{Clock: deps.Clock, MaxTraces: cfg.MaxTraces, Logger: sub("tracker")})
	table := echo.NewTable(echo.Options{
		Store:         deps.Store,
		Clock:         deps.Clock,
		TTL:           cfg.TTL,
		SweepInterval: cfg.SweepInterval,
		Logger:        sub("echo"),
	})

	d, err := dispatch.New(dispatch.Options{
		Tracker:      trk,
		Registrar:    table,
		Executor:     deps.Executor,
		WriteBack:    deps.WriteBack,
		Registration: cfg.Registration,
		Tracer:       deps.Tracer,
		Logger:       sub("dispatch"),
	})
	if err != nil {
		_ = table.Close()
		return nil, err
	}

	var dispatcher dispatch.Interface = d
	if cfg.RetryAttempts > 1 {
		dispatcher = dispatch.WithRetry(d, dispatch.RetryOptions{
			MaxAttempts:     cfg.RetryAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Logger:          sub("dispatch.retry"),
		})
	}

	table.Sweeper().Start()

	logger.Info().
		Str(xglog.FieldEvent, "pipeline.started").
		Dur(xglog.FieldTTL, cfg.TTL).
		Dur("sweep_interval", cfg.SweepInterval).
		Str("registration", string(d.Registration())).
		Uint("retry_attempts", cfg.RetryAttempts).
		Msg("command pipeline ready")

	return &Pipeline{
		Tracker:    trk,
		Table:      table,
		Dispatcher: dispatcher,
		Filter:     filter.New(table, sub("filter")),
	}, nil
}

// Dispatch issues an instruction through the configured dispatcher.
func (p *Pipeline) Dispatch(ctx context.Context, instructionType string, payload any) (dispatch.Result, error) {
	return p.Dispatcher.Dispatch(ctx, instructionType, payload)
}

// Process runs one inbound event through the filter.
func (p *Pipeline) Process(ctx context.Context, ev model.InboundEvent, apply model.ApplyFunc) (bool, error) {
	return p.Filter.Process(ctx, ev, apply)
}

// Close stops the sweeper, clears the table and releases its store.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.Table.Close()
	})
	return p.closeErr
}
