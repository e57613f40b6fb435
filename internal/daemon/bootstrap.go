// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the command pipeline, the push channel and the
// diagnostics API into one process.
package daemon

import (
	"context"
	"fmt"

	"github.com/ManuGH/cutiesync/internal/clock"
	"github.com/ManuGH/cutiesync/internal/config"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline"
	"github.com/ManuGH/cutiesync/internal/pipeline/dispatch"
	"github.com/ManuGH/cutiesync/internal/pipeline/echo"
	"github.com/ManuGH/cutiesync/internal/state"
	"github.com/ManuGH/cutiesync/internal/transport/backend"
)

// Core is the command pipeline bound to the backend and the state store.
type Core struct {
	Pipeline  *pipeline.Pipeline
	State     *state.Store
	Backend   *backend.Client
	EchoStore echo.Store
}

// Bootstrap builds the backend client, the suppression store, the state
// store and the pipeline. The sweeper is running when it returns.
func Bootstrap(ctx context.Context, cfg config.AppConfig, deps Deps) (*Core, error) {
	clk := clock.OrReal(deps.Clock)

	routes := make(map[string]backend.Route, len(cfg.Backend.Routes))
	for typ, r := range cfg.Backend.Routes {
		routes[typ] = backend.Route{Method: r.Method, Path: r.Path}
	}

	client, err := backend.New(backend.Options{
		BaseURL:          cfg.Backend.BaseURL,
		Timeout:          cfg.Backend.Timeout,
		RateLimit:        cfg.Backend.RateLimit,
		Burst:            cfg.Backend.Burst,
		Routes:           routes,
		BreakerThreshold: cfg.Backend.BreakerThreshold,
		BreakerReset:     cfg.Backend.BreakerReset,
		HTTPClient:       deps.HTTPClient,
		Clock:            clk,
		Logger:           deps.sub("backend"),
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	store, err := newEchoStore(ctx, cfg.Echo, deps)
	if err != nil {
		return nil, err
	}

	st := state.New(clk, deps.sub("state"))
	p, err := pipeline.New(pipeline.Config{
		TTL:                  cfg.Echo.TTL,
		SweepInterval:        cfg.Echo.SweepInterval,
		Registration:         dispatch.Registration(cfg.Echo.Registration),
		MaxTraces:            cfg.Tracker.MaxTraces,
		RetryAttempts:        cfg.Retry.Attempts,
		RetryInitialInterval: cfg.Retry.InitialInterval,
		RetryMaxInterval:     cfg.Retry.MaxInterval,
	}, pipeline.Deps{
		Executor:  client,
		WriteBack: st.Apply,
		Store:     store,
		Clock:     clk,
		Logger:    deps.sub("pipeline"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Core{Pipeline: p, State: st, Backend: client, EchoStore: store}, nil
}

// Close stops the sweeper and releases the suppression store.
func (c *Core) Close() error {
	return c.Pipeline.Close()
}

func newEchoStore(ctx context.Context, cfg config.EchoConfig, deps Deps) (echo.Store, error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		return echo.NewMemoryStore(), nil
	case config.StoreRedis:
		store, err := echo.NewRedisStore(ctx, echo.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Expiry:   cfg.TTL + cfg.SweepInterval,
		}, deps.logger("echo.redis"))
		if err != nil {
			return nil, fmt.Errorf("echo store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}
}

// ConfigureLogging applies the configured level to the global logger.
func ConfigureLogging(cfg config.AppConfig, version string) {
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "cutiesync",
		Version: version,
	})
}
