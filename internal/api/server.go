// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the diagnostics surface of the command pipeline.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/health"
	"github.com/ManuGH/cutiesync/internal/pipeline/dispatch"
	"github.com/ManuGH/cutiesync/internal/pipeline/echo"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/state"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

var (
	ErrNilDispatcher  = errors.New("api: dispatcher is required")
	ErrNilTraces      = errors.New("api: trace store is required")
	ErrNilSuppression = errors.New("api: suppression stats are required")
	ErrServerStarted  = errors.New("api: server already started")
)

// TraceStore exposes the phase tracker.
type TraceStore interface {
	AllTraces() []model.Trace
	Trace(id string) (model.Trace, bool)
	ClearTraces()
}

// SuppressionStats exposes the echo suppression table.
type SuppressionStats interface {
	Stats(ctx context.Context) echo.Stats
}

// StateReader exposes the application state store.
type StateReader interface {
	Snapshot() state.Snapshot
}

// HealthReporter runs component checks for /healthz?verbose=true and /readyz.
type HealthReporter interface {
	Health(ctx context.Context, verbose bool) health.HealthResponse
	Ready(ctx context.Context) health.ReadinessResponse
}

// Config controls the HTTP listener.
type Config struct {
	ListenAddr      string
	RateLimit       int // requests per minute per IP, 0 disables
	ShutdownTimeout time.Duration
	TracingService  string // empty disables otelhttp
}

// Deps are the pipeline parts the API reads from. State and Health are optional.
type Deps struct {
	Dispatcher  dispatch.Interface
	Traces      TraceStore
	Suppression SuppressionStats
	State       StateReader
	Health      HealthReporter
	Logger      *zerolog.Logger
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg       Config
	deps      Deps
	logger    zerolog.Logger
	startTime time.Time
	handler   http.Handler

	mu  sync.Mutex
	srv *http.Server
}

// New validates deps and builds the router.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Dispatcher == nil:
		return nil, ErrNilDispatcher
	case deps.Traces == nil:
		return nil, ErrNilTraces
	case deps.Suppression == nil:
		return nil, ErrNilSuppression
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	logger := xglog.WithComponent("api")
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the configured HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx
// ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerStarted
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().
		Str(xglog.FieldEvent, "api.listening").
		Str("addr", ln.Addr().String()).
		Msg("diagnostics API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// Shutdown performs a graceful shutdown of the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info().Str(xglog.FieldEvent, "api.shutdown").Msg("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
