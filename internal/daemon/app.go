// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/ManuGH/cutiesync/internal/api"
	"github.com/ManuGH/cutiesync/internal/config"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/bus"
	"github.com/ManuGH/cutiesync/internal/telemetry"
	"github.com/ManuGH/cutiesync/internal/transport/push"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 30 * time.Second

// App owns the long-lived runtime: push source, event filter, diagnostics
// API and config reload.
type App struct {
	holder       *config.Holder
	core         *Core
	bus          *bus.MemoryBus
	source       push.Source
	server       *api.Server
	listener     net.Listener
	reloadSignal os.Signal
	logger       zerolog.Logger

	hooks   hooks
	running atomic.Bool
}

// NewApp builds every component from the holder's current config. On error
// everything built so far is released.
func NewApp(ctx context.Context, holder *config.Holder, deps Deps) (_ *App, err error) {
	if holder == nil {
		return nil, ErrMissingHolder
	}
	cfg := holder.Get()
	logger := deps.logger("daemon")

	a := &App{
		holder:       holder,
		reloadSignal: deps.ReloadSignal,
		logger:       logger,
		hooks:        hooks{logger: logger},
	}
	defer func() {
		if err != nil {
			_ = a.hooks.run(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "cutiesync",
		ServiceVersion: deps.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.hooks.register("telemetry", tp.Shutdown)

	core, err := Bootstrap(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	a.core = core
	a.hooks.register("pipeline", func(context.Context) error { return core.Close() })

	a.bus = bus.NewMemoryBusWithBuffer(cfg.Push.BufferSize)
	a.source, err = newSource(cfg, a.bus, deps)
	if err != nil {
		return nil, err
	}

	tracing := ""
	if tp.Enabled() {
		tracing = "cutiesync-api"
	}
	a.server, err = api.New(api.Config{
		ListenAddr:      cfg.API.ListenAddr,
		RateLimit:       cfg.API.RateLimit,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
		TracingService:  tracing,
	}, api.Deps{
		Dispatcher:  core.Pipeline.Dispatcher,
		Traces:      core.Pipeline.Tracker,
		Suppression: core.Pipeline.Table,
		State:       core.State,
		Health:      newHealthManager(deps.Version, core, deps.Clock),
		Logger:      deps.sub("api"),
	})
	if err != nil {
		return nil, err
	}

	a.listener = deps.Listener
	if a.listener == nil {
		a.listener, err = net.Listen("tcp", cfg.API.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", cfg.API.ListenAddr, err)
		}
	}

	holder.OnReload(func(old, updated config.AppConfig) {
		if old.LogLevel == updated.LogLevel {
			return
		}
		if err := xglog.SetLevel(updated.LogLevel); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "config.log_level_invalid").Msg("log level not applied")
			return
		}
		logger.Info().
			Str(xglog.FieldEvent, "config.log_level_changed").
			Str("level", updated.LogLevel).
			Msg("log level changed")
	})

	return a, nil
}

// Core returns the pipeline components.
func (a *App) Core() *Core { return a.core }

// Addr is the address the diagnostics API listens on.
func (a *App) Addr() net.Addr { return a.listener.Addr() }

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or one of them fails. Everything is torn down before it returns.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	cfg := a.holder.Get()
	a.logger.Info().
		Str(xglog.FieldEvent, "daemon.start").
		Str("addr", a.Addr().String()).
		Str("push", cfg.Push.Transport).
		Str("echo_store", cfg.Echo.Store).
		Str("backend", a.core.Backend.BaseURL()).
		Msg("starting daemon")

	g, gctx := errgroup.WithContext(ctx)

	// The watcher is best-effort: startup does not fail without it.
	if err := a.holder.StartWatcher(gctx); err != nil {
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	a.hooks.register("config-watcher", func(context.Context) error {
		a.holder.Stop()
		return nil
	})

	sub, err := a.bus.Subscribe(gctx, bus.TopicInbound)
	if err != nil {
		_ = a.listener.Close()
		return errors.Join(fmt.Errorf("subscribe: %w", err), a.shutdown(ctx))
	}
	g.Go(func() error {
		if err := a.core.Pipeline.Filter.Consume(gctx, sub, a.core.State.Apply); err != nil && gctx.Err() == nil {
			return fmt.Errorf("event filter: %w", err)
		}
		return nil
	})

	if a.source != nil {
		g.Go(func() error {
			if err := a.source.Run(gctx); err != nil {
				return fmt.Errorf("push %s: %w", a.source.Kind(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.server.Serve(gctx, a.listener)
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			return a.watchReloadSignal(gctx)
		})
	}

	err = g.Wait()
	if err != nil {
		a.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("subsystem failed, shutting down")
	}
	if shutdownErr := a.shutdown(ctx); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	a.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return err
}

func (a *App) watchReloadSignal(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, a.reloadSignal)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			a.logger.Info().
				Str(xglog.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

// shutdown uses a detached-but-bounded context so cleanup completes after
// the parent is cancelled.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return a.hooks.run(shutdownCtx)
}

// Close releases everything without running. Only needed when Run is never called.
func (a *App) Close(ctx context.Context) error {
	if a.listener != nil && !a.running.Load() {
		_ = a.listener.Close()
	}
	return a.shutdown(ctx)
}

func newSource(cfg config.AppConfig, b bus.Bus, deps Deps) (push.Source, error) {
	opts := push.Options{
		BaseURL:        cfg.Backend.BaseURL,
		HTTPClient:     deps.PushClient,
		Bus:            b,
		PublishTimeout: cfg.Push.PublishTimeout,
		Clock:          deps.Clock,
		Logger:         deps.sub("push"),
	}
	switch cfg.Push.Transport {
	case config.TransportStream:
		opts.Path = cfg.Push.StreamPath
		return push.NewStreamSource(push.StreamOptions{
			Options:      opts,
			ReconnectMin: cfg.Push.ReconnectMin,
			ReconnectMax: cfg.Push.ReconnectMax,
		})
	case config.TransportPoll:
		opts.Path = cfg.Push.PollPath
		return push.NewPollSource(push.PollOptions{
			Options:  opts,
			Interval: cfg.Push.PollInterval,
		})
	case "", config.TransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Push.Transport)
	}
}
