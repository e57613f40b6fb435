// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os/signal"
	"syscall"

	"github.com/ManuGH/cutiesync/internal/config"
	"github.com/ManuGH/cutiesync/internal/daemon"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/version"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon: push channel, event filter and diagnostics API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Safe defaults until the config is loaded.
			xglog.Configure(xglog.Config{Level: "info", Service: "cutiesync", Version: version.Version})
			logger := xglog.WithComponent("cli")

			cfg, loader, err := opts.loadConfig()
			if err != nil {
				logger.Error().Err(err).Str(xglog.FieldEvent, "config.load_failed").Msg("failed to load configuration")
				return err
			}
			daemon.ConfigureLogging(cfg, version.Version)

			source := "env+defaults"
			if opts.configPath != "" {
				source = "file"
			}
			logger.Info().
				Str(xglog.FieldEvent, "config.loaded").
				Str("source", source).
				Str("path", opts.configPath).
				Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			holder := config.NewHolder(cfg, loader, opts.configPath)
			app, err := daemon.NewApp(ctx, holder, daemon.Deps{
				Version:      version.Version,
				ReloadSignal: syscall.SIGHUP,
			})
			if err != nil {
				logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.init_failed").Msg("failed to initialise daemon")
				return err
			}
			return app.Run(ctx)
		},
	}
}
