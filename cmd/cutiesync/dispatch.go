// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/cutiesync/internal/daemon"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errInvalidPayload = errors.New("--payload is not valid JSON")

func newDispatchCommand(opts *rootOptions) *cobra.Command {
	var (
		payload string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dispatch <type>",
		Short: "Dispatch one instruction against the backend and print its trace",
		Long: `Runs a single instruction through the full pipeline (issue, schedule,
execute, respond, commit) using the configured backend routes, then prints
the phase trace as JSON. The command fails when the instruction fails; the
trace is printed either way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return errInvalidPayload
				}
				body = json.RawMessage(payload)
			}

			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the trace; logs go to stderr.
			xglog.Configure(xglog.Config{
				Level:   cfg.LogLevel,
				Output:  zerolog.SyncWriter(cmd.ErrOrStderr()),
				Service: "cutiesync",
				Version: version.Version,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			core, err := daemon.Bootstrap(ctx, cfg, daemon.Deps{Version: version.Version})
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			res, dispatchErr := core.Pipeline.Dispatch(ctx, args[0], body)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if tr, ok := core.Pipeline.Tracker.Trace(res.InstructionID); ok {
				if err := enc.Encode(tr); err != nil {
					return fmt.Errorf("write trace: %w", err)
				}
			} else if err := enc.Encode(res); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return dispatchErr
		},
	}
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "instruction payload as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}
