// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"time"

	"github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	MaxAttempts     uint          // total attempts including the first; 3 when zero
	InitialInterval time.Duration // 200ms when zero
	MaxInterval     time.Duration // 5s when zero
	Logger          *zerolog.Logger
}

// Retrying re-dispatches instructions that failed with a NetworkError. Every
// attempt is a new instruction with its own correlation id, so a failed
// attempt can never suppress the echo of a later one.
type Retrying struct {
	next   Interface
	opts   RetryOptions
	logger zerolog.Logger
}

// WithRetry wraps next. BackendError and local failures are never retried.
func WithRetry(next Interface, opts RetryOptions) *Retrying {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	logger := log.WithComponent("dispatch.retry")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Retrying{next: next, opts: opts, logger: logger}
}

func (r *Retrying) Dispatch(ctx context.Context, instructionType string, payload any) (Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	attempts := 0
	res, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		res, err := r.next.Dispatch(ctx, instructionType, payload)
		res.Attempts = attempts
		if err != nil && !model.IsNetworkError(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.DispatchRetriesTotal.WithLabelValues(instructionType).Inc()
			r.logger.Info().Err(err).
				Str(log.FieldEvent, "dispatch.retry").
				Str(log.FieldType, instructionType).
				Int("attempt", attempts).
				Dur("wait", wait).
				Msg("retrying instruction after network error")
		}),
	)
	res.Attempts = attempts
	return res, err
}

var _ Interface = (*Retrying)(nil)
