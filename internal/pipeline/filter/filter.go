// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package filter routes inbound push events through the echo table and on to
// the application's state mutation function.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/cutiesync/internal/correlation"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/bus"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/rs/zerolog"
)

// ErrNilApply is returned when Process is called without a mutation function.
var ErrNilApply = errors.New("filter: nil apply function")

// Decider decides whether an inbound event must be applied.
type Decider interface {
	Handle(ctx context.Context, ev model.InboundEvent) bool
}

// Filter holds no state of its own.
type Filter struct {
	decider Decider
	logger  zerolog.Logger
}

func New(decider Decider, logger *zerolog.Logger) *Filter {
	l := xglog.WithComponent("filter")
	if logger != nil {
		l = *logger
	}
	return &Filter{decider: decider, logger: l}
}

// Process applies ev through apply unless it is an echo of a local change.
// Correlation ids that fail normalisation are treated as absent, so a
// malformed event is always applied. Only apply's error is returned.
func (f *Filter) Process(ctx context.Context, ev model.InboundEvent, apply model.ApplyFunc) (bool, error) {
	if apply == nil {
		return false, ErrNilApply
	}

	if ev.CorrelationID != "" {
		cid, err := correlation.Normalize(ev.CorrelationID)
		if err != nil {
			f.logger.Debug().Err(err).
				Str(xglog.FieldEvent, "filter.correlation_dropped").
				Str(xglog.FieldEventID, ev.EventID).
				Msg("unusable correlation id, treating event as foreign")
		}
		ev.CorrelationID = cid
	}

	if !f.decider.Handle(ctx, ev) {
		return false, nil
	}

	m := model.Mutation{
		Source:        model.SourceRemote,
		Type:          ev.EventType,
		CorrelationID: ev.CorrelationID,
		EventID:       ev.EventID,
		Payload:       ev.Payload,
	}
	if err := apply(ctx, m); err != nil {
		return true, fmt.Errorf("apply %s: %w", ev.EventType, err)
	}
	return true, nil
}

// Consume processes every message from sub until ctx ends or the
// subscription closes. Apply errors are logged and do not stop consumption.
func (f *Filter) Consume(ctx context.Context, sub bus.Subscriber, apply model.ApplyFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if _, err := f.Process(ctx, ev, apply); err != nil {
				f.logger.Warn().Err(err).
					Str(xglog.FieldEvent, "filter.apply_failed").
					Str(xglog.FieldEventID, ev.EventID).
					Str(xglog.FieldCorrelationID, ev.CorrelationID).
					Str(xglog.FieldTransport, string(ev.TransportKind)).
					Msg("applying remote event failed")
			}
		}
	}
}
