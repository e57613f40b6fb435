// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch drives an instruction through IF, SCH, EX, RES and WB,
// recording each phase and registering committed instructions for echo
// suppression.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/cutiesync/internal/correlation"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/pipeline/tracker"
	"github.com/ManuGH/cutiesync/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Registration selects when a correlation id enters the echo table.
type Registration string

const (
	// RegisterOnCommit registers after write-back. An echo that overtakes the
	// response is applied once more.
	RegisterOnCommit Registration = "commit"

	// RegisterOnExecute registers before the network call, refreshes at commit
	// and revokes on failure.
	RegisterOnExecute Registration = "execute"
)

// Valid reports whether r is a known registration mode.
func (r Registration) Valid() bool {
	return r == RegisterOnCommit || r == RegisterOnExecute
}

var (
	ErrNilExecutor         = errors.New("dispatch: executor is required")
	ErrNilTracker          = errors.New("dispatch: tracker is required")
	ErrNilRegistrar        = errors.New("dispatch: registrar is required")
	ErrInvalidRegistration = errors.New("dispatch: invalid registration mode")
)

// Request is what the executor sends to the backend.
type Request struct {
	InstructionID string
	CorrelationID string
	Type          string
	Payload       any
}

// Executor performs the network call of an instruction.
type Executor interface {
	Execute(ctx context.Context, req Request) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// Registrar is the write side of the echo table.
type Registrar interface {
	Register(ctx context.Context, correlationID string, snap model.InstructionSnapshot) error
	Revoke(ctx context.Context, correlationID string) error
}

// Interface is the public dispatch contract, implemented by Dispatcher and
// by the retry decorator.
type Interface interface {
	Dispatch(ctx context.Context, instructionType string, payload any) (Result, error)
}

// Result describes a dispatched instruction. It is populated as far as the
// instruction got, also on failure.
type Result struct {
	InstructionID string          `json:"instructionId"`
	CorrelationID string          `json:"correlationId"`
	Type          string          `json:"type"`
	Status        model.Status    `json:"status"`
	NetworkResult json.RawMessage `json:"networkResult,omitempty"`
	Attempts      int             `json:"attempts"`
}

// Options wires a Dispatcher.
type Options struct {
	Tracker      *tracker.Tracker
	Registrar    Registrar
	Executor     Executor
	WriteBack    model.ApplyFunc // no-op when nil
	Registration Registration    // RegisterOnCommit when empty

	// NewInstructionID and NewCorrelationID default to the correlation package.
	NewInstructionID func() string
	NewCorrelationID func() string

	Tracer trace.Tracer
	Logger *zerolog.Logger
}

// Dispatcher runs instructions. Concurrent Dispatch calls are allowed and
// unordered with respect to each other.
type Dispatcher struct {
	tracker      *tracker.Tracker
	registrar    Registrar
	executor     Executor
	writeBack    model.ApplyFunc
	registration Registration
	newIID       func() string
	newCID       func() string
	tracer       trace.Tracer
	logger       zerolog.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Executor == nil {
		return nil, ErrNilExecutor
	}
	if opts.Tracker == nil {
		return nil, ErrNilTracker
	}
	if opts.Registrar == nil {
		return nil, ErrNilRegistrar
	}
	if opts.Registration == "" {
		opts.Registration = RegisterOnCommit
	}
	if !opts.Registration.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRegistration, opts.Registration)
	}
	if opts.WriteBack == nil {
		opts.WriteBack = func(context.Context, model.Mutation) error { return nil }
	}
	if opts.NewInstructionID == nil {
		opts.NewInstructionID = correlation.NewInstructionID
	}
	if opts.NewCorrelationID == nil {
		opts.NewCorrelationID = correlation.NewID
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer("cutiesync/dispatch")
	}
	logger := xglog.WithComponent("dispatch")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Dispatcher{
		tracker:      opts.Tracker,
		registrar:    opts.Registrar,
		executor:     opts.Executor,
		writeBack:    opts.WriteBack,
		registration: opts.Registration,
		newIID:       opts.NewInstructionID,
		newCID:       opts.NewCorrelationID,
		tracer:       opts.Tracer,
		logger:       logger,
	}, nil
}

// Registration returns the configured registration mode.
func (d *Dispatcher) Registration() Registration { return d.registration }

// Dispatch issues one instruction. Failures are returned as-is and never
// retried here; a failed instruction leaves no suppression entry.
func (d *Dispatcher) Dispatch(ctx context.Context, instructionType string, payload any) (Result, error) {
	iid, cid := d.newIID(), d.newCID()
	res := Result{InstructionID: iid, CorrelationID: cid, Type: instructionType, Status: model.StatusPending, Attempts: 1}

	ctx = xglog.ContextWithInstructionID(ctx, iid)
	ctx = xglog.ContextWithCorrelationID(ctx, cid)
	logger := xglog.WithContext(ctx, d.logger).With().Str(xglog.FieldType, instructionType).Logger()

	ctx, span := d.tracer.Start(ctx, telemetry.SpanDispatch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.InstructionAttributes(iid, cid, instructionType)...),
		trace.WithAttributes(attribute.String(telemetry.RegistrationKey, string(d.registration))),
	)
	defer span.End()

	metrics.DispatchInFlight.Inc()
	defer metrics.DispatchInFlight.Dec()

	// IF
	d.tracker.StartInstruction(iid, instructionType, cid, payload)
	span.AddEvent(telemetry.EventPhase, trace.WithAttributes(telemetry.PhaseAttributes(string(model.PhaseIssue))...))

	// SCH: no admission limit.
	d.mark(span, iid, model.PhaseSchedule)
	res.Status = model.StatusIssued

	snap := model.InstructionSnapshot{Type: instructionType, Payload: payload}
	preRegistered := false
	if d.registration == RegisterOnExecute {
		preRegistered = d.register(ctx, span, logger, cid, snap, "execute")
	}

	// EX: the only blocking point of the pipeline.
	d.mark(span, iid, model.PhaseExecute)
	res.Status = model.StatusExecuting
	raw, err := d.executor.Execute(ctx, Request{
		InstructionID: iid,
		CorrelationID: cid,
		Type:          instructionType,
		Payload:       payload,
	})
	if err != nil {
		return d.fail(ctx, span, logger, res, err, preRegistered)
	}

	// RES. The remaining phases run even if the caller has gone away: the
	// backend already applied the change.
	ctx = context.WithoutCancel(ctx)
	d.mark(span, iid, model.PhaseRespond)
	d.tracker.RecordNetworkResult(iid, raw)
	res.Status = model.StatusResponded
	res.NetworkResult = raw

	// WB
	if err := d.writeBack(ctx, model.Mutation{
		Source:        model.SourceLocal,
		Type:          instructionType,
		CorrelationID: cid,
		Payload:       raw,
	}); err != nil {
		return d.fail(ctx, span, logger, res, fmt.Errorf("write-back: %w", err), preRegistered)
	}
	d.mark(span, iid, model.PhaseWriteBack)

	d.register(ctx, span, logger, cid, snap, "commit")
	dur := d.tracker.CompleteInstruction(iid)
	res.Status = model.StatusCommitted

	metrics.RecordDispatch(instructionType, "committed", model.ErrorKind(nil), dur)
	span.SetAttributes(attribute.String(telemetry.InstructionStatusKey, string(res.Status)))
	span.SetStatus(codes.Ok, "")
	logger.Info().
		Str(xglog.FieldEvent, "dispatch.committed").
		Dur(xglog.FieldDuration, dur).
		Msg("instruction committed")
	return res, nil
}

func (d *Dispatcher) mark(span trace.Span, iid string, phase model.Phase) {
	d.tracker.MarkPhase(iid, phase)
	span.AddEvent(telemetry.EventPhase, trace.WithAttributes(telemetry.PhaseAttributes(string(phase))...))
}

// register writes the suppression entry. A store failure is logged but does
// not fail the instruction: the worst case is one duplicate application.
func (d *Dispatcher) register(ctx context.Context, span trace.Span, logger zerolog.Logger, cid string, snap model.InstructionSnapshot, point string) bool {
	if err := d.registrar.Register(ctx, cid, snap); err != nil {
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "dispatch.register_failed").
			Str("point", point).
			Msg("suppression registration failed, echo will be applied")
		return false
	}
	metrics.EchoRegistrationsTotal.WithLabelValues(point).Inc()
	span.AddEvent(telemetry.EventRegister, trace.WithAttributes(attribute.String("point", point)))
	return true
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, logger zerolog.Logger, res Result, cause error, preRegistered bool) (Result, error) {
	dur := d.tracker.FailInstruction(res.InstructionID, cause)
	res.Status = model.StatusFailed

	if preRegistered {
		if err := d.registrar.Revoke(context.WithoutCancel(ctx), res.CorrelationID); err != nil {
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "dispatch.revoke_failed").
				Msg("failed instruction keeps its suppression entry until expiry")
		} else {
			span.AddEvent(telemetry.EventRevoke)
		}
	}

	kind := model.ErrorKind(cause)
	metrics.RecordDispatch(res.Type, "failed", kind, dur)
	span.RecordError(cause)
	span.SetAttributes(telemetry.ErrorAttributes(cause, kind)...)
	span.SetAttributes(attribute.String(telemetry.InstructionStatusKey, string(res.Status)))
	span.SetStatus(codes.Error, cause.Error())

	logger.Warn().Err(cause).
		Str(xglog.FieldEvent, "dispatch.failed").
		Str("kind", kind).
		Dur(xglog.FieldDuration, dur).
		Msg("instruction failed")
	return res, cause
}

var _ Interface = (*Dispatcher)(nil)
