// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tracker records per-instruction phase timestamps and outcomes.
//
// The tracker only observes: none of its methods return errors, and invalid
// transitions are logged and ignored so diagnostics can never change a
// dispatch outcome.
package tracker

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/rs/zerolog"
)

// Options configures a Tracker.
type Options struct {
	Clock clock.Clock

	// MaxTraces bounds memory; the oldest trace is dropped first. 0 = unbounded.
	MaxTraces int
	Logger    *zerolog.Logger
}

// Tracker is the passive telemetry store of the pipeline.
type Tracker struct {
	mu     sync.RWMutex
	traces map[string]*model.Trace
	order  []string // instruction ids in start order

	clock     clock.Clock
	maxTraces int
	logger    zerolog.Logger
}

// New creates an empty Tracker.
func New(opts Options) *Tracker {
	logger := xglog.WithComponent("tracker")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Tracker{
		traces:    make(map[string]*model.Trace),
		clock:     clock.OrReal(opts.Clock),
		maxTraces: opts.MaxTraces,
		logger:    logger,
	}
}

// StartInstruction records IF and creates the trace in PENDING.
func (t *Tracker) StartInstruction(id, instructionType, correlationID string, payload any) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.traces[id]; exists {
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.duplicate_start").
			Str(xglog.FieldInstructionID, id).
			Msg("instruction already tracked, ignoring start")
		return
	}

	t.traces[id] = &model.Trace{
		InstructionID: id,
		CorrelationID: correlationID,
		Type:          instructionType,
		Payload:       payload,
		Status:        model.StatusPending,
		Timestamps:    map[model.Phase]time.Time{model.PhaseIssue: now},
	}
	t.order = append(t.order, id)
	t.evictLocked()
	metrics.TrackerTraces.Set(float64(len(t.traces)))
}

// MarkPhase records the timestamp of phase and advances the status it implies.
func (t *Tracker) MarkPhase(id string, phase model.Phase) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.lookupLocked(id, "mark_phase")
	if !ok {
		return
	}
	if _, done := tr.Timestamps[phase]; done || phase.Index() < 0 {
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.phase_rejected").
			Str(xglog.FieldInstructionID, id).
			Str(xglog.FieldPhase, string(phase)).
			Msg("phase unknown or already recorded")
		return
	}
	if last, _ := tr.LastPhase(); phase.Index() < last.Index() {
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.phase_out_of_order").
			Str(xglog.FieldInstructionID, id).
			Str(xglog.FieldPhase, string(phase)).
			Str("last_phase", string(last)).
			Msg("phase recorded out of order, ignoring")
		return
	}

	if next, ok := model.StatusForPhase(phase); ok {
		if !model.CanTransition(tr.Status, next) {
			t.logger.Warn().
				Str(xglog.FieldEvent, "tracker.invalid_transition").
				Str(xglog.FieldInstructionID, id).
				Str(xglog.FieldOldStatus, string(tr.Status)).
				Str(xglog.FieldNewStatus, string(next)).
				Msg("status transition rejected")
			return
		}
		tr.Status = next
	} else if tr.Status != model.StatusResponded {
		// WB is only meaningful after a response.
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.invalid_transition").
			Str(xglog.FieldInstructionID, id).
			Str(xglog.FieldOldStatus, string(tr.Status)).
			Str(xglog.FieldPhase, string(phase)).
			Msg("write-back recorded before response")
		return
	}
	tr.Timestamps[phase] = monotonic(tr, now)
}

// RecordNetworkResult stores the raw backend response.
func (t *Tracker) RecordNetworkResult(id string, result json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.lookupLocked(id, "record_result")
	if !ok {
		return
	}
	tr.NetworkResult = append(json.RawMessage(nil), result...)
}

// CompleteInstruction moves the instruction to COMMITTED and returns its duration.
func (t *Tracker) CompleteInstruction(id string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.lookupLocked(id, "complete")
	if !ok {
		return 0
	}
	if !model.CanTransition(tr.Status, model.StatusCommitted) {
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.invalid_transition").
			Str(xglog.FieldInstructionID, id).
			Str(xglog.FieldOldStatus, string(tr.Status)).
			Str(xglog.FieldNewStatus, string(model.StatusCommitted)).
			Msg("status transition rejected")
		return tr.Duration
	}
	tr.Status = model.StatusCommitted
	tr.Duration = duration(tr)
	return tr.Duration
}

// FailInstruction moves the instruction to FAILED and returns its duration,
// measured up to the last recorded phase.
func (t *Tracker) FailInstruction(id string, cause error) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.lookupLocked(id, "fail")
	if !ok {
		return 0
	}
	if cause != nil {
		tr.Error = cause.Error()
	}
	if !model.CanTransition(tr.Status, model.StatusFailed) {
		t.logger.Warn().
			Str(xglog.FieldEvent, "tracker.invalid_transition").
			Str(xglog.FieldInstructionID, id).
			Str(xglog.FieldOldStatus, string(tr.Status)).
			Str(xglog.FieldNewStatus, string(model.StatusFailed)).
			Msg("status transition rejected")
		return tr.Duration
	}
	tr.Status = model.StatusFailed
	tr.Duration = duration(tr)
	return tr.Duration
}

// Trace returns a copy of the trace for id.
func (t *Tracker) Trace(id string) (model.Trace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tr, ok := t.traces[id]
	if !ok {
		return model.Trace{}, false
	}
	return tr.Clone(), true
}

// AllTraces returns copies of every trace, most recent IF first.
func (t *Tracker) AllTraces() []model.Trace {
	t.mu.RLock()
	out := make([]model.Trace, 0, len(t.traces))
	for _, tr := range t.traces {
		out = append(out, tr.Clone())
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssuedAt().After(out[j].IssuedAt())
	})
	return out
}

// ClearTraces drops every trace.
func (t *Tracker) ClearTraces() {
	t.mu.Lock()
	t.traces = make(map[string]*model.Trace)
	t.order = nil
	t.mu.Unlock()
	metrics.TrackerTraces.Set(0)
}

// Len returns the number of traces held.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.traces)
}

func (t *Tracker) lookupLocked(id, op string) (*model.Trace, bool) {
	tr, ok := t.traces[id]
	if !ok {
		t.logger.Debug().
			Str(xglog.FieldEvent, "tracker.unknown_instruction").
			Str(xglog.FieldInstructionID, id).
			Str("op", op).
			Msg("instruction not tracked (cleared or evicted)")
	}
	return tr, ok
}

func (t *Tracker) evictLocked() {
	if t.maxTraces <= 0 {
		return
	}
	for len(t.traces) > t.maxTraces && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.traces, oldest)
	}
}

// monotonic clamps now so a phase never precedes one recorded before it.
func monotonic(tr *model.Trace, now time.Time) time.Time {
	if _, last := tr.LastPhase(); now.Before(last) {
		return last
	}
	return now
}

func duration(tr *model.Trace) time.Duration {
	_, last := tr.LastPhase()
	d := last.Sub(tr.IssuedAt())
	if d < 0 {
		return 0
	}
	return d
}
