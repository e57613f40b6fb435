// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tracker

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(clk *testutil.FakeClock, maxTraces int) *Tracker {
	logger := zerolog.New(io.Discard)
	return New(Options{Clock: clk, MaxTraces: maxTraces, Logger: &logger})
}

func TestTrackerCommittedLifecycle(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)

	tr.StartInstruction("i1", "task.complete", "c1", map[string]string{"id": "t1"})
	clk.At(1 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseSchedule)
	clk.At(2 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseExecute)
	clk.At(50 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseRespond)
	tr.RecordNetworkResult("i1", json.RawMessage(`{"ok":true}`))
	clk.At(51 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseWriteBack)
	d := tr.CompleteInstruction("i1")

	assert.Equal(t, 51*time.Millisecond, d)

	got, ok := tr.Trace("i1")
	require.True(t, ok)
	want := map[model.Phase]time.Time{
		model.PhaseIssue:     testutil.Epoch,
		model.PhaseSchedule:  testutil.Epoch.Add(1 * time.Millisecond),
		model.PhaseExecute:   testutil.Epoch.Add(2 * time.Millisecond),
		model.PhaseRespond:   testutil.Epoch.Add(50 * time.Millisecond),
		model.PhaseWriteBack: testutil.Epoch.Add(51 * time.Millisecond),
	}
	if diff := cmp.Diff(want, got.Timestamps); diff != "" {
		t.Fatalf("timestamps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, model.StatusCommitted, got.Status)
	assert.Equal(t, "c1", got.CorrelationID)
	assert.JSONEq(t, `{"ok":true}`, string(got.NetworkResult))
}

func TestTrackerFailedAfterExecute(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)

	tr.StartInstruction("i1", "task.create", "c1", nil)
	tr.MarkPhase("i1", model.PhaseSchedule)
	clk.At(3 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseExecute)
	clk.At(500 * time.Millisecond)
	d := tr.FailInstruction("i1", errors.New("connection refused"))

	got, ok := tr.Trace("i1")
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "connection refused", got.Error)
	// Measured to the last recorded phase, not to the failure time.
	assert.Equal(t, 3*time.Millisecond, d)
	_, hasRes := got.Timestamps[model.PhaseRespond]
	assert.False(t, hasRes)
}

func TestTrackerDurationZeroWithOnlyIssue(t *testing.T) {
	tr := newTestTracker(testutil.NewEpochClock(), 0)
	tr.StartInstruction("i1", "x", "c1", nil)

	got, ok := tr.Trace("i1")
	require.True(t, ok)
	assert.Zero(t, got.Duration)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestTrackerRejectsInvalidTransitions(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)
	tr.StartInstruction("i1", "x", "c1", nil)

	// FAILED is not reachable from PENDING.
	tr.FailInstruction("i1", errors.New("boom"))
	got, _ := tr.Trace("i1")
	assert.Equal(t, model.StatusPending, got.Status)

	// Skipping SCH is rejected.
	tr.MarkPhase("i1", model.PhaseExecute)
	got, _ = tr.Trace("i1")
	assert.Equal(t, model.StatusPending, got.Status)
	assert.NotContains(t, got.Timestamps, model.PhaseExecute)

	// WB before RES is rejected.
	tr.MarkPhase("i1", model.PhaseSchedule)
	tr.MarkPhase("i1", model.PhaseWriteBack)
	got, _ = tr.Trace("i1")
	assert.NotContains(t, got.Timestamps, model.PhaseWriteBack)

	// COMMITTED requires RESPONDED.
	tr.CompleteInstruction("i1")
	got, _ = tr.Trace("i1")
	assert.Equal(t, model.StatusIssued, got.Status)
}

func TestTrackerTimestampsNeverDecrease(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)

	clk.At(100 * time.Millisecond)
	tr.StartInstruction("i1", "x", "c1", nil)
	// Clock skew backwards.
	clk.At(40 * time.Millisecond)
	tr.MarkPhase("i1", model.PhaseSchedule)
	tr.MarkPhase("i1", model.PhaseExecute)

	got, _ := tr.Trace("i1")
	prev := time.Time{}
	for _, p := range model.Phases {
		ts, ok := got.Timestamps[p]
		if !ok {
			continue
		}
		assert.False(t, ts.Before(prev), "phase %s went backwards", p)
		prev = ts
	}
}

func TestTrackerAllTracesNewestFirst(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)

	tr.StartInstruction("a", "x", "ca", nil)
	clk.Advance(time.Second)
	tr.StartInstruction("b", "x", "cb", nil)
	clk.Advance(time.Second)
	tr.StartInstruction("c", "x", "cc", nil)

	all := tr.AllTraces()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].InstructionID, all[1].InstructionID, all[2].InstructionID})

	tr.ClearTraces()
	assert.Empty(t, tr.AllTraces())
	assert.Equal(t, 0, tr.Len())

	// Updates for cleared instructions are ignored.
	tr.MarkPhase("a", model.PhaseSchedule)
	_, ok := tr.Trace("a")
	assert.False(t, ok)
}

func TestTrackerMaxTracesEvictsOldest(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 2)

	for _, id := range []string{"a", "b", "c"} {
		tr.StartInstruction(id, "x", "c-"+id, nil)
		clk.Advance(time.Millisecond)
	}

	assert.Equal(t, 2, tr.Len())
	_, ok := tr.Trace("a")
	assert.False(t, ok)
	_, ok = tr.Trace("c")
	assert.True(t, ok)
}

func TestTrackerTraceReturnsCopy(t *testing.T) {
	tr := newTestTracker(testutil.NewEpochClock(), 0)
	tr.StartInstruction("i1", "x", "c1", nil)

	got, _ := tr.Trace("i1")
	got.Timestamps[model.PhaseWriteBack] = time.Now()
	got.Status = model.StatusCommitted

	again, _ := tr.Trace("i1")
	assert.NotContains(t, again.Timestamps, model.PhaseWriteBack)
	assert.Equal(t, model.StatusPending, again.Status)
}

func TestTrackerDuplicateStartIgnored(t *testing.T) {
	clk := testutil.NewEpochClock()
	tr := newTestTracker(clk, 0)
	tr.StartInstruction("i1", "first", "c1", nil)
	clk.Advance(time.Second)
	tr.StartInstruction("i1", "second", "c2", nil)

	got, _ := tr.Trace("i1")
	assert.Equal(t, "first", got.Type)
	assert.Equal(t, testutil.Epoch, got.IssuedAt())
}
