// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusIssued))
	assert.True(t, CanTransition(StatusIssued, StatusExecuting))
	assert.True(t, CanTransition(StatusExecuting, StatusResponded))
	assert.True(t, CanTransition(StatusResponded, StatusCommitted))
	assert.True(t, CanTransition(StatusExecuting, StatusFailed))
	assert.True(t, CanTransition(StatusResponded, StatusFailed))

	assert.False(t, CanTransition(StatusPending, StatusFailed))
	assert.False(t, CanTransition(StatusIssued, StatusFailed))
	assert.False(t, CanTransition(StatusCommitted, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusCommitted))
	assert.False(t, CanTransition(StatusPending, StatusCommitted))
}

func TestPhaseIndexFollowsPipelineOrder(t *testing.T) {
	for i, p := range Phases {
		assert.Equal(t, i, p.Index())
	}
	assert.Equal(t, -1, Phase("XX").Index())
}

func TestTraceLastPhaseAndClone(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := Trace{
		Timestamps: map[Phase]time.Time{
			PhaseIssue:    base,
			PhaseSchedule: base.Add(time.Millisecond),
			PhaseExecute:  base.Add(2 * time.Millisecond),
		},
		NetworkResult: []byte(`{"ok":true}`),
	}
	p, at := tr.LastPhase()
	assert.Equal(t, PhaseExecute, p)
	assert.Equal(t, base.Add(2*time.Millisecond), at)
	assert.Equal(t, base, tr.IssuedAt())

	cp := tr.Clone()
	cp.Timestamps[PhaseRespond] = base
	cp.NetworkResult[2] = 'X'
	_, ok := tr.Timestamps[PhaseRespond]
	assert.False(t, ok, "clone must not share the timestamp map")
	assert.Equal(t, `{"ok":true}`, string(tr.NetworkResult))
}

func TestErrorKinds(t *testing.T) {
	netErr := fmt.Errorf("dispatch: %w", &NetworkError{Op: "POST /api/tasks", Err: context.DeadlineExceeded})
	beErr := &BackendError{StatusCode: 422, ErrorType: "ValidationError", Message: "bad"}

	assert.Equal(t, "network", ErrorKind(netErr))
	assert.Equal(t, "backend", ErrorKind(beErr))
	assert.Equal(t, "local", ErrorKind(errors.New("boom")))
	assert.Equal(t, "none", ErrorKind(nil))

	require.ErrorIs(t, netErr, context.DeadlineExceeded)
	assert.Contains(t, beErr.Error(), "ValidationError")

	malformed := &MalformedEventError{Reason: "invalid json", Err: errors.New("eof")}
	assert.Contains(t, malformed.Error(), "invalid json")
}
