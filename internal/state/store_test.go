// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(eventType, aggregateID string, version int64, payload string) model.Mutation {
	env := map[string]any{
		"event_id":          "e-" + aggregateID,
		"event_type":        eventType,
		"aggregate_type":    "task",
		"aggregate_id":      aggregateID,
		"aggregate_version": version,
		"payload":           json.RawMessage(payload),
	}
	raw, _ := json.Marshal(env)
	return model.Mutation{Source: model.SourceRemote, Type: eventType, EventID: "e-" + aggregateID, Payload: raw}
}

func TestApplyLocalThenRemote(t *testing.T) {
	clk := testutil.NewEpochClock()
	s := New(clk, nil)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, model.Mutation{
		Source:        model.SourceLocal,
		Type:          "task.complete",
		CorrelationID: "cid-1",
		Payload:       json.RawMessage(`{"id":"t-1","completed":true}`),
	}))

	e, ok := s.Get("task:t-1")
	require.True(t, ok)
	assert.Equal(t, model.SourceLocal, e.Source)
	assert.Equal(t, "cid-1", e.CorrelationID)
	assert.Equal(t, uint64(1), e.Revision)
	assert.Equal(t, testutil.Epoch, e.UpdatedAt)

	clk.Advance(time.Second)
	require.NoError(t, s.Apply(ctx, remote("task.updated", "t-1", 5, `{"id":"t-1","title":"renamed"}`)))

	e, ok = s.Get("task:t-1")
	require.True(t, ok)
	assert.Equal(t, model.SourceRemote, e.Source)
	assert.Equal(t, "task.updated", e.Type)
	assert.JSONEq(t, `{"id":"t-1","title":"renamed"}`, string(e.Payload), "remote entries hold the inner payload")
	require.NotNil(t, e.AggregateVersion)
	assert.Equal(t, int64(5), *e.AggregateVersion)
	assert.Equal(t, uint64(2), e.Revision)
	assert.Equal(t, testutil.Epoch.Add(time.Second), e.UpdatedAt)
}

func TestApplySkipsStaleVersions(t *testing.T) {
	s := New(testutil.NewEpochClock(), nil)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, remote("task.updated", "t-2", 3, `{"v":3}`)))
	require.NoError(t, s.Apply(ctx, remote("task.updated", "t-2", 3, `{"v":"dup"}`)))
	require.NoError(t, s.Apply(ctx, remote("task.updated", "t-2", 2, `{"v":2}`)))

	e, _ := s.Get("task:t-2")
	assert.JSONEq(t, `{"v":3}`, string(e.Payload))
	assert.Equal(t, uint64(1), e.Revision)

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Stale)
	assert.Equal(t, 1, snap.Applied[model.SourceRemote])
}

func TestApplyFallbackKeys(t *testing.T) {
	s := New(testutil.NewEpochClock(), nil)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, model.Mutation{Source: model.SourceLocal, Type: "settings.save", Payload: json.RawMessage(`{"theme":"dark"}`)}))
	require.NoError(t, s.Apply(ctx, model.Mutation{Source: model.SourceLocal, Type: "area.create", Payload: json.RawMessage(`{"id":42}`)}))
	require.NoError(t, s.Apply(ctx, model.Mutation{Source: model.SourceRemote, Type: "task.updated", Payload: json.RawMessage(`[1]`)}))
	require.NoError(t, s.Apply(ctx, model.Mutation{Source: model.SourceRemote, Type: "ping"}))

	snap := s.Snapshot()
	keys := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"area:42", "event:ping", "event:task.updated", "instruction:settings.save"}, keys)
	assert.Equal(t, 2, snap.Applied[model.SourceLocal])
	assert.Equal(t, 2, snap.Applied[model.SourceRemote])
}

func TestApplyConcurrent(t *testing.T) {
	s := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Apply(context.Background(), model.Mutation{
				Source:  model.SourceLocal,
				Type:    "task.update",
				Payload: json.RawMessage(`{"id":"t-shared"}`),
			})
		}()
	}
	wg.Wait()

	e, ok := s.Get("task:t-shared")
	require.True(t, ok)
	assert.Equal(t, uint64(50), e.Revision)
	assert.Equal(t, 1, s.Len())
}
