// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCID     = "3f2a4c1e-5b6d-4e7f-8a9b-0c1d2e3f4a5b"
	taskEvent   = `{"event_id":"e-1","event_type":"task.completed","version":1,"aggregate_type":"task","aggregate_id":"t-1","aggregate_version":4,"correlation_id":"` + testCID + `","occurred_at":"2025-03-01T10:00:00Z","payload":{"id":"t-1"}}`
	remoteEvent = `{"event_id":"e-2","event_type":"task.updated","version":1,"aggregate_type":"task","aggregate_id":"t-2","correlation_id":null,"occurred_at":"2025-03-01T10:00:01Z","payload":{}}`
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeDomainEvent(t *testing.T) {
	ev, err := Decode(model.TransportStream, "task.completed", "e-1", []byte(taskEvent), now)
	require.NoError(t, err)

	assert.Equal(t, model.TransportStream, ev.TransportKind)
	assert.Equal(t, testCID, ev.CorrelationID)
	assert.Equal(t, "e-1", ev.EventID)
	assert.Equal(t, "task.completed", ev.EventType)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp.UTC())
	assert.JSONEq(t, taskEvent, string(ev.Payload), "payload keeps the whole envelope")
}

func TestDecodeNullCorrelationID(t *testing.T) {
	ev, err := Decode(model.TransportPoll, "", "", []byte(remoteEvent), now)
	require.NoError(t, err)
	assert.Empty(t, ev.CorrelationID)
	assert.Equal(t, "e-2", ev.EventID)
	assert.Equal(t, "task.updated", ev.EventType)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name      string
		frameType string
		frameID   string
		data      string
		wantType  string
		wantID    string
		wantCID   string
		payload   bool
	}{
		{name: "empty", frameType: "task.updated", frameID: "f-1", data: "  ", wantType: "task.updated", wantID: "f-1"},
		{name: "not json", frameType: "task.updated", data: "hello", wantType: "task.updated"},
		{name: "json array", data: `[1,2]`, payload: true},
		{name: "missing event id", data: `{"event_type":"task.updated","correlation_id":"` + testCID + `"}`, wantType: "task.updated", wantCID: testCID, payload: true},
		{name: "missing type", frameID: "f-9", data: `{"event_id":"e-9"}`, wantID: "e-9", payload: true},
		{name: "bad correlation id", data: `{"event_id":"e-3","event_type":"task.updated","correlation_id":"not a uuid!"}`, wantType: "task.updated", wantID: "e-3", payload: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(model.TransportStream, tt.frameType, tt.frameID, []byte(tt.data), now)

			var me *model.MalformedEventError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.wantCID, ev.CorrelationID)
			assert.Equal(t, tt.wantType, ev.EventType)
			assert.Equal(t, tt.wantID, ev.EventID)
			assert.Equal(t, tt.payload, ev.Payload != nil)
			assert.Equal(t, now, ev.Timestamp)
		})
	}
}

func TestDecodeKeepsCorrelationWithoutEventID(t *testing.T) {
	data := `{"event_type":"task.completed","aggregate_type":"task","aggregate_id":"t-1","correlation_id":"  ` + testCID + ` "}`

	ev, err := Decode(model.TransportPoll, "", "", []byte(data), now)

	var me *model.MalformedEventError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "missing event_id", me.Reason)
	assert.Equal(t, testCID, ev.CorrelationID, "a correlated echo stays suppressible")
	assert.Equal(t, "task.completed", ev.EventType)
}
