// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package push receives backend domain events over SSE or polling and
// publishes them, normalised, on the inbound bus topic.
package push

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/ManuGH/cutiesync/internal/correlation"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
)

// DomainEvent is the envelope the backend broadcasts for every change.
type DomainEvent struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	Version          int             `json:"version"`
	AggregateType    string          `json:"aggregate_type"`
	AggregateID      string          `json:"aggregate_id"`
	AggregateVersion *int64          `json:"aggregate_version,omitempty"`
	CorrelationID    *string         `json:"correlation_id,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	Payload          json.RawMessage `json:"payload"`
}

// Decode normalises one frame. The event is always usable, even when a
// *model.MalformedEventError comes back with it. A valid correlation id is
// kept when only event_id or event_type is missing; frames that cannot be
// read as an envelope carry none. frameType and frameID are the
// transport-level type and id, used when the envelope lacks them.
//
// The payload of the returned event is the complete envelope, so consumers
// keep aggregate identity and version.
func Decode(kind model.TransportKind, frameType, frameID string, data []byte, now time.Time) (model.InboundEvent, error) {
	ev := model.InboundEvent{
		TransportKind: kind,
		EventID:       frameID,
		EventType:     frameType,
		Timestamp:     now,
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ev, &model.MalformedEventError{Reason: "empty data"}
	}
	if !json.Valid(data) {
		return ev, &model.MalformedEventError{Reason: "data is not JSON"}
	}
	ev.Payload = json.RawMessage(data)

	var de DomainEvent
	if err := json.Unmarshal(data, &de); err != nil {
		return ev, &model.MalformedEventError{Reason: "not a domain event", Err: err}
	}
	if de.EventID != "" {
		ev.EventID = de.EventID
	}
	if de.EventType != "" {
		ev.EventType = de.EventType
	}
	if !de.OccurredAt.IsZero() {
		ev.Timestamp = de.OccurredAt
	}

	if de.CorrelationID != nil && *de.CorrelationID != "" {
		cid, err := correlation.Normalize(*de.CorrelationID)
		if err != nil {
			return ev, &model.MalformedEventError{Reason: "invalid correlation_id", Err: err}
		}
		ev.CorrelationID = cid
	}

	switch {
	case ev.EventID == "":
		return ev, &model.MalformedEventError{Reason: "missing event_id"}
	case ev.EventType == "":
		return ev, &model.MalformedEventError{Reason: "missing event_type"}
	}
	return ev, nil
}
