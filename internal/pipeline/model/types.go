// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"context"
	"encoding/json"
	"time"
)

// Trace is the diagnostic record of one dispatched instruction.
type Trace struct {
	InstructionID string              `json:"instructionId"`
	CorrelationID string              `json:"correlationId"`
	Type          string              `json:"type"`
	Payload       any                 `json:"payload,omitempty"`
	Status        Status              `json:"status"`
	Timestamps    map[Phase]time.Time `json:"timestamps"`
	NetworkResult json.RawMessage     `json:"networkResult,omitempty"`
	Error         string              `json:"error,omitempty"`
	Duration      time.Duration       `json:"durationNs"`
}

// IssuedAt returns the IF timestamp.
func (t Trace) IssuedAt() time.Time {
	return t.Timestamps[PhaseIssue]
}

// LastPhase returns the latest recorded phase in pipeline order.
func (t Trace) LastPhase() (Phase, time.Time) {
	var last Phase
	var at time.Time
	for _, p := range Phases {
		if ts, ok := t.Timestamps[p]; ok {
			last, at = p, ts
		}
	}
	return last, at
}

// Clone returns a deep copy safe to hand out of a locked structure.
func (t Trace) Clone() Trace {
	out := t
	out.Timestamps = make(map[Phase]time.Time, len(t.Timestamps))
	for p, ts := range t.Timestamps {
		out.Timestamps[p] = ts
	}
	if t.NetworkResult != nil {
		out.NetworkResult = append(json.RawMessage(nil), t.NetworkResult...)
	}
	return out
}

// SuppressionEntry proves that a correlation id was committed locally.
type SuppressionEntry struct {
	CorrelationID   string    `json:"correlationId"`
	RegisteredAt    time.Time `json:"registeredAt"`
	InstructionType string    `json:"instructionType"`
	PayloadSnapshot any       `json:"payloadSnapshot,omitempty"`
}

// Age returns how long ago the entry was registered.
func (e SuppressionEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.RegisteredAt)
}

// InstructionSnapshot is the diagnostic copy of an instruction kept alongside a
// suppression entry.
type InstructionSnapshot struct {
	Type    string
	Payload any
}

// InboundEvent is a push-channel notification normalized by a transport adapter.
type InboundEvent struct {
	TransportKind TransportKind   `json:"transportKind"`
	CorrelationID string          `json:"correlationId,omitempty"`
	EventID       string          `json:"eventId,omitempty"`
	EventType     string          `json:"eventType,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Mutation is what crosses the state-mutation boundary.
type Mutation struct {
	Source        Source
	Type          string
	CorrelationID string
	EventID       string
	Payload       json.RawMessage
}

// ApplyFunc mutates application state. Both the dispatcher's write-back and
// the event filter's apply branch call one.
type ApplyFunc func(ctx context.Context, m Mutation) error
