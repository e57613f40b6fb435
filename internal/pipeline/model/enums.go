// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Phase is one of the five pipeline checkpoints an instruction passes through.
type Phase string

const (
	PhaseIssue     Phase = "IF"
	PhaseSchedule  Phase = "SCH"
	PhaseExecute   Phase = "EX"
	PhaseRespond   Phase = "RES"
	PhaseWriteBack Phase = "WB"
)

// Phases lists every phase in pipeline order.
var Phases = []Phase{PhaseIssue, PhaseSchedule, PhaseExecute, PhaseRespond, PhaseWriteBack}

// Index returns the position of p in pipeline order, or -1 for unknown phases.
func (p Phase) Index() int {
	for i, q := range Phases {
		if q == p {
			return i
		}
	}
	return -1
}

// Status is the instruction lifecycle visible in traces.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusIssued    Status = "ISSUED"
	StatusExecuting Status = "EXECUTING"
	StatusResponded Status = "RESPONDED"
	StatusCommitted Status = "COMMITTED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusIssued, StatusExecuting, StatusResponded, StatusCommitted, StatusFailed:
		return true
	}
	return false
}

// TransportKind names the push channel an event arrived on. Informational only.
type TransportKind string

const (
	TransportStream TransportKind = "stream"
	TransportSocket TransportKind = "socket"
	TransportPoll   TransportKind = "poll"
)

// Source tells the state store where a mutation came from.
type Source string

const (
	// SourceLocal is the dispatcher's write-back of its own network result.
	SourceLocal Source = "local"

	// SourceRemote is a push event that passed the echo filter.
	SourceRemote Source = "remote"
)
