// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// transitions is the strict status graph. FAILED is only reachable once the
// network call has started.
var transitions = map[Status][]Status{
	StatusPending:   {StatusIssued},
	StatusIssued:    {StatusExecuting},
	StatusExecuting: {StatusResponded, StatusFailed},
	StatusResponded: {StatusCommitted, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusForPhase returns the status an instruction enters when phase p is
// recorded. WB carries no status of its own: the instruction stays RESPONDED
// until it is committed.
func StatusForPhase(p Phase) (Status, bool) {
	switch p {
	case PhaseIssue:
		return StatusPending, true
	case PhaseSchedule:
		return StatusIssued, true
	case PhaseExecute:
		return StatusExecuting, true
	case PhaseRespond:
		return StatusResponded, true
	}
	return "", false
}
