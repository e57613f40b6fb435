// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldInstructionID = "instruction_id"
	FieldRequestID     = "request_id"
	FieldEventID       = "event_id"
	FieldTraceID       = "trace_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldType      = "instruction_type"
	FieldPhase     = "phase"
	FieldTransport = "transport"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Timing fields
	FieldAge      = "age"
	FieldDuration = "duration"
	FieldTTL      = "ttl"
)
