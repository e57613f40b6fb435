// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Instruction attributes
	InstructionIDKey     = "instruction.id"
	InstructionTypeKey   = "instruction.type"
	InstructionStatusKey = "instruction.status"
	CorrelationIDKey     = "correlation.id"
	RegistrationKey      = "echo.registration"

	// Push attributes
	TransportKey = "push.transport"
	EventIDKey   = "push.event_id"
	EventTypeKey = "push.event_type"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// Span names and phase events.
const (
	SpanDispatch   = "pipeline.dispatch"
	SpanBackend    = "backend.call"
	SpanPush       = "push.receive"
	EventPhase     = "pipeline.phase"
	PhaseAttrKey   = "phase"
	EventRegister  = "echo.register"
	EventRevoke    = "echo.revoke"
	EventWriteBack = "pipeline.write_back"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// InstructionAttributes identifies an instruction on its dispatch span.
func InstructionAttributes(instructionID, correlationID, instructionType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(InstructionIDKey, instructionID),
		attribute.String(CorrelationIDKey, correlationID),
		attribute.String(InstructionTypeKey, instructionType),
	}
}

// PhaseAttributes tags a phase event.
func PhaseAttributes(phase string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(PhaseAttrKey, phase)}
}

// PushAttributes describes an inbound push event. Empty values are omitted.
func PushAttributes(transport, eventID, eventType string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if transport != "" {
		attrs = append(attrs, attribute.String(TransportKey, transport))
	}
	if eventID != "" {
		attrs = append(attrs, attribute.String(EventIDKey, eventID))
	}
	if eventType != "" {
		attrs = append(attrs, attribute.String(EventTypeKey, eventType))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
