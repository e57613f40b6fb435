// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/transport/backend"
)

// Error types reported in the error envelope.
const (
	ErrTypeValidation       = "ValidationError"
	ErrTypeNotFound         = "NotFound"
	ErrTypeMethodNotAllowed = "MethodNotAllowed"
	ErrTypeUnknownRoute     = "UnknownInstruction"
	ErrTypeBackend          = "BackendError"
	ErrTypeNetwork          = "NetworkError"
	ErrTypeRateLimited      = "RateLimited"
	ErrTypeInternal         = "InternalError"
)

type dataEnvelope struct {
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// backendDetails is what a failed dispatch exposes about the backend answer.
type backendDetails struct {
	Status    int             `json:"status"`
	ErrorType string          `json:"error_type,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the success envelope.
func writeData(w http.ResponseWriter, r *http.Request, code int, v any) {
	writeJSON(w, code, dataEnvelope{
		Data:      v,
		Timestamp: time.Now().UTC(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, errType, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{
		ErrorType: errType,
		Message:   message,
		Details:   details,
		Code:      code,
		Timestamp: time.Now().UTC(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeNotFound writes a 404 Not Found response
func writeNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "NOT_FOUND", message, nil)
}

// writeDispatchError maps a failed dispatch onto an HTTP status. Backend
// failures become 502 with the backend answer in details, transport
// failures 503, instructions without a route 422.
func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var be *model.BackendError
	switch {
	case errors.As(err, &be):
		writeError(w, r, http.StatusBadGateway, ErrTypeBackend, "BACKEND_ERROR", be.Error(), backendDetails{
			Status:    be.StatusCode,
			ErrorType: be.ErrorType,
			Code:      be.Code,
			RequestID: be.RequestID,
			Details:   be.Details,
		})
	case model.IsNetworkError(err):
		writeError(w, r, http.StatusServiceUnavailable, ErrTypeNetwork, "BACKEND_UNREACHABLE", err.Error(), nil)
	case errors.Is(err, backend.ErrNoRoute), errors.Is(err, backend.ErrMissingPathParam):
		writeError(w, r, http.StatusUnprocessableEntity, ErrTypeUnknownRoute, "NO_ROUTE", err.Error(), nil)
	default:
		writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "INTERNAL_ERROR", err.Error(), nil)
	}
}
