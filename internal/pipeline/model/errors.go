// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure before any response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError means the backend answered, but with a failure.
type BackendError struct {
	StatusCode int
	ErrorType  string
	Code       string
	Message    string
	RequestID  string
	Details    json.RawMessage
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.ErrorType != "" {
		return fmt.Sprintf("backend error (%d %s): %s", e.StatusCode, e.ErrorType, msg)
	}
	return fmt.Sprintf("backend error (%d): %s", e.StatusCode, msg)
}

// MalformedEventError reports a push frame that could not be normalized. The
// frame is still applied, just without provenance.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is or wraps a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsBackendError reports whether err is or wraps a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsNetworkError(err):
		return "network"
	case IsBackendError(err):
		return "backend"
	default:
		return "local"
	}
}
