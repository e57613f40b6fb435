// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package correlation generates and validates the identifiers that tie a
// locally issued instruction to the push notifications it causes.
package correlation

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Header names shared with the backend.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderLastEventID   = "Last-Event-ID"
)

const maxLen = 64

var (
	ErrTooLong      = errors.New("correlation id too long")
	ErrNotASCII     = errors.New("correlation id must be ASCII")
	ErrInvalidChars = errors.New("correlation id has invalid characters")
)

// NewID returns a fresh correlation id. UUIDv7 keeps ids roughly time ordered,
// which makes suppression diagnostics easier to read; v4 is the fallback.
func NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// NewInstructionID returns a fresh local-only instruction id.
func NewInstructionID() string {
	return uuid.NewString()
}

// Normalize validates and normalizes a correlation ID.
// It returns an empty string if the input is empty after trimming.
func Normalize(id string) (string, error) {
	clean := strings.TrimSpace(id)
	if clean == "" {
		return "", nil
	}
	if len(clean) > maxLen {
		return "", ErrTooLong
	}
	for i := 0; i < len(clean); i++ {
		ch := clean[i]
		if ch > 0x7e {
			return "", ErrNotASCII
		}
		if (ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '_' || ch == '.' {
			continue
		}
		return "", ErrInvalidChars
	}
	return clean, nil
}

// NormalizeOrEmpty is Normalize for callers that must never fail: an invalid
// id is reported as absent.
func NormalizeOrEmpty(id string) string {
	clean, err := Normalize(id)
	if err != nil {
		return ""
	}
	return clean
}
