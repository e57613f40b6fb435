// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import "errors"

var (
	// ErrNoRoute means the instruction type has no configured endpoint and
	// the payload is not an explicit Call.
	ErrNoRoute = errors.New("backend: no route for instruction type")

	// ErrMissingPathParam means a {field} placeholder had no value in the payload.
	ErrMissingPathParam = errors.New("backend: missing path parameter")

	ErrInvalidBaseURL = errors.New("backend: invalid base URL")
)
