// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingHolder is returned when an app is created without configuration.
	ErrMissingHolder = errors.New("config holder is required")

	// ErrUnknownTransport is returned for a push transport other than stream, poll or none.
	ErrUnknownTransport = errors.New("unknown push transport")

	// ErrUnknownStore is returned for an echo store other than memory or redis.
	ErrUnknownStore = errors.New("unknown echo store")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("app already running")
)
