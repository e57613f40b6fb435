// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package echo

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
)

var (
	// ErrEmptyCorrelationID is returned when registering or revoking without a key.
	ErrEmptyCorrelationID = errors.New("echo: empty correlation id")
	// ErrClosed is returned by Register once the table has been destroyed.
	ErrClosed = errors.New("echo: table destroyed")
)

// Store holds suppression entries keyed by correlation id.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, entry model.SuppressionEntry) error
	Get(ctx context.Context, correlationID string) (model.SuppressionEntry, bool, error)
	Delete(ctx context.Context, correlationID string) error
	List(ctx context.Context) ([]model.SuppressionEntry, error)
	// DeleteRegisteredBefore removes every entry with RegisteredAt strictly
	// before cutoff and returns how many were removed.
	DeleteRegisteredBefore(ctx context.Context, cutoff time.Time) (int, error)
	Clear(ctx context.Context) error
	Close() error
}
