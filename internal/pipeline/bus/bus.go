// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries inbound push events from transport sources to the
// event filter.
package bus

import (
	"context"

	"github.com/ManuGH/cutiesync/internal/pipeline/model"
)

// TopicInbound carries every normalised push event.
const TopicInbound = "events.inbound"

// Message is a normalised push event.
type Message = model.InboundEvent

type Subscriber interface {
	// C returns a read-only message channel, closed by Close.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction between push sources and consumers.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
