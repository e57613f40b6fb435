// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced clock for TTL and phase-ordering tests.
// Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Epoch is a fixed origin so scenarios can speak in offsets ("t=12000ms").
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewEpochClock returns a clock frozen at Epoch.
func NewEpochClock() *FakeClock {
	return NewFakeClock(Epoch)
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t. Moving backwards is allowed so tests can model skew.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// At sets the clock to Epoch + offset.
func (c *FakeClock) At(offset time.Duration) {
	c.Set(Epoch.Add(offset))
}
