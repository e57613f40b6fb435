// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"

	"github.com/ManuGH/cutiesync/internal/clock"
	"github.com/ManuGH/cutiesync/internal/health"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// newHealthManager registers the readiness checks of the pipeline core:
// backend breaker, sweeper and (for shared stores) store connectivity.
func newHealthManager(version string, core *Core, clk clock.Clock) *health.Manager {
	m := health.NewManager(version, clk)
	m.RegisterChecker(health.NewBreakerChecker("backend", func() string {
		return string(core.Backend.BreakerState())
	}))
	m.RegisterChecker(health.NewCheckFunc("sweeper", func(context.Context) health.CheckResult {
		if !core.Pipeline.Table.Sweeper().Running() {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: "sweeper stopped"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "running"}
	}))
	if p, ok := core.EchoStore.(pinger); ok {
		m.RegisterChecker(health.NewPingChecker("echo_store", p.Ping, 0))
	}
	return m
}
