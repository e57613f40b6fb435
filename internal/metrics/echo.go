// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EchoDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_echo_decisions_total",
		Help: "Event filter decisions by outcome and reason",
	}, []string{"decision", "reason"}) // decision=apply|discard reason=no_correlation|local_echo|foreign

	EchoRegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_echo_registrations_total",
		Help: "Suppression entries written by registration point",
	}, []string{"point"}) // point=commit|execute

	EchoRevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cutiesync_echo_revocations_total",
		Help: "Suppression entries removed because their instruction failed",
	})

	EchoEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cutiesync_echo_evictions_total",
		Help: "Suppression entries evicted by the expiry sweeper",
	})

	EchoTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cutiesync_echo_table_size",
		Help: "Suppression entries after the last sweep",
	})

	EchoStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_echo_store_errors_total",
		Help: "Suppression store operations that failed",
	}, []string{"op"})
)

// IncEchoDecision records one filter decision.
func IncEchoDecision(decision, reason string) {
	EchoDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// IncEchoStoreError records a failed store operation.
func IncEchoStoreError(op string) {
	EchoStoreErrorsTotal.WithLabelValues(op).Inc()
}
