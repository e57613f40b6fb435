// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_dispatch_total",
		Help: "Dispatched instructions by type and outcome",
	}, []string{"type", "outcome"}) // outcome=committed|failed

	DispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_dispatch_failures_total",
		Help: "Failed instructions by type and error kind",
	}, []string{"type", "kind"}) // kind=network|backend|local

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cutiesync_dispatch_duration_seconds",
		Help:    "Instruction duration from IF to the last recorded phase",
		Buckets: prometheus.ExponentialBuckets(0.005, 2.0, 12),
	}, []string{"type", "outcome"})

	DispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cutiesync_dispatch_in_flight",
		Help: "Instructions currently between IF and a terminal status",
	})

	DispatchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_dispatch_retries_total",
		Help: "Retry attempts performed by the retry decorator",
	}, []string{"type"})

	TrackerTraces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cutiesync_tracker_traces",
		Help: "Traces currently held by the phase tracker",
	})
)

// RecordDispatch records the terminal outcome of one instruction.
func RecordDispatch(instructionType, outcome, kind string, d time.Duration) {
	if instructionType == "" {
		instructionType = "unknown"
	}
	DispatchTotal.WithLabelValues(instructionType, outcome).Inc()
	DispatchDuration.WithLabelValues(instructionType, outcome).Observe(d.Seconds())
	if outcome == "failed" {
		DispatchFailuresTotal.WithLabelValues(instructionType, kind).Inc()
	}
}
