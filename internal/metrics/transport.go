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
	backendRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_backend_request_total",
		Help: "Backend HTTP requests by method, route and status class",
	}, []string{"method", "route", "status_class"})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cutiesync_backend_request_duration_seconds",
		Help:    "Duration of backend HTTP requests",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 10),
	}, []string{"method", "route", "status_class"})

	PushEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_push_events_total",
		Help: "Push events received by transport and shape",
	}, []string{"transport", "shape"}) // shape=ok|malformed

	PushReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_push_reconnects_total",
		Help: "Push channel reconnect attempts by transport",
	}, []string{"transport"})

	StateMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cutiesync_state_mutations_total",
		Help: "Mutations applied to the local state store by source",
	}, []string{"source"})
)

// StatusClass buckets an HTTP status for metric labels.
func StatusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

// RecordBackendRequest records one backend request.
func RecordBackendRequest(method, route string, status int, d time.Duration, err error) {
	class := StatusClass(err, status)
	backendRequestTotal.WithLabelValues(method, route, class).Inc()
	backendRequestDuration.WithLabelValues(method, route, class).Observe(d.Seconds())
}

// IncPushEvent records one normalized push event.
func IncPushEvent(transport string, malformed bool) {
	shape := "ok"
	if malformed {
		shape = "malformed"
	}
	PushEventsTotal.WithLabelValues(transport, shape).Inc()
}
