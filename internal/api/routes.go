// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/cutiesync/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		TracingService:        s.cfg.TracingService,
		RateLimitPerMinute:    s.cfg.RateLimit,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrTypeMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not allowed here", nil)
	})

	r.Get("/healthz", s.handleHealth)
	if s.deps.Health != nil {
		r.Get("/readyz", s.handleReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/debug", func(r chi.Router) {
		r.Get("/traces", s.handleListTraces)
		r.Delete("/traces", s.handleClearTraces)
		r.Get("/traces/{id}", s.handleGetTrace)
		r.Get("/suppression", s.handleSuppression)
		if s.deps.State != nil {
			r.Get("/state", s.handleState)
		}
	})

	r.Post("/api/dispatch", s.handleDispatch)
	return r
}
