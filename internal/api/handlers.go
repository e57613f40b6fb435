// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/cutiesync/internal/health"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/validate"
	"github.com/go-chi/chi/v5"
)

const (
	maxDispatchBody = 1 << 20
	maxTypeLength   = 128
	maxTraceLimit   = 10000
)

type healthResponse struct {
	Status             string                        `json:"status"`
	Uptime             string                        `json:"uptime"`
	Traces             int                           `json:"traces"`
	SuppressionEntries int                           `json:"suppressionEntries"`
	Checks             map[string]health.CheckResult `json:"checks,omitempty"`
}

type tracesResponse struct {
	Total  int           `json:"total"`
	Traces []model.Trace `json:"traces"`
}

type dispatchRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleHealth is the liveness probe and always answers 200. With
// ?verbose=true and a health reporter it also runs the component checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Suppression.Stats(r.Context())
	resp := healthResponse{
		Status:             "ok",
		Uptime:             time.Since(s.startTime).Truncate(time.Second).String(),
		Traces:             len(s.deps.Traces.AllTraces()),
		SuppressionEntries: stats.Size,
	}
	if s.deps.Health != nil && r.URL.Query().Get("verbose") == "true" {
		h := s.deps.Health.Health(r.Context(), true)
		resp.Status = string(h.Status)
		resp.Checks = h.Checks
	}
	writeData(w, r, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.deps.Health.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Str(xglog.FieldEvent, "readiness.failed").
			Str("status", string(resp.Status)).
			Msg("readiness check failed")
	}
	writeData(w, r, code, resp)
}

// handleListTraces returns traces most recent first, optionally filtered by
// ?status= and capped by ?limit=.
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	v := validate.New()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.AddError("limit", "must be an integer", raw)
		} else {
			v.Range("limit", n, 1, maxTraceLimit)
			limit = n
		}
	}
	status := model.Status(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		v.AddError("status", "unknown status", string(status))
	}
	if !v.IsValid() {
		writeValidationError(w, r, v)
		return
	}

	all := s.deps.Traces.AllTraces()
	out := make([]model.Trace, 0, len(all))
	for _, tr := range all {
		if status != "" && tr.Status != status {
			continue
		}
		out = append(out, tr)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeData(w, r, http.StatusOK, tracesResponse{Total: len(all), Traces: out})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tr, ok := s.deps.Traces.Trace(id)
	if !ok {
		writeNotFound(w, r, "no trace for instruction "+id)
		return
	}
	writeData(w, r, http.StatusOK, tr)
}

func (s *Server) handleClearTraces(w http.ResponseWriter, r *http.Request) {
	s.deps.Traces.ClearTraces()
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "traces.cleared").
		Msg("trace history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSuppression(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.deps.Suppression.Stats(r.Context()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.deps.State.Snapshot())
}

// handleDispatch runs one instruction through the pipeline. The trace of a
// failed dispatch is still available under /debug/traces.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDispatchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrTypeValidation, "BODY_TOO_LARGE", "request body too large", nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "INVALID_JSON", "invalid request body: "+err.Error(), nil)
		return
	}

	v := validate.New()
	v.NotEmpty("type", req.Type)
	if len(req.Type) > maxTypeLength {
		v.AddError("type", "too long", len(req.Type))
	}
	if !v.IsValid() {
		writeValidationError(w, r, v)
		return
	}

	var payload any
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload = req.Payload
	}

	res, err := s.deps.Dispatcher.Dispatch(r.Context(), req.Type, payload)
	if err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "dispatch.rejected").
			Str(xglog.FieldType, req.Type).
			Str(xglog.FieldInstructionID, res.InstructionID).
			Str(xglog.FieldCorrelationID, res.CorrelationID).
			Msg("dispatch failed")
		writeDispatchError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, res)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, v *validate.Validator) {
	type fieldError struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	details := make([]fieldError, 0, len(v.Errors()))
	for _, e := range v.Errors() {
		details = append(details, fieldError{Field: e.Field, Message: e.Message})
	}
	writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "VALIDATION_FAILED", v.Err().Error(), details)
}
