// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/correlation"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/pipeline/dispatch"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/resilience"
	"github.com/ManuGH/cutiesync/internal/telemetry"
	"github.com/ManuGH/cutiesync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testCID = "3f2a4c1e-5b6d-4e7f-8a9b-0c1d2e3f4a5b"

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL: srv.URL,
		Routes: map[string]Route{
			"task.complete": {Method: "post", Path: "/api/tasks/{id}/completion"},
			"task.delete":   {Method: "DELETE", Path: "/api/tasks/{id}"},
		},
		HTTPClient: srv.Client(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

type capturedRequest struct {
	method string
	path   string
	header http.Header
	length int64
	body   map[string]any
}

func capture(r *http.Request) capturedRequest {
	c := capturedRequest{
		method: r.Method,
		path:   r.URL.EscapedPath(),
		header: r.Header.Clone(),
		length: r.ContentLength,
	}
	_ = json.NewDecoder(r.Body).Decode(&c.body)
	return c
}

func TestExecuteSendsRoutedRequest(t *testing.T) {
	_, err := telemetry.NewProvider(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	captured := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured <- capture(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"t 1","completed":true},"timestamp":"2025-01-01T00:00:00Z","request_id":"r-1"}`)
	}))
	defer srv.Close()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	c := newTestClient(t, srv, func(o *Options) { o.Tracer = tp.Tracer("test") })

	ctx := xglog.ContextWithRequestID(context.Background(), "req-42")
	out, err := c.Execute(ctx, dispatch.Request{
		CorrelationID: testCID,
		Type:          "task.complete",
		Payload:       map[string]any{"id": "t 1", "note": "done"},
	})
	require.NoError(t, err)

	got := <-captured
	assert.JSONEq(t, `{"id":"t 1","completed":true}`, string(out))
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/tasks/t%201/completion", got.path)
	assert.Equal(t, testCID, got.header.Get(correlation.HeaderCorrelationID))
	assert.Equal(t, "req-42", got.header.Get(correlation.HeaderRequestID))
	assert.NotEmpty(t, got.header.Get("traceparent"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "done", got.body["note"])

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, telemetry.SpanBackend, spans[0].Name())
}

func TestExecuteWithoutBodyForDelete(t *testing.T) {
	captured := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured <- capture(r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	out, err := c.Execute(context.Background(), dispatch.Request{
		CorrelationID: testCID,
		Type:          "task.delete",
		Payload:       json.RawMessage(`{"id":7}`),
	})
	require.NoError(t, err)
	assert.Nil(t, out)

	got := <-captured
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/api/tasks/7", got.path)
	assert.NotEmpty(t, got.header.Get(correlation.HeaderRequestID))
	assert.Equal(t, int64(0), got.length)
}

func TestExecuteExplicitCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/areas/a1", r.URL.Path)
		_, _ = io.WriteString(w, `[1,2,3]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	out, err := c.Execute(context.Background(), dispatch.Request{
		Type:    "area.update",
		Payload: &Call{Method: "patch", Path: "api/areas/a1", Body: map[string]string{"name": "Home"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(out), "bodies without a data member pass through")
}

func TestExecuteBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error_type":"Conflict","message":"task already completed","code":"CONFLICT","details":{"id":"t1"},"request_id":"r-9"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})

	var be *model.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusConflict, be.StatusCode)
	assert.Equal(t, "Conflict", be.ErrorType)
	assert.Equal(t, "CONFLICT", be.Code)
	assert.Equal(t, "task already completed", be.Message)
	assert.Equal(t, "r-9", be.RequestID)
	assert.JSONEq(t, `{"id":"t1"}`, string(be.Details))
	assert.False(t, model.IsNetworkError(err))
}

func TestExecuteBackendErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(correlation.HeaderRequestID, "hdr-1")
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})

	var be *model.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadGateway, be.StatusCode)
	assert.Equal(t, "upstream exploded", be.Message)
	assert.Equal(t, "hdr-1", be.RequestID)
}

func TestExecuteInvalidJSONIsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})
	assert.True(t, model.IsBackendError(err), "got %v", err)
}

func TestExecuteTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := newTestClient(t, srv, nil)
	srv.Close()

	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})
	require.Error(t, err)
	assert.True(t, model.IsNetworkError(err), "got %v", err)
}

func TestExecuteTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv, func(o *Options) {
		o.HTTPClient = &http.Client{Timeout: 50 * time.Millisecond}
	})
	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})
	assert.True(t, model.IsNetworkError(err), "got %v", err)
}

func TestExecuteRouteErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.unknown"})
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.False(t, model.IsNetworkError(err))

	_, err = c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"title": "x"}})
	assert.ErrorIs(t, err, ErrMissingPathParam)

	assert.Zero(t, hits.Load())
}

func TestExecuteOpensCircuitOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clk := testutil.NewEpochClock()
	c := newTestClient(t, srv, func(o *Options) {
		o.BreakerThreshold = 2
		o.BreakerReset = time.Minute
		o.Clock = clk
	})
	req := dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}}

	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), req)
		assert.True(t, model.IsBackendError(err))
	}

	_, err := c.Execute(context.Background(), req)
	assert.True(t, model.IsNetworkError(err), "open circuit surfaces as a network error")
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	clk.Advance(time.Minute)
	_, err = c.Execute(context.Background(), req)
	assert.True(t, model.IsBackendError(err), "probe reaches the backend after reset")
	assert.Equal(t, int32(3), hits.Load())
}

func TestExecuteClientErrorsKeepCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(o *Options) { o.BreakerThreshold = 1 })
	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}})
		assert.True(t, model.IsBackendError(err))
	}
	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}

func TestExecuteRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, srv, func(o *Options) {
		o.RateLimit = 0.001
		o.Burst = 1
	})
	req := dispatch.Request{Type: "task.complete", Payload: map[string]string{"id": "t1"}}
	_, err := c.Execute(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Execute(ctx, req)
	assert.True(t, model.IsNetworkError(err), "got %v", err)
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:3000", "ftp://host"} {
		_, err := New(Options{BaseURL: raw})
		assert.ErrorIs(t, err, ErrInvalidBaseURL, raw)
	}
}
