// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend executes instructions against the Cutie HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	"github.com/ManuGH/cutiesync/internal/correlation"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/dispatch"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/resilience"
	"github.com/ManuGH/cutiesync/internal/telemetry"
	"github.com/ManuGH/cutiesync/internal/transport/httpx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
	breakerName      = "backend"

	// routeExplicit labels metrics for Call payloads, whose paths are unbounded.
	routeExplicit = "explicit"
)

// Options configures the backend client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables
	Burst     int
	Routes    map[string]Route

	BreakerThreshold int
	BreakerReset     time.Duration

	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
	Clock      clock.Clock
	Tracer     trace.Tracer
	Logger     *zerolog.Logger
}

// Client implements dispatch.Executor over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	routes  map[string]Route
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
	logger  zerolog.Logger
}

var _ dispatch.Executor = (*Client)(nil)

// New creates a backend client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = httpx.NewClient(timeout)
	}

	routes := make(map[string]Route, len(opts.Routes))
	for typ, r := range opts.Routes {
		routes[typ] = Route{Method: strings.ToUpper(r.Method), Path: r.Path}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("cutiesync.backend")
	}
	logger := xglog.WithComponent("backend")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		base:    base,
		http:    httpClient,
		routes:  routes,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker(breakerName, opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithClock(clock.OrReal(opts.Clock)),
			resilience.WithFailureFilter(countsAsOutage),
		),
		tracer: tracer,
		logger: logger,
	}, nil
}

// countsAsOutage trips the breaker on transport failures and 5xx answers only.
func countsAsOutage(err error) bool {
	if model.IsNetworkError(err) {
		return true
	}
	var be *model.BackendError
	return errors.As(err, &be) && be.StatusCode >= http.StatusInternalServerError
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// BreakerState reports the backend circuit breaker state.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// HTTPClient returns the underlying client, shared with push sources.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Execute sends req to the backend. Transport failures, including an open
// circuit, are *model.NetworkError; non-2xx responses are *model.BackendError.
func (c *Client) Execute(ctx context.Context, req dispatch.Request) (json.RawMessage, error) {
	call, route, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	err = c.breaker.Execute(func() error {
		var callErr error
		out, callErr = c.do(ctx, req, call, route)
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &model.NetworkError{Op: call.Method + " " + route, Err: err}
	}
	return out, err
}

// resolve turns a dispatch request into a concrete call and a metrics label.
func (c *Client) resolve(req dispatch.Request) (Call, string, error) {
	switch p := req.Payload.(type) {
	case Call:
		return normalizeCall(p), routeExplicit, nil
	case *Call:
		if p != nil {
			return normalizeCall(*p), routeExplicit, nil
		}
	}

	r, ok := c.routes[req.Type]
	if !ok {
		return Call{}, "", fmt.Errorf("%w: %s", ErrNoRoute, req.Type)
	}
	path, err := expandPath(r.Path, req.Payload)
	if err != nil {
		return Call{}, "", fmt.Errorf("route %s: %w", req.Type, err)
	}
	call := Call{Method: r.Method, Path: path}
	if hasBody(r.Method) {
		call.Body = req.Payload
	}
	return call, r.Path, nil
}

func normalizeCall(c Call) Call {
	c.Method = strings.ToUpper(c.Method)
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	return c
}

func (c *Client) do(ctx context.Context, req dispatch.Request, call Call, route string) (json.RawMessage, error) {
	op := call.Method + " " + route
	target := c.resolveURL(call.Path)

	ctx, span := c.tracer.Start(ctx, telemetry.SpanBackend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.HTTPAttributes(call.Method, route, target, 0)...),
		trace.WithAttributes(attribute.String(telemetry.CorrelationIDKey, req.CorrelationID)),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limit wait")
			return nil, &model.NetworkError{Op: op, Err: err}
		}
	}

	body, err := encodeBody(call.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode body")
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestID := xglog.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set(correlation.HeaderCorrelationID, req.CorrelationID)
	}
	httpReq.Header.Set(correlation.HeaderRequestID, requestID)
	telemetry.InjectHTTP(ctx, httpReq.Header)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordBackendRequest(call.Method, route, 0, duration, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "backend.request_failed").
			Str(xglog.FieldCorrelationID, req.CorrelationID).
			Str(xglog.FieldRequestID, requestID).
			Str("route", op).
			Dur(xglog.FieldDuration, duration).
			Msg("backend request failed")
		return nil, &model.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordBackendRequest(call.Method, route, 0, duration, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response")
		return nil, &model.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	metrics.RecordBackendRequest(call.Method, route, resp.StatusCode, duration, nil)
	span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, resp.StatusCode))

	c.logger.Debug().
		Str(xglog.FieldEvent, "backend.response").
		Str(xglog.FieldCorrelationID, req.CorrelationID).
		Str(xglog.FieldRequestID, requestID).
		Str("route", op).
		Int("status", resp.StatusCode).
		Dur(xglog.FieldDuration, duration).
		Msg("backend responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		be := decodeFailure(resp.StatusCode, resp.Header, data)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		span.SetAttributes(telemetry.ErrorAttributes(be, be.ErrorType)...)
		return nil, be
	}

	out, err := decodeSuccess(resp.StatusCode, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid response")
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (c *Client) resolveURL(path string) string {
	if path == "" {
		return c.base.String()
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

func encodeBody(v any) (io.Reader, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(b) == 0 {
			return nil, nil
		}
		return bytes.NewReader(b), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(data), nil
}
