// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/cutiesync/internal/correlation"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/transport/httpx"
	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultStreamPath   = "/api/events/stream"
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
)

// StreamOptions configures a StreamSource.
type StreamOptions struct {
	Options

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// StreamSource consumes the backend SSE endpoint and reconnects with
// exponential backoff, resuming from the last seen event id.
type StreamSource struct {
	pub          publisher
	url          string
	client       *http.Client
	reconnectMin time.Duration
	reconnectMax time.Duration

	mu          sync.Mutex
	lastEventID string
}

var _ Source = (*StreamSource)(nil)

// NewStreamSource creates a stream source.
func NewStreamSource(opts StreamOptions) (*StreamSource, error) {
	pub, err := newPublisher(model.TransportStream, opts.Options)
	if err != nil {
		return nil, err
	}
	path := opts.Path
	if path == "" {
		path = DefaultStreamPath
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpx.NewStreamingClient(0)
	}
	minWait, maxWait := opts.ReconnectMin, opts.ReconnectMax
	if minWait <= 0 {
		minWait = defaultReconnectMin
	}
	if maxWait < minWait {
		maxWait = max(minWait, defaultReconnectMax)
	}
	return &StreamSource{
		pub:          pub,
		url:          joinURL(opts.BaseURL, path),
		client:       client,
		reconnectMin: minWait,
		reconnectMax: maxWait,
	}, nil
}

func (s *StreamSource) Kind() model.TransportKind { return model.TransportStream }

// LastEventID returns the id sent as Last-Event-ID on the next connect.
func (s *StreamSource) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *StreamSource) setLastEventID(id string) {
	s.mu.Lock()
	s.lastEventID = id
	s.mu.Unlock()
}

// Run connects and reconnects until ctx ends.
func (s *StreamSource) Run(ctx context.Context) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.reconnectMin,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         s.reconnectMax,
	}
	b.Reset()

	for {
		received, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			b.Reset()
		}

		wait := b.NextBackOff()
		metrics.PushReconnectsTotal.WithLabelValues(string(model.TransportStream)).Inc()
		s.pub.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "push.reconnect").
			Int("received", received).
			Dur("wait", wait).
			Msg("event stream ended, reconnecting")

		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// session holds one connection and returns the number of frames received.
func (s *StreamSource) session(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.LastEventID(); id != "" {
		req.Header.Set(correlation.HeaderLastEventID, id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connect event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}

	s.pub.logger.Info().
		Str(xglog.FieldEvent, "push.connected").
		Str("url", s.url).
		Str("last_event_id", s.LastEventID()).
		Msg("event stream connected")

	fr := newFrameReader(resp.Body)
	received := 0
	for {
		f, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return received, fmt.Errorf("read event stream: %w", err)
		}
		received++
		// A dropped frame ends the session; the reconnect resumes from the
		// last published id.
		if err := s.pub.handle(ctx, f.Event, f.ID, []byte(f.Data)); err != nil {
			return received, err
		}
		if f.ID != "" {
			s.setLastEventID(f.ID)
		}
	}
}
