// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/transport/httpx"
)

const (
	DefaultPollPath     = "/api/events"
	defaultPollInterval = 2 * time.Second
	defaultPollLimit    = 100
	maxPollBody         = 8 << 20
)

// PollOptions configures a PollSource.
type PollOptions struct {
	Options

	Interval time.Duration
	Limit    int
}

// PollSource fetches events newer than a cursor at a fixed interval.
type PollSource struct {
	pub      publisher
	url      string
	client   *http.Client
	interval time.Duration
	limit    int

	mu     sync.Mutex
	cursor string
}

var _ Source = (*PollSource)(nil)

// NewPollSource creates a poll source.
func NewPollSource(opts PollOptions) (*PollSource, error) {
	pub, err := newPublisher(model.TransportPoll, opts.Options)
	if err != nil {
		return nil, err
	}
	path := opts.Path
	if path == "" {
		path = DefaultPollPath
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpx.NewClient(0)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPollLimit
	}
	return &PollSource{
		pub:      pub,
		url:      joinURL(opts.BaseURL, path),
		client:   client,
		interval: interval,
		limit:    limit,
	}, nil
}

func (s *PollSource) Kind() model.TransportKind { return model.TransportPoll }

// Cursor returns the id of the last event received.
func (s *PollSource) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Run polls immediately and then every interval until ctx ends.
func (s *PollSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.PushReconnectsTotal.WithLabelValues(string(model.TransportPoll)).Inc()
			s.pub.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "push.poll_failed").
				Msg("event poll failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches and publishes one batch, returning how many events were
// published. The cursor only moves past published events, so the rest of a
// batch cut short by a drop is fetched again on the next poll. The batch is
// either a bare array or wrapped in a {"data": [...]} envelope.
func (s *PollSource) Poll(ctx context.Context) (int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(s.limit))
	if c := s.Cursor(); c != "" {
		q.Set("after", c)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("poll events: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return 0, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("poll events: unexpected status %d", resp.StatusCode)
	}

	items, err := decodeBatch(body)
	if err != nil {
		return 0, err
	}
	for i, raw := range items {
		id := batchEventID(raw)
		if err := s.pub.handle(ctx, "", "", raw); err != nil {
			return i, err
		}
		if id != "" {
			s.mu.Lock()
			s.cursor = id
			s.mu.Unlock()
		}
	}
	return len(items), nil
}

func decodeBatch(body []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return env.Data, nil
}

func batchEventID(raw json.RawMessage) string {
	var head struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.EventID
}
