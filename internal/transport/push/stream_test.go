// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/correlation"
	"github.com/ManuGH/cutiesync/internal/pipeline/bus"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(w http.ResponseWriter, eventType, id, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", eventType, id, data)
	w.(http.Flusher).Flush()
}

func receive(t *testing.T, sub bus.Subscriber) model.InboundEvent {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.InboundEvent{}
	}
}

func TestStreamSourceReconnectsWithLastEventID(t *testing.T) {
	var connects atomic.Int32
	resumeFrom := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")

		switch connects.Add(1) {
		case 1:
			writeFrame(w, "task.completed", "e-1", taskEvent)
			_, _ = fmt.Fprint(w, ": ping\n\n")
			writeFrame(w, "task.updated", "e-bad", "not json")
			// Returning ends the stream and forces a reconnect.
		default:
			resumeFrom <- r.Header.Get(correlation.HeaderLastEventID)
			writeFrame(w, "task.updated", "e-2", remoteEvent)
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, bus.TopicInbound)
	require.NoError(t, err)

	src, err := NewStreamSource(StreamOptions{
		Options:      Options{BaseURL: srv.URL + "/", Bus: b},
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	first := receive(t, sub)
	assert.Equal(t, testCID, first.CorrelationID)
	assert.Equal(t, "e-1", first.EventID)
	assert.Equal(t, model.TransportStream, first.TransportKind)

	malformed := receive(t, sub)
	assert.Empty(t, malformed.CorrelationID)
	assert.Equal(t, "e-bad", malformed.EventID)
	assert.Equal(t, "task.updated", malformed.EventType)

	select {
	case id := <-resumeFrom:
		assert.Equal(t, "e-bad", id)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not reconnect")
	}

	third := receive(t, sub)
	assert.Equal(t, "e-2", third.EventID)
	assert.Empty(t, third.CorrelationID)
	assert.Equal(t, "e-2", src.LastEventID())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamSourceResumesFromLastPublishedOnDrop(t *testing.T) {
	ids := []string{"e-1", "e-2", "e-3"}
	var (
		mu      sync.Mutex
		resumes []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resume := r.Header.Get(correlation.HeaderLastEventID)
		mu.Lock()
		resumes = append(resumes, resume)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, id := range ids[slices.Index(ids, resume)+1:] {
			writeFrame(w, "task.updated", id, sequencedEvent(id))
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	b := bus.NewMemoryBusWithBuffer(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.Subscribe(ctx, bus.TopicInbound)
	require.NoError(t, err)

	src, err := NewStreamSource(StreamOptions{
		Options:      Options{BaseURL: srv.URL, Bus: b, PublishTimeout: 20 * time.Millisecond},
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(resumes, "e-1")
	}, 5*time.Second, 5*time.Millisecond, "the session did not end on the dropped frame")
	assert.Equal(t, "e-1", src.LastEventID())

	for _, want := range ids {
		assert.Equal(t, want, receive(t, sub).EventID)
	}
	require.Eventually(t, func() bool { return src.LastEventID() == "e-3" }, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Empty(t, resumes[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamSourceRetriesOnBadStatus(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		connects.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := NewStreamSource(StreamOptions{
		Options:      Options{BaseURL: srv.URL, Bus: bus.NewMemoryBus()},
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.Eventually(t, func() bool { return connects.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestNewStreamSourceRequiresBus(t *testing.T) {
	_, err := NewStreamSource(StreamOptions{Options: Options{BaseURL: "http://localhost"}})
	assert.ErrorIs(t, err, ErrNilBus)
}
