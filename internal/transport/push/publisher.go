// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/bus"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/ManuGH/cutiesync/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const defaultPublishTimeout = 2 * time.Second

// Source is a running push channel.
type Source interface {
	Kind() model.TransportKind
	// Run receives until ctx ends. It returns nil on cancellation.
	Run(ctx context.Context) error
}

// Options are shared by every source.
type Options struct {
	BaseURL string
	Path    string

	// HTTPClient must not carry a total timeout for the stream source.
	HTTPClient *http.Client
	Bus        bus.Bus

	// PublishTimeout bounds a publish to a full subscriber. A dropped event
	// stops the source before its resume position moves past it.
	PublishTimeout time.Duration

	Clock  clock.Clock
	Tracer trace.Tracer
	Logger *zerolog.Logger
}

var (
	ErrNilBus = errors.New("push: bus is required")
	// ErrDropped reports an event the inbound bus did not accept in time.
	ErrDropped = errors.New("push: inbound event dropped")
)

type publisher struct {
	kind    model.TransportKind
	bus     bus.Bus
	timeout time.Duration
	clock   clock.Clock
	tracer  trace.Tracer
	logger  zerolog.Logger
}

func newPublisher(kind model.TransportKind, opts Options) (publisher, error) {
	if opts.Bus == nil {
		return publisher{}, ErrNilBus
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("cutiesync.push")
	}
	logger := xglog.WithComponent("push").With().Str(xglog.FieldTransport, string(kind)).Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return publisher{
		kind:    kind,
		bus:     opts.Bus,
		timeout: timeout,
		clock:   clock.OrReal(opts.Clock),
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// handle decodes and publishes one frame. Malformed frames are still
// published. It returns ctx's error on cancellation and ErrDropped when the
// bus did not take the event, in which case the caller must not advance past it.
func (p publisher) handle(ctx context.Context, frameType, frameID string, data []byte) error {
	ev, err := Decode(p.kind, frameType, frameID, data, p.clock.Now())
	metrics.IncPushEvent(string(p.kind), err != nil)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "push.malformed").
			Str(xglog.FieldEventID, ev.EventID).
			Str(xglog.FieldType, ev.EventType).
			Str(xglog.FieldCorrelationID, ev.CorrelationID).
			Msg("malformed push event, applying")
	}

	ctx, span := p.tracer.Start(ctx, telemetry.SpanPush,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(telemetry.PushAttributes(string(p.kind), ev.EventID, ev.EventType)...),
	)
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.bus.Publish(pctx, bus.TopicInbound, ev); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "push.dropped").
			Str(xglog.FieldEventID, ev.EventID).
			Msg("inbound bus full, event will be fetched again")
		return fmt.Errorf("%w: event %q: %w", ErrDropped, ev.EventID, err)
	}
	return nil
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// sleep waits for d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
