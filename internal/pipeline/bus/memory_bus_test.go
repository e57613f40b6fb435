// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"bytes"
	"context"
	"testing"
	"time"

	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/ManuGH/cutiesync/internal/metrics"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func msg(cid string) Message {
	return model.InboundEvent{TransportKind: model.TransportStream, CorrelationID: cid}
}

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	s1, err := b.Subscribe(context.Background(), TopicInbound)
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), TopicInbound)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s1.Close(); _ = s2.Close() })

	require.NoError(t, b.Publish(context.Background(), TopicInbound, msg("abc-1")))

	assert.Equal(t, "abc-1", (<-s1.C()).CorrelationID)
	assert.Equal(t, "abc-1", (<-s2.C()).CorrelationID)
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBusWithBuffer(4)
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", msg("x")))
	}

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", msg("blocked"))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))
	require.Greater(t, final, initial, "expected bus drop counter to increase")
}

func TestMemoryBusLogsDropsPeriodically(t *testing.T) {
	var buf bytes.Buffer
	xglog.Configure(xglog.Config{Output: &buf})
	t.Cleanup(func() { xglog.Configure(xglog.Config{}) })

	b := NewMemoryBusWithBuffer(1)
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.NoError(t, b.Publish(context.Background(), "topic", msg("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < dropLogEvery; i++ {
		require.ErrorIs(t, b.Publish(ctx, "topic", msg("dropped")), context.Canceled)
	}

	assert.Contains(t, buf.String(), "memory bus failed to publish")
	assert.Contains(t, buf.String(), `"reason":"canceled"`)
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", msg("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusSubscriptionEndsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, TopicInbound)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers(TopicInbound))

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-sub.C()
		return !open
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, b.Subscribers(TopicInbound))

	// Close after the context already closed it is a no-op.
	require.NoError(t, sub.Close())
}
