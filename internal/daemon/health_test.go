// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"testing"

	"github.com/ManuGH/cutiesync/internal/config"
	"github.com/ManuGH/cutiesync/internal/health"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHealthManagerMemoryStore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	core, err := Bootstrap(context.Background(), testConfig("http://127.0.0.1:1"), Deps{HTTPClient: noKeepAlive()})
	require.NoError(t, err)

	m := newHealthManager("test", core, nil)
	ready := m.Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Len(t, ready.Checks, 2)
	assert.Equal(t, health.StatusHealthy, ready.Checks["backend"].Status)
	assert.Equal(t, health.StatusHealthy, ready.Checks["sweeper"].Status)
	assert.NotContains(t, ready.Checks, "echo_store")

	require.NoError(t, core.Close())
	ready = m.Ready(context.Background())
	assert.False(t, ready.Ready, "a stopped sweeper is not ready")
	assert.Equal(t, health.StatusUnhealthy, ready.Checks["sweeper"].Status)
}

func TestHealthManagerRedisStore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Echo.Store = config.StoreRedis
	cfg.Echo.Redis.Addr = mr.Addr()
	core, err := Bootstrap(context.Background(), cfg, Deps{HTTPClient: noKeepAlive()})
	require.NoError(t, err)
	defer func() { require.NoError(t, core.Close()) }()

	m := newHealthManager("test", core, nil)
	ready := m.Ready(context.Background())
	require.True(t, ready.Ready)
	assert.Equal(t, health.StatusHealthy, ready.Checks["echo_store"].Status)

	mr.SetError("ERR unavailable")
	ready = m.Ready(context.Background())
	assert.False(t, ready.Ready)
	assert.Equal(t, health.StatusUnhealthy, ready.Checks["echo_store"].Status)
	mr.SetError("")
}
