// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHolderReloadAppliesValidConfig(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", "logLevel: info\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, path)
	var got atomic.Value
	h.OnReload(func(old, updated AppConfig) {
		got.Store([2]string{old.LogLevel, updated.LogLevel})
	})

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().LogLevel)
	assert.Equal(t, [2]string{"info", "debug"}, got.Load())
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", "logLevel: info\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("echo:\n  ttl: 1s\n  sweepInterval: 5s\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, initial, h.Get())
}

func TestRestartRequired(t *testing.T) {
	old := Defaults()
	updated := Defaults()
	updated.LogLevel = "debug"
	assert.Empty(t, RestartRequired(old, updated))

	updated.Echo.TTL = time.Minute
	updated.API.RateLimit = 1
	assert.Equal(t, []string{"echo", "api"}, RestartRequired(old, updated))
}

func TestHolderWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := writeConfig(t, "cutiesync.yaml", "logLevel: info\n")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().LogLevel == "warn"
	}, 5*time.Second, 20*time.Millisecond)

	h.Stop()
}

func TestHolderWatcherDisabledWithoutPath(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader(""), "")
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
