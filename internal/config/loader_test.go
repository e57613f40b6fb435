// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/cutiesync/internal/testutil"
	"github.com/ManuGH/cutiesync/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 10*time.Second, cfg.Echo.TTL)
	assert.Equal(t, 5*time.Second, cfg.Echo.SweepInterval)
	assert.Equal(t, "commit", cfg.Echo.Registration)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestExampleConfigLoads(t *testing.T) {
	path := filepath.Join(testutil.MustRepoRoot(t), "config.example.yaml")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	defaults := Defaults()
	assert.Equal(t, defaults.Echo, cfg.Echo, "the example documents the defaults")
	assert.Equal(t, defaults.API, cfg.API)
	require.Contains(t, cfg.Backend.Routes, "task.update")
	assert.Equal(t, RouteConfig{Method: "PATCH", Path: "/api/tasks/{id}"}, cfg.Backend.Routes["task.update"])
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", `
logLevel: debug
backend:
  baseURL: https://cutie.example.com
  routes:
    task.complete:
      method: POST
      path: /api/tasks/{id}/complete
echo:
  ttl: 30s
  sweepInterval: 10s
  registration: execute
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://cutie.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, RouteConfig{Method: "POST", Path: "/api/tasks/{id}/complete"}, cfg.Backend.Routes["task.complete"])
	assert.Equal(t, 30*time.Second, cfg.Echo.TTL)
	assert.Equal(t, 10*time.Second, cfg.Echo.SweepInterval)
	assert.Equal(t, "execute", cfg.Echo.Registration)
	// Untouched keys keep their defaults.
	assert.Equal(t, Defaults().Backend.Timeout, cfg.Backend.Timeout)
	assert.Equal(t, Defaults().Push, cfg.Push)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "cutiesync.yml", "echo:\n  ttl: 30s\n")
	t.Setenv("CUTIESYNC_ECHO_TTL", "45s")
	t.Setenv("CUTIESYNC_ECHO_STORE", "redis")
	t.Setenv("CUTIESYNC_REDIS_ADDR", "redis:6379")
	t.Setenv("CUTIESYNC_RETRY_ATTEMPTS", "3")
	t.Setenv("CUTIESYNC_BACKEND_RATE_LIMIT", "2.5")
	t.Setenv("CUTIESYNC_TRACING_ENABLED", "yes")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Echo.TTL)
	assert.Equal(t, StoreRedis, cfg.Echo.Store)
	assert.Equal(t, "redis:6379", cfg.Echo.Redis.Addr)
	assert.Equal(t, uint(3), cfg.Retry.Attempts)
	assert.InDelta(t, 2.5, cfg.Backend.RateLimit, 0.0001)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("CUTIESYNC_ECHO_TTL", "ten seconds")
	t.Setenv("CUTIESYNC_TRACKER_MAX_TRACES", "lots")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Echo.TTL, cfg.Echo.TTL)
	assert.Equal(t, Defaults().Tracker.MaxTraces, cfg.Tracker.MaxTraces)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", "echo:\n  ttlMillis: 100\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := writeConfig(t, "cutiesync.json", "{}")
	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "cutiesync.yaml", "")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestValidateTTLMustExceedSweepInterval(t *testing.T) {
	cfg := Defaults()
	cfg.Echo.TTL = cfg.Echo.SweepInterval

	err := Validate(cfg)
	require.Error(t, err)
	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors(), 1)
	assert.Equal(t, "Echo.TTL", ve.Errors()[0].Field)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Backend.BaseURL = "ftp://x"
	cfg.Backend.Routes = map[string]RouteConfig{"task.x": {Method: "FETCH", Path: "api"}}
	cfg.Push.Transport = "carrier-pigeon"
	cfg.Echo.Registration = "whenever"
	cfg.Echo.Store = "disk"
	cfg.API.ListenAddr = "nope"

	err := Validate(cfg)
	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)

	fields := map[string]bool{}
	for _, e := range ve.Errors() {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"LogLevel", "Backend.BaseURL", "Backend.Routes.task.x.Method", "Backend.Routes.task.x.Path",
		"Push.Transport", "Echo.Registration", "Echo.Store", "API.ListenAddr",
	} {
		assert.True(t, fields[f], "expected error for %s", f)
	}
}
