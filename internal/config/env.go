// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/cutiesync/internal/log"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CUTIESYNC_"

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

// parseStringWithLogger reads an environment variable with custom logger.
func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		case strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password"):
			// For sensitive vars, just log that it was set
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(v); err == nil {
		logger.Debug().
			Str("key", key).
			Int("value", i).
			Str("source", "environment").
			Msg("using environment variable")
		return i
	}
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Int("default", defaultValue).
		Msg("invalid integer in environment variable, using default")
	return defaultValue
}

// ParseDuration reads a duration from environment variable in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		logger.Debug().
			Str("key", key).
			Dur("value", d).
			Str("source", "environment").
			Msg("using environment variable")
		return d
	}
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Dur("default", defaultValue).
		Msg("invalid duration in environment variable, using default")
	return defaultValue
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		logger.Debug().
			Str("key", key).
			Float64("value", f).
			Str("source", "environment").
			Msg("using environment variable")
		return f
	}
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Float64("default", defaultValue).
		Msg("invalid float in environment variable, using default")
	return defaultValue
}

// mergeEnv applies CUTIESYNC_* overrides on top of cfg.
func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.Backend.BaseURL = ParseString(EnvPrefix+"BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout = ParseDuration(EnvPrefix+"BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.RateLimit = ParseFloat(EnvPrefix+"BACKEND_RATE_LIMIT", cfg.Backend.RateLimit)
	cfg.Backend.Burst = ParseInt(EnvPrefix+"BACKEND_BURST", cfg.Backend.Burst)

	cfg.Push.Transport = ParseString(EnvPrefix+"PUSH_TRANSPORT", cfg.Push.Transport)
	cfg.Push.PollInterval = ParseDuration(EnvPrefix+"PUSH_POLL_INTERVAL", cfg.Push.PollInterval)

	cfg.Echo.TTL = ParseDuration(EnvPrefix+"ECHO_TTL", cfg.Echo.TTL)
	cfg.Echo.SweepInterval = ParseDuration(EnvPrefix+"ECHO_SWEEP_INTERVAL", cfg.Echo.SweepInterval)
	cfg.Echo.Registration = ParseString(EnvPrefix+"ECHO_REGISTRATION", cfg.Echo.Registration)
	cfg.Echo.Store = ParseString(EnvPrefix+"ECHO_STORE", cfg.Echo.Store)
	cfg.Echo.Redis.Addr = ParseString(EnvPrefix+"REDIS_ADDR", cfg.Echo.Redis.Addr)
	cfg.Echo.Redis.Password = ParseString(EnvPrefix+"REDIS_PASSWORD", cfg.Echo.Redis.Password)
	cfg.Echo.Redis.DB = ParseInt(EnvPrefix+"REDIS_DB", cfg.Echo.Redis.DB)

	cfg.Tracker.MaxTraces = ParseInt(EnvPrefix+"TRACKER_MAX_TRACES", cfg.Tracker.MaxTraces)

	if n := ParseInt(EnvPrefix+"RETRY_ATTEMPTS", int(cfg.Retry.Attempts)); n >= 0 {
		cfg.Retry.Attempts = uint(n)
	}

	cfg.API.ListenAddr = ParseString(EnvPrefix+"LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt(EnvPrefix+"API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
