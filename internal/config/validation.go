// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/ManuGH/cutiesync/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("LogLevel", strings.ToLower(cfg.LogLevel), validate.LogLevels)

	v.URL("Backend.BaseURL", cfg.Backend.BaseURL, validate.HTTPSchemes)
	v.PositiveDuration("Backend.Timeout", cfg.Backend.Timeout)
	v.FloatRange("Backend.RateLimit", cfg.Backend.RateLimit, 0, 10000)
	if cfg.Backend.RateLimit > 0 {
		v.Range("Backend.Burst", cfg.Backend.Burst, 1, 10000)
	}
	v.Range("Backend.BreakerThreshold", cfg.Backend.BreakerThreshold, 1, 1000)
	v.PositiveDuration("Backend.BreakerReset", cfg.Backend.BreakerReset)
	for typ, route := range cfg.Backend.Routes {
		v.Route("Backend.Routes."+typ, route.Method, route.Path)
	}

	v.OneOf("Push.Transport", cfg.Push.Transport, []string{TransportStream, TransportPoll, TransportNone})
	switch cfg.Push.Transport {
	case TransportStream:
		v.NotEmpty("Push.StreamPath", cfg.Push.StreamPath)
		v.PositiveDuration("Push.ReconnectMin", cfg.Push.ReconnectMin)
		if cfg.Push.ReconnectMax < cfg.Push.ReconnectMin {
			v.AddError("Push.ReconnectMax", "must not be below Push.ReconnectMin", cfg.Push.ReconnectMax)
		}
	case TransportPoll:
		v.NotEmpty("Push.PollPath", cfg.Push.PollPath)
		v.PositiveDuration("Push.PollInterval", cfg.Push.PollInterval)
	}
	if cfg.Push.Transport != TransportNone {
		v.PositiveDuration("Push.PublishTimeout", cfg.Push.PublishTimeout)
		v.Range("Push.BufferSize", cfg.Push.BufferSize, 1, 1<<16)
	}

	// An entry must survive at least one full sweep cycle.
	v.PositiveDuration("Echo.SweepInterval", cfg.Echo.SweepInterval)
	v.DurationAbove("Echo.TTL", cfg.Echo.TTL, cfg.Echo.SweepInterval, "Echo.SweepInterval")
	v.OneOf("Echo.Registration", cfg.Echo.Registration, []string{"commit", "execute"})
	v.OneOf("Echo.Store", cfg.Echo.Store, []string{StoreMemory, StoreRedis})
	if cfg.Echo.Store == StoreRedis {
		v.NotEmpty("Echo.Redis.Addr", cfg.Echo.Redis.Addr)
		v.Range("Echo.Redis.DB", cfg.Echo.Redis.DB, 0, 15)
	}

	v.NonNegative("Tracker.MaxTraces", cfg.Tracker.MaxTraces)

	v.Range("Retry.Attempts", int(cfg.Retry.Attempts), 0, 10)
	if cfg.Retry.Attempts > 1 {
		v.PositiveDuration("Retry.InitialInterval", cfg.Retry.InitialInterval)
		v.PositiveDuration("Retry.MaxInterval", cfg.Retry.MaxInterval)
	}

	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	v.NonNegative("API.RateLimit", cfg.API.RateLimit)
	v.PositiveDuration("API.ShutdownTimeout", cfg.API.ShutdownTimeout)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
