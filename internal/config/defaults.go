// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Backend: BackendConfig{
			BaseURL:          "http://localhost:3000",
			Timeout:          10 * time.Second,
			RateLimit:        20,
			Burst:            10,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Push: PushConfig{
			Transport:      TransportStream,
			StreamPath:     "/api/events/stream",
			PollPath:       "/api/events",
			PollInterval:   2 * time.Second,
			ReconnectMin:   500 * time.Millisecond,
			ReconnectMax:   30 * time.Second,
			PublishTimeout: 2 * time.Second,
			BufferSize:     64,
		},
		Echo: EchoConfig{
			TTL:           10 * time.Second,
			SweepInterval: 5 * time.Second,
			Registration:  "commit",
			Store:         StoreMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "cutiesync:echo:",
			},
		},
		Tracker: TrackerConfig{
			MaxTraces: 1000,
		},
		Retry: RetryConfig{
			Attempts:        1,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		API: APIConfig{
			ListenAddr:      "127.0.0.1:8089",
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
	}
}
