// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for cutiesync.
package config

import "time"

// AppConfig is the complete runtime configuration. Precedence is
// environment > file > defaults.
type AppConfig struct {
	LogLevel  string          `yaml:"logLevel"`
	Backend   BackendConfig   `yaml:"backend"`
	Push      PushConfig      `yaml:"push"`
	Echo      EchoConfig      `yaml:"echo"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Retry     RetryConfig     `yaml:"retry"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RouteConfig maps an instruction type to a backend endpoint. Path may
// contain {field} placeholders filled from the instruction payload.
type RouteConfig struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

type BackendConfig struct {
	BaseURL   string                 `yaml:"baseURL"`
	Timeout   time.Duration          `yaml:"timeout"`
	RateLimit float64                `yaml:"rateLimit"` // requests per second, 0 disables
	Burst     int                    `yaml:"burst"`
	Routes    map[string]RouteConfig `yaml:"routes"`

	// Consecutive transport failures before the circuit opens.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type PushConfig struct {
	// Transport is stream, poll or none.
	Transport      string        `yaml:"transport"`
	StreamPath     string        `yaml:"streamPath"`
	PollPath       string        `yaml:"pollPath"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	ReconnectMin   time.Duration `yaml:"reconnectMin"`
	ReconnectMax   time.Duration `yaml:"reconnectMax"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	BufferSize     int           `yaml:"bufferSize"`
}

type EchoConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// Registration is commit or execute.
	Registration string `yaml:"registration"`

	// Store is memory or redis.
	Store string      `yaml:"store"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type TrackerConfig struct {
	MaxTraces int `yaml:"maxTraces"`
}

type RetryConfig struct {
	Attempts        uint          `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

type APIConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	RateLimit       int           `yaml:"rateLimit"` // requests per minute per IP, 0 disables
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Push transports.
const (
	TransportStream = "stream"
	TransportPoll   = "poll"
	TransportNone   = "none"
)

// Echo stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)
