// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides layered configuration for the TuneBloom service.
//
// Configuration is loaded with Koanf v2 from three layers with clear
// precedence: environment variables > YAML config file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Sessions SessionsConfig `koanf:"sessions"`
	Engine   EngineConfig   `koanf:"engine"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the listen port. Default: 8780
	Port int `koanf:"port"`

	// Timeout is the per-request read/write timeout. Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed CORS origins. Default: ["*"]
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the allowed requests per client per window. Default: 120
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window. Default: 1m
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// CatalogConfig holds settings for the upstream music catalog API.
type CatalogConfig struct {
	// BaseURL is the catalog API base URL.
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-call HTTP timeout. Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond caps outbound request rate. Default: 10
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the rate limiter burst size. Default: 5
	Burst int `koanf:"burst"`

	// CircuitBreakerEnabled wraps the client in a circuit breaker. Default: true
	CircuitBreakerEnabled bool `koanf:"circuit_breaker_enabled"`
}

// DatabaseConfig holds settings for the DuckDB-backed exclusion store.
type DatabaseConfig struct {
	// Enabled controls whether the remote exclusion tier is used at all.
	// When false a no-op store is substituted and the service works
	// without cross-session memory. Default: true
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB database file path. Default: /data/tunebloom.duckdb
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage. Default: 512MB
	MaxMemory string `koanf:"max_memory"`
}

// CacheConfig holds settings for the Badger-backed local exclusion cache.
type CacheConfig struct {
	// Path is the Badger directory. Default: /data/cache
	Path string `koanf:"path"`

	// InMemory runs Badger without disk persistence (tests, ephemeral
	// deployments). Default: false
	InMemory bool `koanf:"in_memory"`
}

// SessionsConfig holds engine session registry settings.
type SessionsConfig struct {
	// TTL is how long an idle session's engine state is retained. Default: 2h
	TTL time.Duration `koanf:"ttl"`

	// MaxSessions bounds concurrently held sessions. Default: 1000
	MaxSessions int `koanf:"max_sessions"`
}

// EngineConfig holds recommendation engine tunables surfaced in the app
// config. These map onto the engine package's own config.
type EngineConfig struct {
	// MaxExclusionSetSize is the fail-open bound on exclusion membership
	// checks. Default: 4000
	MaxExclusionSetSize int `koanf:"max_exclusion_set_size"`

	// LocalCacheLimit bounds the locally cached exclusion list. Default: 800
	LocalCacheLimit int `koanf:"local_cache_limit"`

	// BatchPacing is the delay between seeded candidate batches. Default: 100ms
	BatchPacing time.Duration `koanf:"batch_pacing"`

	// Seed seeds the engine's shuffle RNG; zero means a fixed default.
	Seed int64 `koanf:"seed"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the minimum log level. Default: info
	Level string `koanf:"level"`

	// Format is json or console. Default: json
	Format string `koanf:"format"`

	// Caller includes caller info in logs. Default: false
	Caller bool `koanf:"caller"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must not be empty")
	}
	if c.Catalog.RequestsPerSecond <= 0 {
		return fmt.Errorf("catalog.requests_per_second must be positive, got %f", c.Catalog.RequestsPerSecond)
	}
	if c.Catalog.Burst < 1 {
		return fmt.Errorf("catalog.burst must be positive, got %d", c.Catalog.Burst)
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty when database.enabled is true")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive, got %v", c.Sessions.TTL)
	}
	if c.Sessions.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be positive, got %d", c.Sessions.MaxSessions)
	}
	if c.Engine.MaxExclusionSetSize < 1 {
		return fmt.Errorf("engine.max_exclusion_set_size must be positive, got %d", c.Engine.MaxExclusionSetSize)
	}
	if c.Engine.LocalCacheLimit < 1 {
		return fmt.Errorf("engine.local_cache_limit must be positive, got %d", c.Engine.LocalCacheLimit)
	}
	if c.Engine.BatchPacing < 0 {
		return fmt.Errorf("engine.batch_pacing must be non-negative, got %v", c.Engine.BatchPacing)
	}
	return nil
}
