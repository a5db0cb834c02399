// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tunebloom/config.yaml",
	"/etc/tunebloom/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the service's environment variables.
const envPrefix = "TUNEBLOOM_"

// defaultConfig returns a Config with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8780,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Catalog: CatalogConfig{
			BaseURL:               "https://api.spotify.com/v1",
			Timeout:               30 * time.Second,
			RequestsPerSecond:     10,
			Burst:                 5,
			CircuitBreakerEnabled: true,
		},
		Database: DatabaseConfig{
			Enabled:   true,
			Path:      "/data/tunebloom.duckdb",
			MaxMemory: "512MB",
		},
		Cache: CacheConfig{
			Path:     "/data/cache",
			InMemory: false,
		},
		Sessions: SessionsConfig{
			TTL:         2 * time.Hour,
			MaxSessions: 1000,
		},
		Engine: EngineConfig{
			MaxExclusionSetSize: 4000,
			LocalCacheLimit:     800,
			BatchPacing:         100 * time.Millisecond,
			Seed:                0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. TUNEBLOOM_* environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// TUNEBLOOM_SERVER_PORT -> server.port, TUNEBLOOM_CATALOG_BASE_URL ->
	// catalog.base_url, and so on.
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// The first underscore after the prefix separates the section:
//
//	TUNEBLOOM_SERVER_PORT            -> server.port
//	TUNEBLOOM_ENGINE_BATCH_PACING    -> engine.batch_pacing
//	TUNEBLOOM_CATALOG_BASE_URL       -> catalog.base_url
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	idx := strings.Index(key, "_")
	if idx < 0 {
		return key
	}
	return key[:idx] + "." + key[idx+1:]
}
