// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the TuneBloom server.
//
// TuneBloom is a swipe-based music discovery service. Each listener
// session holds a recommendation engine that profiles listening history
// from the upstream catalog, fetches seeded candidate batches, and ranks
// them by audio-feature distance. Tracks the listener has already heard
// or swiped are excluded, with cross-session memory persisted to a
// two-tier store (DuckDB plus a Badger cache).
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (env > YAML > defaults)
//  2. Logging: zerolog, JSON or console format
//  3. Exclusion stores: DuckDB (durable) and Badger (local cache)
//  4. Session registry: per-listener engines with idle TTL eviction
//  5. Supervision tree: suture supervisors for storage upkeep and HTTP
//
// Graceful shutdown on SIGINT/SIGTERM drains in-flight requests within
// the configured timeout, then closes both stores.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tunebloom/tunebloom/internal/api"
	"github.com/tunebloom/tunebloom/internal/config"
	"github.com/tunebloom/tunebloom/internal/database"
	"github.com/tunebloom/tunebloom/internal/engine"
	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/spotify"
	"github.com/tunebloom/tunebloom/internal/store"
	"github.com/tunebloom/tunebloom/internal/supervisor"
	"github.com/tunebloom/tunebloom/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("catalog_url", cfg.Catalog.BaseURL).
		Bool("database_enabled", cfg.Database.Enabled).
		Int("port", cfg.Server.Port).
		Msg("Starting TuneBloom")

	// Durable exclusion tier. Disabled deployments run with session-only
	// exclusion memory.
	var remote store.ExclusionStore
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(&cfg.Database)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing database")
			}
		}()
		remote = db
		logging.Info().Str("path", cfg.Database.Path).Msg("Exclusion database initialized")
	} else {
		remote = store.NewNoopStore()
		logging.Info().Msg("Exclusion database disabled")
	}

	// Local cache tier.
	badgerOpts := badger.DefaultOptions(cfg.Cache.Path).WithLogger(nil)
	if cfg.Cache.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local cache")
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing local cache")
		}
	}()

	local := store.NewBadgerStore(badgerDB, cfg.Engine.LocalCacheLimit)
	exclusions := store.NewTieredStore(remote, local)

	registry := api.NewSessionRegistry(cfg.Sessions.TTL, cfg.Sessions.MaxSessions, engineFactory(cfg, exclusions))

	router := api.NewRouter(api.NewHandler(registry), &cfg.Server)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if !cfg.Cache.InMemory {
		tree.AddDataService(services.NewBadgerGCService(badgerDB, 0, 0))
	}
	tree.AddDataService(registry)
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Server listening")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree failed")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Shutdown complete")
}

// engineFactory builds per-session engines sharing the exclusion store:
// each session gets its own catalog client bound to the listener's access
// token, wrapped in a circuit breaker when enabled.
func engineFactory(cfg *config.Config, exclusions store.ExclusionStore) api.EngineFactory {
	return func(accessToken string) (*engine.Engine, spotify.Interface, error) {
		client := spotify.NewClient(
			cfg.Catalog.BaseURL,
			accessToken,
			cfg.Catalog.Timeout,
			cfg.Catalog.RequestsPerSecond,
			cfg.Catalog.Burst,
		)

		var catalog spotify.Interface = client
		if cfg.Catalog.CircuitBreakerEnabled {
			catalog = spotify.NewCircuitBreakerClient(client)
		}

		engineCfg := engine.DefaultConfig()
		engineCfg.Exclusions.MaxSetSize = cfg.Engine.MaxExclusionSetSize
		engineCfg.Exclusions.LocalCacheLimit = cfg.Engine.LocalCacheLimit
		engineCfg.Candidates.BatchPacing = cfg.Engine.BatchPacing
		engineCfg.Seed = cfg.Engine.Seed

		eng, err := engine.NewEngine(engineCfg, catalog, exclusions, logging.Logger())
		if err != nil {
			return nil, nil, err
		}
		return eng, catalog, nil
	}
}
