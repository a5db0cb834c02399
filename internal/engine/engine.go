// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tunebloom/tunebloom/internal/metrics"
	"github.com/tunebloom/tunebloom/internal/spotify"
	"github.com/tunebloom/tunebloom/internal/store"
)

// Engine is the per-session recommendation service. It is constructed once
// per listener session and holds all mutable session state as instance
// fields. The UI surface is four methods: GenerateRecommendations,
// ExcludeTrack, RemoveExclusion and Reset.
type Engine struct {
	config  *Config
	catalog Catalog
	logger  zerolog.Logger

	// Session state
	mu         sync.Mutex
	profile    *TasteProfile
	heard      []Track
	userID     string
	exclusions *exclusionTracker

	// generation guards against a slow stale pipeline run overwriting
	// state committed by a newer run.
	generation atomic.Int64

	// Random source for shuffles and tie jitter
	rng   *rand.Rand
	rngMu sync.Mutex
}

// Catalog is the subset of catalog operations the engine calls. It is
// satisfied by the spotify client implementations and by test doubles.
type Catalog interface {
	GetCurrentUser(ctx context.Context) (*spotify.User, error)
	GetTopTracks(ctx context.Context, timeRange spotify.TimeRange, limit int) ([]spotify.Track, error)
	GetTopArtists(ctx context.Context, timeRange spotify.TimeRange, limit int) ([]spotify.Artist, error)
	GetSavedTracks(ctx context.Context, limit, offset int) ([]spotify.Track, int, error)
	GetRecentlyPlayed(ctx context.Context, limit int) ([]spotify.Track, error)
	GetPlaylists(ctx context.Context, limit int) ([]spotify.Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]spotify.Track, error)
	GetTracks(ctx context.Context, trackIDs []string) ([]spotify.Track, error)
	GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*spotify.AudioFeatures, error)
	GetRecommendations(ctx context.Context, params *spotify.RecommendationParams) ([]spotify.Track, error)
	SearchTracks(ctx context.Context, query string, limit, offset int) ([]spotify.Track, error)
}

// NewEngine creates a recommendation engine for one listener session.
// The exclusion store may be nil; cross-session exclusion memory is then
// limited to the in-memory sets.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, catalog Catalog, st store.ExclusionStore, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = 42
	}

	componentLogger := logger.With().Str("component", "engine").Logger()

	return &Engine{
		config:     cfg,
		catalog:    catalog,
		logger:     componentLogger,
		exclusions: newExclusionTracker(cfg.Exclusions.MaxSetSize, st, componentLogger),
		rng:        rand.New(rand.NewSource(seed)), //nolint:gosec // math/rand is fine for deck shuffling
	}, nil
}

// GenerateRecommendations produces an ordered deck of up to count tracks.
// It is the only read surface the UI calls: it lazily builds the taste
// profile, derives a feedback profile from the session's liked tracks,
// fetches and ranks candidates, and records the served tracks so they are
// not dealt again.
func (e *Engine) GenerateRecommendations(ctx context.Context, count int, opts Options) ([]Track, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	gen := e.generation.Add(1)
	logger := e.logger.With().Int64("generation", gen).Int("count", count).Logger()

	profile, err := e.ensureProfile(ctx, gen, opts)
	if err != nil {
		return nil, fmt.Errorf("build profile: %w", err)
	}

	feedback := e.buildFeedbackProfile(e.hydrateLiked(ctx, opts.LikedTracks))
	shift := vibeOffset(opts.VibeShift)

	candidates := e.fetchCandidates(ctx, profile, feedback, shift)

	deck, err := e.rankAndSelect(ctx, candidates, profile, feedback, count)
	if err != nil {
		return nil, err
	}

	// A stale run must not mutate state committed by a newer run.
	if e.generation.Load() == gen {
		served := make([]string, 0, len(deck))
		for i := range deck {
			served = append(served, deck[i].ID)
		}
		e.exclusions.MergeFromSource(ctx, served, store.ReasonServed)
		metrics.RecommendationsGenerated.Add(float64(len(deck)))
	} else {
		logger.Debug().Msg("stale generation, skipping served-set update")
	}

	logger.Debug().
		Int("candidates", len(candidates)).
		Int("returned", len(deck)).
		Msg("recommendations generated")

	return deck, nil
}

// ExcludeTrack records a swipe: the track joins both the exclusion and
// listened sets and is persisted best-effort with reason "swiped". Called
// on every swipe regardless of like or dislike.
func (e *Engine) ExcludeTrack(ctx context.Context, trackID string) {
	e.exclusions.Exclude(ctx, trackID, store.ReasonSwiped)
}

// RemoveExclusion undoes a swipe: the track leaves both sets. The durable
// remote record is not retracted.
func (e *Engine) RemoveExclusion(ctx context.Context, trackID string) {
	e.exclusions.Unexclude(ctx, trackID)
}

// IsExcluded reports whether a track is currently excluded, subject to the
// fail-open bound.
func (e *Engine) IsExcluded(trackID string) bool {
	return e.exclusions.IsExcluded(trackID)
}

// Reset clears all in-memory session state: the cached profile, both
// identifier sets and the heard-track cache. Persisted stores are not
// touched.
func (e *Engine) Reset() {
	e.generation.Add(1)

	e.mu.Lock()
	e.profile = nil
	e.heard = nil
	e.mu.Unlock()

	e.exclusions.Clear()
	e.logger.Debug().Msg("engine state reset")
}

// ensureProfile returns the cached taste profile, building it on first
// use. A build completing under a stale generation is used for its own
// request but does not overwrite state a newer run has committed.
func (e *Engine) ensureProfile(ctx context.Context, gen int64, opts Options) (*TasteProfile, error) {
	e.mu.Lock()
	if e.profile != nil {
		profile := e.profile
		e.mu.Unlock()
		metrics.ProfileBuilds.WithLabelValues("cached").Inc()
		return profile, nil
	}
	e.mu.Unlock()

	likedIDs := make([]string, 0, len(opts.LikedTracks))
	for i := range opts.LikedTracks {
		likedIDs = append(likedIDs, opts.LikedTracks[i].ID)
	}

	profile, heard, userID, err := e.buildProfile(ctx, likedIDs)
	if err != nil {
		metrics.ProfileBuilds.WithLabelValues("error").Inc()
		return nil, err
	}

	outcome := "ok"
	if !profile.HasSeeds() {
		outcome = "empty"
	}
	metrics.ProfileBuilds.WithLabelValues(outcome).Inc()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil && e.generation.Load() == gen {
		e.profile = profile
		e.heard = heard
		e.userID = userID
	}
	return profile, nil
}

// heardCache returns a snapshot of the heard-track cache.
func (e *Engine) heardCache() []Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heard
}

// shuffle permutes tracks in place using the engine's seeded source.
func (e *Engine) shuffle(tracks []Track) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

// jitter returns a random value in [0, scale) for tie breaking.
func (e *Engine) jitter(scale float64) float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() * scale
}

// randomIndex returns a random index below n.
func (e *Engine) randomIndex(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// vibeOffset maps the caller's refresh counter onto a cyclic target
// perturbation: counter mod 5, scaled by 0.05, so five refreshes sweep
// offsets 0 through 0.2 and then wrap.
func vibeOffset(vibeShift int) float64 {
	step := vibeShift % 5
	if step < 0 {
		step += 5
	}
	return float64(step) * 0.05
}
