// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"fmt"
	"time"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Exclusions contains exclusion tracking parameters.
	Exclusions ExclusionsConfig `json:"exclusions"`

	// Profile contains taste-profile build parameters.
	Profile ProfileConfig `json:"profile"`

	// Candidates contains candidate fetch parameters.
	Candidates CandidatesConfig `json:"candidates"`

	// Ranking contains ranking and selection parameters.
	Ranking RankingConfig `json:"ranking"`

	// Seed is the random seed for deterministic shuffles and jitter.
	// If zero, a fixed default seed is used.
	Seed int64 `json:"seed"`
}

// ExclusionsConfig contains exclusion tracking parameters.
type ExclusionsConfig struct {
	// MaxSetSize is the fail-open bound: once the exclusion set grows past
	// this size, membership checks return false so the deck never starves.
	// Default: 4000.
	MaxSetSize int `json:"max_set_size"`

	// LocalCacheLimit bounds the local persistence tier to the most recent
	// identifiers. Default: 800.
	LocalCacheLimit int `json:"local_cache_limit"`
}

// ProfileConfig contains taste-profile build parameters.
type ProfileConfig struct {
	// MaxReferenceTracks caps how many reference tracks contribute audio
	// features to the averaged profile. Default: 120.
	MaxReferenceTracks int `json:"max_reference_tracks"`

	// TopTracksLimit is the page size for each top-tracks history window.
	// Default: 50.
	TopTracksLimit int `json:"top_tracks_limit"`

	// TopArtistsLimit is how many top artists seed the profile. Default: 20.
	TopArtistsLimit int `json:"top_artists_limit"`

	// TopGenres is how many genre tags the profile keeps. Default: 5.
	TopGenres int `json:"top_genres"`

	// SeedTracks is how many reference tracks become recommendation seeds.
	// Default: 5.
	SeedTracks int `json:"seed_tracks"`

	// SavedTracksCap bounds the paginated saved-library walk when building
	// the listened set. Default: 200.
	SavedTracksCap int `json:"saved_tracks_cap"`

	// SavedPageSize is the saved-library page size. Default: 50.
	SavedPageSize int `json:"saved_page_size"`

	// RecentlyPlayedLimit is how many recent plays join the listened set.
	// Default: 50.
	RecentlyPlayedLimit int `json:"recently_played_limit"`

	// PlaylistLimit is how many playlists are sampled. Default: 10.
	PlaylistLimit int `json:"playlist_limit"`

	// PlaylistTrackCap bounds tracks sampled per playlist. Default: 50.
	PlaylistTrackCap int `json:"playlist_track_cap"`

	// PlaylistOverallCap bounds the total playlist sample. Default: 200.
	PlaylistOverallCap int `json:"playlist_overall_cap"`
}

// CandidatesConfig contains candidate fetch parameters.
type CandidatesConfig struct {
	// FeatureChunkSize is how many track IDs go into one audio-features
	// request. The catalog accepts up to 100; 50 leaves headroom.
	// Default: 50.
	FeatureChunkSize int `json:"feature_chunk_size"`

	// BatchPacing is the delay between seeded recommendation batches, to
	// respect the catalog's rate budget. Default: 100ms.
	BatchPacing time.Duration `json:"batch_pacing"`

	// BatchLimits are the per-batch result limits for the four seeded
	// batches. Defaults: 30, 30, 25, 25.
	BatchLimits [4]int `json:"batch_limits"`

	// FallbackQueries are the keyword-search queries used when no seeds
	// exist or the liveness fallback needs more candidates.
	FallbackQueries []string `json:"fallback_queries"`

	// FallbackLimit is the per-query result limit for keyword search.
	// Default: 20.
	FallbackLimit int `json:"fallback_limit"`

	// HeardSamples is how many heard-track samples attach to each
	// candidate. Default: 2.
	HeardSamples int `json:"heard_samples"`
}

// RankingConfig contains ranking and selection parameters.
type RankingConfig struct {
	// MinPoolSize triggers the tier-1 fallback: if fewer filtered
	// candidates remain, the unfiltered pool is used. Default: 10.
	MinPoolSize int `json:"min_pool_size"`

	// SentinelDistance is assigned to candidates with no feature vector,
	// placing them last. Default: 999.
	SentinelDistance float64 `json:"sentinel_distance"`

	// TieEpsilon is the score difference below which ties are broken by
	// random jitter. Default: 1e-4.
	TieEpsilon float64 `json:"tie_epsilon"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Exclusions: ExclusionsConfig{
			MaxSetSize:      4000,
			LocalCacheLimit: 800,
		},
		Profile: ProfileConfig{
			MaxReferenceTracks:  120,
			TopTracksLimit:      50,
			TopArtistsLimit:     20,
			TopGenres:           5,
			SeedTracks:          5,
			SavedTracksCap:      200,
			SavedPageSize:       50,
			RecentlyPlayedLimit: 50,
			PlaylistLimit:       10,
			PlaylistTrackCap:    50,
			PlaylistOverallCap:  200,
		},
		Candidates: CandidatesConfig{
			FeatureChunkSize: 50,
			BatchPacing:      100 * time.Millisecond,
			BatchLimits:      [4]int{30, 30, 25, 25},
			FallbackQueries:  []string{"love", "night", "summer", "dream", "dance", "heart"},
			FallbackLimit:    20,
			HeardSamples:     2,
		},
		Ranking: RankingConfig{
			MinPoolSize:      10,
			SentinelDistance: 999,
			TieEpsilon:       1e-4,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Exclusions.MaxSetSize <= 0 {
		return fmt.Errorf("exclusions.max_set_size must be positive, got %d", c.Exclusions.MaxSetSize)
	}
	if c.Exclusions.LocalCacheLimit <= 0 {
		return fmt.Errorf("exclusions.local_cache_limit must be positive, got %d", c.Exclusions.LocalCacheLimit)
	}
	if c.Profile.MaxReferenceTracks <= 0 {
		return fmt.Errorf("profile.max_reference_tracks must be positive, got %d", c.Profile.MaxReferenceTracks)
	}
	if c.Profile.SeedTracks <= 0 || c.Profile.SeedTracks > 5 {
		return fmt.Errorf("profile.seed_tracks must be in [1,5], got %d", c.Profile.SeedTracks)
	}
	if c.Profile.TopGenres <= 0 || c.Profile.TopGenres > 5 {
		return fmt.Errorf("profile.top_genres must be in [1,5], got %d", c.Profile.TopGenres)
	}
	if c.Profile.SavedPageSize <= 0 || c.Profile.SavedPageSize > 50 {
		return fmt.Errorf("profile.saved_page_size must be in [1,50], got %d", c.Profile.SavedPageSize)
	}
	if c.Candidates.FeatureChunkSize <= 0 || c.Candidates.FeatureChunkSize > 100 {
		return fmt.Errorf("candidates.feature_chunk_size must be in [1,100], got %d", c.Candidates.FeatureChunkSize)
	}
	if c.Candidates.BatchPacing < 0 {
		return fmt.Errorf("candidates.batch_pacing must not be negative, got %s", c.Candidates.BatchPacing)
	}
	for i, limit := range c.Candidates.BatchLimits {
		if limit <= 0 || limit > 100 {
			return fmt.Errorf("candidates.batch_limits[%d] must be in [1,100], got %d", i, limit)
		}
	}
	if len(c.Candidates.FallbackQueries) == 0 {
		return fmt.Errorf("candidates.fallback_queries must not be empty")
	}
	if c.Candidates.FallbackLimit <= 0 || c.Candidates.FallbackLimit > 50 {
		return fmt.Errorf("candidates.fallback_limit must be in [1,50], got %d", c.Candidates.FallbackLimit)
	}
	if c.Ranking.MinPoolSize <= 0 {
		return fmt.Errorf("ranking.min_pool_size must be positive, got %d", c.Ranking.MinPoolSize)
	}
	if c.Ranking.SentinelDistance <= 0 {
		return fmt.Errorf("ranking.sentinel_distance must be positive, got %g", c.Ranking.SentinelDistance)
	}
	if c.Ranking.TieEpsilon <= 0 {
		return fmt.Errorf("ranking.tie_epsilon must be positive, got %g", c.Ranking.TieEpsilon)
	}
	return nil
}
