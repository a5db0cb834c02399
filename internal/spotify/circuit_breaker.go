// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package spotify

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/metrics"
)

// Ensure CircuitBreakerClient implements Interface
var _ Interface = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps Client with circuit breaker protection.
// Prevents cascading failures when the Spotify API is unavailable or slow,
// which matters here because a single recommendation request fans out into
// many upstream calls.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps an existing client with a circuit breaker.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client *Client) *CircuitBreakerClient {
	cbName := "spotify-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		// Opens when failure rate >= 60% with minimum 10 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening Spotify circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Spotify state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a Spotify API call with circuit breaker protection
func (cbc *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Spotify request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// GetCurrentUser retrieves the listener profile with circuit breaker protection
func (cbc *CircuitBreakerClient) GetCurrentUser(ctx context.Context) (*User, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetCurrentUser(ctx)
	})
	if err != nil {
		return nil, err
	}
	user, ok := result.(*User)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetCurrentUser")
	}
	return user, nil
}

// GetTopTracks retrieves top tracks with circuit breaker protection
func (cbc *CircuitBreakerClient) GetTopTracks(ctx context.Context, timeRange TimeRange, limit int) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetTopTracks(ctx, timeRange, limit)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetTopTracks")
	}
	return tracks, nil
}

// GetTopArtists retrieves top artists with circuit breaker protection
func (cbc *CircuitBreakerClient) GetTopArtists(ctx context.Context, timeRange TimeRange, limit int) ([]Artist, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetTopArtists(ctx, timeRange, limit)
	})
	if err != nil {
		return nil, err
	}
	artists, ok := result.([]Artist)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetTopArtists")
	}
	return artists, nil
}

// savedPage pairs a saved-library page with the library total for transport
// through the untyped circuit breaker result.
type savedPage struct {
	tracks []Track
	total  int
}

// GetSavedTracks retrieves a saved-library page with circuit breaker protection
func (cbc *CircuitBreakerClient) GetSavedTracks(ctx context.Context, limit, offset int) ([]Track, int, error) {
	result, err := cbc.execute(func() (any, error) {
		tracks, total, err := cbc.client.GetSavedTracks(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		return savedPage{tracks: tracks, total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	page, ok := result.(savedPage)
	if !ok {
		return nil, 0, errors.New("circuit breaker: unexpected result type for GetSavedTracks")
	}
	return page.tracks, page.total, nil
}

// GetRecentlyPlayed retrieves playback history with circuit breaker protection
func (cbc *CircuitBreakerClient) GetRecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetRecentlyPlayed(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetRecentlyPlayed")
	}
	return tracks, nil
}

// GetPlaylists retrieves playlists with circuit breaker protection
func (cbc *CircuitBreakerClient) GetPlaylists(ctx context.Context, limit int) ([]Playlist, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetPlaylists(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	playlists, ok := result.([]Playlist)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetPlaylists")
	}
	return playlists, nil
}

// GetPlaylistTracks retrieves playlist tracks with circuit breaker protection
func (cbc *CircuitBreakerClient) GetPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetPlaylistTracks(ctx, playlistID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetPlaylistTracks")
	}
	return tracks, nil
}

// GetTracks retrieves track objects with circuit breaker protection
func (cbc *CircuitBreakerClient) GetTracks(ctx context.Context, trackIDs []string) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetTracks(ctx, trackIDs)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetTracks")
	}
	return tracks, nil
}

// GetAudioFeatures retrieves feature vectors with circuit breaker protection
func (cbc *CircuitBreakerClient) GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*AudioFeatures, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetAudioFeatures(ctx, trackIDs)
	})
	if err != nil {
		return nil, err
	}
	features, ok := result.([]*AudioFeatures)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetAudioFeatures")
	}
	return features, nil
}

// GetRecommendations retrieves seeded recommendations with circuit breaker protection
func (cbc *CircuitBreakerClient) GetRecommendations(ctx context.Context, params *RecommendationParams) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.GetRecommendations(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for GetRecommendations")
	}
	return tracks, nil
}

// SearchTracks searches the catalog with circuit breaker protection
func (cbc *CircuitBreakerClient) SearchTracks(ctx context.Context, query string, limit, offset int) ([]Track, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.SearchTracks(ctx, query, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	tracks, ok := result.([]Track)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for SearchTracks")
	}
	return tracks, nil
}

// SaveTracks adds tracks to the saved library with circuit breaker protection
func (cbc *CircuitBreakerClient) SaveTracks(ctx context.Context, trackIDs []string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.SaveTracks(ctx, trackIDs)
	})
	return err
}

// CreatePlaylist creates a playlist with circuit breaker protection
func (cbc *CircuitBreakerClient) CreatePlaylist(ctx context.Context, userID, name, description string) (*Playlist, error) {
	result, err := cbc.execute(func() (any, error) {
		return cbc.client.CreatePlaylist(ctx, userID, name, description)
	})
	if err != nil {
		return nil, err
	}
	playlist, ok := result.(*Playlist)
	if !ok {
		return nil, errors.New("circuit breaker: unexpected result type for CreatePlaylist")
	}
	return playlist, nil
}

// AddTracksToPlaylist appends playlist tracks with circuit breaker protection
func (cbc *CircuitBreakerClient) AddTracksToPlaylist(ctx context.Context, playlistID string, trackURIs []string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.client.AddTracksToPlaylist(ctx, playlistID, trackURIs)
	})
	return err
}

// State returns the current circuit breaker state
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

// stateToString converts a gobreaker state to its metric label
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// stateToFloat converts a gobreaker state to its gauge value
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
