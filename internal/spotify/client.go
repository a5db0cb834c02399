// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
client.go - Spotify Web API Client

This file implements a REST API client for the Spotify Web API, scoped to
the endpoints the recommendation engine needs: listening history, saved
library, audio features, seeded recommendations, track search, and
playlist export.

API Reference: https://developer.spotify.com/documentation/web-api
*/

package spotify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tunebloom/tunebloom/internal/metrics"
)

// maxSeedsPerRequest is the catalog's cap on combined recommendation seeds.
const maxSeedsPerRequest = 5

// maxIDsPerFeaturesRequest is the catalog's cap on the bulk audio-features
// endpoint. Callers with more identifiers must chunk.
const maxIDsPerFeaturesRequest = 100

// Interface defines the catalog operations the engine depends on.
// Both Client and CircuitBreakerClient implement this interface.
type Interface interface {
	GetCurrentUser(ctx context.Context) (*User, error)
	GetTopTracks(ctx context.Context, timeRange TimeRange, limit int) ([]Track, error)
	GetTopArtists(ctx context.Context, timeRange TimeRange, limit int) ([]Artist, error)
	GetSavedTracks(ctx context.Context, limit, offset int) ([]Track, int, error)
	GetRecentlyPlayed(ctx context.Context, limit int) ([]Track, error)
	GetPlaylists(ctx context.Context, limit int) ([]Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]Track, error)
	GetTracks(ctx context.Context, trackIDs []string) ([]Track, error)
	GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*AudioFeatures, error)
	GetRecommendations(ctx context.Context, params *RecommendationParams) ([]Track, error)
	SearchTracks(ctx context.Context, query string, limit, offset int) ([]Track, error)
	SaveTracks(ctx context.Context, trackIDs []string) error
	CreatePlaylist(ctx context.Context, userID, name, description string) (*Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackURIs []string) error
}

// Ensure Client implements Interface
var _ Interface = (*Client)(nil)

// Client provides access to the Spotify Web API for a single
// authenticated listener. The access token is obtained out of band; this
// service never performs the OAuth exchange itself.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a new Spotify API client.
//
// Parameters:
//   - baseURL: API base URL (e.g., https://api.spotify.com/v1)
//   - accessToken: OAuth bearer token for the listener
//   - timeout: per-request HTTP timeout
//   - requestsPerSecond, burst: client-side rate limit; the Spotify API
//     enforces a rolling quota and answers excess traffic with 429s
func NewClient(baseURL, accessToken string, timeout time.Duration, requestsPerSecond float64, burst int) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// GetCurrentUser retrieves the profile of the token's owner.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "get_current_user", "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetTopTracks retrieves the listener's most played tracks for the given
// history window.
func (c *Client) GetTopTracks(ctx context.Context, timeRange TimeRange, limit int) ([]Track, error) {
	q := url.Values{}
	q.Set("time_range", string(timeRange))
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))

	var page pagedTracks
	if err := c.getJSON(ctx, "get_top_tracks", "/me/top/tracks", q, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetTopArtists retrieves the listener's most played artists for the given
// history window. Returned artists include genre tags.
func (c *Client) GetTopArtists(ctx context.Context, timeRange TimeRange, limit int) ([]Artist, error) {
	q := url.Values{}
	q.Set("time_range", string(timeRange))
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))

	var page artistsPage
	if err := c.getJSON(ctx, "get_top_artists", "/me/top/artists", q, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetSavedTracks retrieves a page of the listener's saved library and the
// library's total size.
func (c *Client) GetSavedTracks(ctx context.Context, limit, offset int) ([]Track, int, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))
	q.Set("offset", fmt.Sprintf("%d", offset))

	var page savedTracksPage
	if err := c.getJSON(ctx, "get_saved_tracks", "/me/tracks", q, &page); err != nil {
		return nil, 0, err
	}

	tracks := make([]Track, 0, len(page.Items))
	for i := range page.Items {
		tracks = append(tracks, page.Items[i].Track)
	}
	return tracks, page.Total, nil
}

// GetRecentlyPlayed retrieves the listener's most recent playback history.
func (c *Client) GetRecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))

	var page playHistoryPage
	if err := c.getJSON(ctx, "get_recently_played", "/me/player/recently-played", q, &page); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(page.Items))
	for i := range page.Items {
		tracks = append(tracks, page.Items[i].Track)
	}
	return tracks, nil
}

// GetPlaylists retrieves the listener's playlists.
func (c *Client) GetPlaylists(ctx context.Context, limit int) ([]Playlist, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))

	var page playlistsPage
	if err := c.getJSON(ctx, "get_playlists", "/me/playlists", q, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetPlaylistTracks retrieves a page of tracks from a playlist. Deleted and
// local entries are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]Track, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 100)))
	q.Set("offset", fmt.Sprintf("%d", offset))

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	var page playlistTracksPage
	if err := c.getJSON(ctx, "get_playlist_tracks", endpoint, q, &page); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(page.Items))
	for i := range page.Items {
		if page.Items[i].Track == nil || page.Items[i].Track.ID == "" {
			continue
		}
		tracks = append(tracks, *page.Items[i].Track)
	}
	return tracks, nil
}

// GetTracks retrieves full track objects by ID. At most 50 identifiers per
// call; the catalog rejects larger batches.
func (c *Client) GetTracks(ctx context.Context, trackIDs []string) ([]Track, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	if len(trackIDs) > 50 {
		return nil, fmt.Errorf("spotify tracks: at most 50 ids per request, got %d", len(trackIDs))
	}

	q := url.Values{}
	q.Set("ids", strings.Join(trackIDs, ","))

	var resp struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.getJSON(ctx, "get_tracks", "/tracks", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// GetAudioFeatures retrieves audio analysis vectors for up to 100 tracks.
// The returned slice is positionally aligned with trackIDs; entries are nil
// for tracks the catalog has no analysis for.
func (c *Client) GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*AudioFeatures, error) {
	if len(trackIDs) == 0 {
		return nil, nil
	}
	if len(trackIDs) > maxIDsPerFeaturesRequest {
		return nil, fmt.Errorf("spotify audio features: at most %d ids per request, got %d", maxIDsPerFeaturesRequest, len(trackIDs))
	}

	q := url.Values{}
	q.Set("ids", strings.Join(trackIDs, ","))

	var resp audioFeaturesResponse
	if err := c.getJSON(ctx, "get_audio_features", "/audio-features", q, &resp); err != nil {
		return nil, err
	}
	return resp.AudioFeatures, nil
}

// GetRecommendations retrieves seeded track recommendations. The combined
// seed count must be between 1 and 5.
func (c *Client) GetRecommendations(ctx context.Context, params *RecommendationParams) ([]Track, error) {
	if params == nil || !params.HasSeeds() {
		return nil, fmt.Errorf("spotify recommendations: at least one seed required")
	}
	if n := len(params.SeedTracks) + len(params.SeedArtists) + len(params.SeedGenres); n > maxSeedsPerRequest {
		return nil, fmt.Errorf("spotify recommendations: at most %d combined seeds, got %d", maxSeedsPerRequest, n)
	}

	q := url.Values{}
	if len(params.SeedTracks) > 0 {
		q.Set("seed_tracks", strings.Join(params.SeedTracks, ","))
	}
	if len(params.SeedArtists) > 0 {
		q.Set("seed_artists", strings.Join(params.SeedArtists, ","))
	}
	if len(params.SeedGenres) > 0 {
		q.Set("seed_genres", strings.Join(params.SeedGenres, ","))
	}
	q.Set("limit", fmt.Sprintf("%d", clampLimit(params.Limit, 100)))

	setFloat := func(key string, v *float64) {
		if v != nil {
			q.Set(key, fmt.Sprintf("%g", *v))
		}
	}
	setFloat("target_danceability", params.TargetDanceability)
	setFloat("target_energy", params.TargetEnergy)
	setFloat("target_valence", params.TargetValence)
	setFloat("target_tempo", params.TargetTempo)
	setFloat("min_energy", params.MinEnergy)
	setFloat("max_energy", params.MaxEnergy)

	var resp recommendationsResponse
	if err := c.getJSON(ctx, "get_recommendations", "/recommendations", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// SearchTracks searches the catalog for tracks matching a free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit, offset int) ([]Track, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "search_tracks", "/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks.Items, nil
}

// SaveTracks adds tracks to the listener's saved library.
func (c *Client) SaveTracks(ctx context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	if len(trackIDs) > 50 {
		return fmt.Errorf("spotify save tracks: at most 50 ids per request, got %d", len(trackIDs))
	}

	body := map[string][]string{"ids": trackIDs}
	return c.doJSON(ctx, "save_tracks", http.MethodPut, "/me/tracks", body, nil)
}

// CreatePlaylist creates an empty playlist owned by the listener.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string) (*Playlist, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var playlist Playlist
	if err := c.doJSON(ctx, "create_playlist", http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracksToPlaylist appends tracks (by URI) to a playlist.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackURIs []string) error {
	if len(trackURIs) == 0 {
		return nil
	}
	if len(trackURIs) > 100 {
		return fmt.Errorf("spotify add playlist tracks: at most 100 uris per request, got %d", len(trackURIs))
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	body := map[string][]string{"uris": trackURIs}
	return c.doJSON(ctx, "add_playlist_tracks", http.MethodPost, endpoint, body, nil)
}

// getJSON performs a rate-limited GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, operation, endpoint string, query url.Values, out any) error {
	start := time.Now()

	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		metrics.RecordCatalogRequest(operation, "error", time.Since(start))
		return fmt.Errorf("spotify %s request failed: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordCatalogRequest(operation, "error", time.Since(start))
		return c.statusError(operation, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordCatalogRequest(operation, "error", time.Since(start))
		return fmt.Errorf("failed to decode spotify %s response: %w", operation, err)
	}

	metrics.RecordCatalogRequest(operation, "success", time.Since(start))
	return nil
}

// doJSON performs a rate-limited request with a JSON body. If out is non-nil
// the response body is decoded into it.
func (c *Client) doJSON(ctx context.Context, operation, method, endpoint string, body, out any) error {
	start := time.Now()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode spotify %s request: %w", operation, err)
	}

	resp, err := c.doRequest(ctx, method, endpoint, nil, bytes.NewReader(payload))
	if err != nil {
		metrics.RecordCatalogRequest(operation, "error", time.Since(start))
		return fmt.Errorf("spotify %s request failed: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Write endpoints answer 200 or 201 depending on the resource.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.RecordCatalogRequest(operation, "error", time.Since(start))
		return c.statusError(operation, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.RecordCatalogRequest(operation, "error", time.Since(start))
			return fmt.Errorf("failed to decode spotify %s response: %w", operation, err)
		}
	}

	metrics.RecordCatalogRequest(operation, "success", time.Since(start))
	return nil
}

// doRequest waits for the rate limiter, then performs the HTTP request.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// statusError builds an error from a non-success response, preferring the
// catalog's error envelope when it parses.
func (c *Client) statusError(operation string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("spotify %s returned status %d (failed to read body)", operation, resp.StatusCode)
	}

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("spotify %s returned status %d: %s", operation, resp.StatusCode, envelope.Error.Message)
	}
	return fmt.Errorf("spotify %s returned status %d: %s", operation, resp.StatusCode, string(body))
}

// clampLimit bounds a page size to [1, max], defaulting to max when unset.
func clampLimit(limit, maxVal int) int {
	if limit <= 0 || limit > maxVal {
		return maxVal
	}
	return limit
}
