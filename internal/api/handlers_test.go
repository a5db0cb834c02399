// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tunebloom/tunebloom/internal/config"
	"github.com/tunebloom/tunebloom/internal/engine"
	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/spotify"
)

// stubCatalog is a minimal spotify.Interface for HTTP tests: no
// listening history, keyword search returns a fixed deck, and the
// playlist write operations record what they were asked to do.
type stubCatalog struct {
	mu                sync.Mutex
	createPlaylistErr error
	createdPlaylists  []string
	addedURIs         []string
	savedIDs          []string
}

func (*stubCatalog) GetCurrentUser(_ context.Context) (*spotify.User, error) {
	return &spotify.User{ID: "listener-1"}, nil
}

func (*stubCatalog) GetTopTracks(_ context.Context, _ spotify.TimeRange, _ int) ([]spotify.Track, error) {
	return nil, nil
}

func (*stubCatalog) GetTopArtists(_ context.Context, _ spotify.TimeRange, _ int) ([]spotify.Artist, error) {
	return nil, nil
}

func (*stubCatalog) GetSavedTracks(_ context.Context, _, _ int) ([]spotify.Track, int, error) {
	return nil, 0, nil
}

func (*stubCatalog) GetRecentlyPlayed(_ context.Context, _ int) ([]spotify.Track, error) {
	return nil, nil
}

func (*stubCatalog) GetPlaylists(_ context.Context, _ int) ([]spotify.Playlist, error) {
	return nil, nil
}

func (*stubCatalog) GetPlaylistTracks(_ context.Context, _ string, _, _ int) ([]spotify.Track, error) {
	return nil, nil
}

func (*stubCatalog) GetTracks(_ context.Context, _ []string) ([]spotify.Track, error) {
	return nil, nil
}

func (*stubCatalog) GetAudioFeatures(_ context.Context, trackIDs []string) ([]*spotify.AudioFeatures, error) {
	return make([]*spotify.AudioFeatures, len(trackIDs)), nil
}

func (*stubCatalog) GetRecommendations(_ context.Context, _ *spotify.RecommendationParams) ([]spotify.Track, error) {
	return nil, nil
}

func (*stubCatalog) SearchTracks(_ context.Context, query string, _, _ int) ([]spotify.Track, error) {
	return []spotify.Track{
		{ID: query + "-1", Name: "Result One"},
		{ID: query + "-2", Name: "Result Two"},
	}, nil
}

func (c *stubCatalog) SaveTracks(_ context.Context, trackIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savedIDs = append(c.savedIDs, trackIDs...)
	return nil
}

func (c *stubCatalog) CreatePlaylist(_ context.Context, _, name, _ string) (*spotify.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createPlaylistErr != nil {
		return nil, c.createPlaylistErr
	}
	c.createdPlaylists = append(c.createdPlaylists, name)
	return &spotify.Playlist{ID: "playlist-1", Name: name}, nil
}

func (c *stubCatalog) AddTracksToPlaylist(_ context.Context, _ string, trackURIs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addedURIs = append(c.addedURIs, trackURIs...)
	return nil
}

func factoryFor(t *testing.T, catalog *stubCatalog) EngineFactory {
	t.Helper()
	return func(_ string) (*engine.Engine, spotify.Interface, error) {
		cfg := engine.DefaultConfig()
		cfg.Candidates.BatchPacing = 0
		eng, err := engine.NewEngine(cfg, catalog, nil, logging.NewTestLogger(io.Discard))
		return eng, catalog, err
	}
}

func testFactory(t *testing.T) EngineFactory {
	t.Helper()
	return factoryFor(t, &stubCatalog{})
}

func newTestServer(t *testing.T) (*httptest.Server, *SessionRegistry) {
	t.Helper()
	return newTestServerWith(t, &stubCatalog{})
}

func newTestServerWith(t *testing.T, catalog *stubCatalog) (*httptest.Server, *SessionRegistry) {
	t.Helper()

	registry := NewSessionRegistry(time.Hour, 10, factoryFor(t, catalog))
	serverCfg := &config.ServerConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}
	router := NewRouter(NewHandler(registry), serverCfg)

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv, registry
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func createTestSession(t *testing.T, baseURL string) string {
	t.Helper()

	resp := postJSON(t, baseURL+"/api/v1/sessions", map[string]string{"access_token": "test-token-123"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)

	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", envelope.Data)
	}
	id, _ := data["session_id"].(string)
	if id == "" {
		t.Fatal("empty session_id")
	}
	return id
}

func TestCreateSession(t *testing.T) {
	srv, registry := newTestServer(t)

	id := createTestSession(t, srv.URL)
	if _, ok := registry.Get(id); !ok {
		t.Error("created session not in registry")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"access_token": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if envelope.Success {
		t.Error("expected success=false")
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want VALIDATION_FAILED", envelope.Error)
	}
}

func TestCreateSessionMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 10; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"access_token": "test-token-123"})
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("session %d status = %d, want 201", i, resp.StatusCode)
		}
	}

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"access_token": "test-token-123"})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 at the session bound", resp.StatusCode)
	}
}

func TestRecommendations(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestSession(t, srv.URL)

	resp := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/recommendations", srv.URL, id), map[string]interface{}{
		"count": 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if !envelope.Success {
		t.Fatalf("success = false, error = %+v", envelope.Error)
	}

	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", envelope.Data)
	}
	tracks, ok := data["tracks"].([]interface{})
	if !ok || len(tracks) == 0 {
		t.Errorf("tracks = %v, want non-empty deck from keyword fallback", data["tracks"])
	}
	if len(tracks) > 5 {
		t.Errorf("deck length = %d, want <= 5", len(tracks))
	}
}

func TestRecommendationsValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestSession(t, srv.URL)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"zero count", map[string]interface{}{"count": 0}},
		{"oversized count", map[string]interface{}{"count": 51}},
		{"negative vibe shift", map[string]interface{}{"count": 5, "vibe_shift": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/recommendations", srv.URL, id), tt.body)
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRecommendationsUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/nope/recommendations", map[string]interface{}{"count": 5})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExclusionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestSession(t, srv.URL)
	base := fmt.Sprintf("%s/api/v1/sessions/%s", srv.URL, id)

	resp := postJSON(t, base+"/exclusions/track-9", struct{}{})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("add exclusion status = %d, want 204", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, base+"/exclusions/track-9", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE exclusion: %v", err)
	}
	defer func() { _ = delResp.Body.Close() }()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("remove exclusion status = %d, want 204", delResp.StatusCode)
	}
}

func TestExportPlaylist(t *testing.T) {
	catalog := &stubCatalog{}
	srv, _ := newTestServerWith(t, catalog)
	id := createTestSession(t, srv.URL)

	resp := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/playlists", srv.URL, id), map[string]interface{}{
		"name":            "Sunday Finds",
		"track_ids":       []string{"t1", "t2"},
		"save_to_library": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if !envelope.Success {
		t.Fatalf("success = false, error = %+v", envelope.Error)
	}

	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", envelope.Data)
	}
	if playlistID, _ := data["playlist_id"].(string); playlistID != "playlist-1" {
		t.Errorf("playlist_id = %v, want playlist-1", data["playlist_id"])
	}

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if len(catalog.createdPlaylists) != 1 || catalog.createdPlaylists[0] != "Sunday Finds" {
		t.Errorf("created playlists = %v, want [Sunday Finds]", catalog.createdPlaylists)
	}
	if len(catalog.addedURIs) != 2 {
		t.Fatalf("added URIs = %v, want 2 entries", catalog.addedURIs)
	}
	for _, uri := range catalog.addedURIs {
		if !strings.HasPrefix(uri, "spotify:track:") {
			t.Errorf("URI %q missing spotify:track: prefix", uri)
		}
	}
	if len(catalog.savedIDs) != 2 {
		t.Errorf("saved IDs = %v, want 2 entries", catalog.savedIDs)
	}
}

func TestExportPlaylistCatalogFailure(t *testing.T) {
	catalog := &stubCatalog{createPlaylistErr: errors.New("upstream down")}
	srv, _ := newTestServerWith(t, catalog)
	id := createTestSession(t, srv.URL)

	resp := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/playlists", srv.URL, id), map[string]interface{}{
		"name":      "Sunday Finds",
		"track_ids": []string{"t1"},
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	envelope := decodeResponse(t, resp)
	if envelope.Success {
		t.Error("expected success=false")
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeExternalServiceFail {
		t.Errorf("error = %+v, want %s", envelope.Error, ErrCodeExternalServiceFail)
	}
}

func TestExportPlaylistValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestSession(t, srv.URL)
	url := fmt.Sprintf("%s/api/v1/sessions/%s/playlists", srv.URL, id)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"track_ids": []string{"t1"}}},
		{"empty track list", map[string]interface{}{"name": "Finds", "track_ids": []string{}}},
		{"blank track id", map[string]interface{}{"name": "Finds", "track_ids": []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, url, tt.body)
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestResetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestSession(t, srv.URL)

	resp := postJSON(t, fmt.Sprintf("%s/api/v1/sessions/%s/reset", srv.URL, id), struct{}{})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, registry := newTestServer(t)
	id := createTestSession(t, srv.URL)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/sessions/%s", srv.URL, id), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE session: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if _, ok := registry.Get(id); ok {
		t.Error("session still in registry after delete")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	envelope := decodeResponse(t, resp)
	if !envelope.Success {
		t.Error("health should report success")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	registry := NewSessionRegistry(time.Millisecond, 10, testFactory(t))

	session, err := registry.Create("test-token-123")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	registry.evictIdle()

	if _, ok := registry.Get(session.ID); ok {
		t.Error("idle session survived eviction")
	}
}
