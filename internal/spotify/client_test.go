// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "test-token", 5*time.Second, 1000, 1000)
}

func verifyAuthHeader(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantURL string
	}{
		{
			name:    "basic URL",
			baseURL: "https://api.spotify.com/v1",
			wantURL: "https://api.spotify.com/v1",
		},
		{
			name:    "URL with trailing slash",
			baseURL: "https://api.spotify.com/v1/",
			wantURL: "https://api.spotify.com/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.baseURL, "tok", 10*time.Second, 10, 5)
			if client.baseURL != tt.wantURL {
				t.Errorf("baseURL = %q, want %q", client.baseURL, tt.wantURL)
			}
			if client.httpClient == nil {
				t.Error("httpClient is nil")
			}
			if client.limiter == nil {
				t.Error("limiter is nil")
			}
		})
	}
}

func TestGetCurrentUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("path = %q, want /me", r.URL.Path)
		}
		verifyAuthHeader(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"listener-1","display_name":"Test Listener"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	user, err := client.GetCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if user.ID != "listener-1" {
		t.Errorf("user.ID = %q, want listener-1", user.ID)
	}
	if user.DisplayName != "Test Listener" {
		t.Errorf("user.DisplayName = %q, want Test Listener", user.DisplayName)
	}
}

func TestGetTopTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/top/tracks" {
			t.Errorf("path = %q, want /me/top/tracks", r.URL.Path)
		}
		if got := r.URL.Query().Get("time_range"); got != "short_term" {
			t.Errorf("time_range = %q, want short_term", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"t1","name":"Track One","artists":[{"id":"a1","name":"Artist One"}]},
			{"id":"t2","name":"Track Two","artists":[{"id":"a2","name":"Artist Two"}]}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, err := client.GetTopTracks(context.Background(), RangeShortTerm, 20)
	if err != nil {
		t.Fatalf("GetTopTracks returned error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].ID != "t1" || tracks[1].ID != "t2" {
		t.Errorf("track ids = %q, %q", tracks[0].ID, tracks[1].ID)
	}
	if tracks[0].ArtistNames() != "Artist One" {
		t.Errorf("ArtistNames = %q, want Artist One", tracks[0].ArtistNames())
	}
}

func TestGetSavedTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/tracks" {
			t.Errorf("path = %q, want /me/tracks", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "50" {
			t.Errorf("offset = %q, want 50", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"track":{"id":"s1","name":"Saved One"}}],"total":137,"next":null}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, total, err := client.GetSavedTracks(context.Background(), 50, 50)
	if err != nil {
		t.Fatalf("GetSavedTracks returned error: %v", err)
	}
	if total != 137 {
		t.Errorf("total = %d, want 137", total)
	}
	if len(tracks) != 1 || tracks[0].ID != "s1" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestGetAudioFeatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio-features" {
			t.Errorf("path = %q, want /audio-features", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "t1,t2" {
			t.Errorf("ids = %q, want t1,t2", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"audio_features":[
			{"id":"t1","danceability":0.8,"energy":0.6,"valence":0.4,"tempo":120.5},
			null
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	features, err := client.GetAudioFeatures(context.Background(), []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("GetAudioFeatures returned error: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d entries, want 2", len(features))
	}
	if features[0] == nil || features[0].Danceability == nil || *features[0].Danceability != 0.8 {
		t.Errorf("features[0] = %+v", features[0])
	}
	if features[0].Acousticness != nil {
		t.Error("omitted field should decode to nil")
	}
	if features[1] != nil {
		t.Errorf("features[1] = %+v, want nil", features[1])
	}
}

func TestGetAudioFeaturesTooManyIDs(t *testing.T) {
	client := newTestClient("http://unused")
	ids := make([]string, 101)
	for i := range ids {
		ids[i] = "id"
	}
	if _, err := client.GetAudioFeatures(context.Background(), ids); err == nil {
		t.Error("expected error for >100 ids")
	}
}

func TestGetRecommendations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("seed_tracks"); got != "t1,t2" {
			t.Errorf("seed_tracks = %q, want t1,t2", got)
		}
		if got := q.Get("seed_artists"); got != "a1" {
			t.Errorf("seed_artists = %q, want a1", got)
		}
		if got := q.Get("target_energy"); got != "0.7" {
			t.Errorf("target_energy = %q, want 0.7", got)
		}
		if q.Has("min_energy") {
			t.Error("min_energy should be absent when nil")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks":[{"id":"r1","name":"Rec One"}]}`))
	}))
	defer server.Close()

	energy := 0.7
	client := newTestClient(server.URL)
	tracks, err := client.GetRecommendations(context.Background(), &RecommendationParams{
		SeedTracks:   []string{"t1", "t2"},
		SeedArtists:  []string{"a1"},
		Limit:        40,
		TargetEnergy: &energy,
	})
	if err != nil {
		t.Fatalf("GetRecommendations returned error: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "r1" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestGetRecommendationsSeedValidation(t *testing.T) {
	client := newTestClient("http://unused")

	if _, err := client.GetRecommendations(context.Background(), &RecommendationParams{}); err == nil {
		t.Error("expected error for seedless request")
	}

	params := &RecommendationParams{
		SeedTracks:  []string{"t1", "t2", "t3"},
		SeedArtists: []string{"a1", "a2"},
		SeedGenres:  []string{"pop"},
	}
	if _, err := client.GetRecommendations(context.Background(), params); err == nil {
		t.Error("expected error for 6 combined seeds")
	}
}

func TestSearchTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("q"); got != "summer" {
			t.Errorf("q = %q, want summer", got)
		}
		if got := q.Get("type"); got != "track" {
			t.Errorf("type = %q, want track", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks":{"items":[{"id":"f1","name":"Found One"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, err := client.SearchTracks(context.Background(), "summer", 20, 0)
	if err != nil {
		t.Fatalf("SearchTracks returned error: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "f1" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestGetPlaylistTracksSkipsNullEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"track":{"id":"p1","name":"Playlist One"}},
			{"track":null},
			{"track":{"id":"","name":"Local File"}}
		],"total":3}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, err := client.GetPlaylistTracks(context.Background(), "pl-1", 100, 0)
	if err != nil {
		t.Fatalf("GetPlaylistTracks returned error: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "p1" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestGetTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks" {
			t.Errorf("path = %q, want /tracks", r.URL.Path)
		}
		if ids := r.URL.Query().Get("ids"); ids != "t1,t2" {
			t.Errorf("ids = %q, want t1,t2", ids)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks":[{"id":"t1"},{"id":"t2"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	tracks, err := client.GetTracks(context.Background(), []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("GetTracks returned error: %v", err)
	}
	if len(tracks) != 2 || tracks[0].ID != "t1" {
		t.Errorf("tracks = %+v, want t1 and t2", tracks)
	}
}

func TestGetTracksTooManyIDs(t *testing.T) {
	client := newTestClient("http://unused.invalid")

	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	if _, err := client.GetTracks(context.Background(), ids); err == nil {
		t.Error("expected error for more than 50 ids")
	}
}

func TestSaveTracks(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.SaveTracks(context.Background(), []string{"t1", "t2"}); err != nil {
		t.Fatalf("SaveTracks returned error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotPath != "/me/tracks" {
		t.Errorf("path = %q, want /me/tracks", gotPath)
	}
}

func TestCreatePlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/users/listener-1/playlists" {
			t.Errorf("path = %q", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pl-new","name":"Discovered"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	playlist, err := client.CreatePlaylist(context.Background(), "listener-1", "Discovered", "From swipes")
	if err != nil {
		t.Fatalf("CreatePlaylist returned error: %v", err)
	}
	if playlist.ID != "pl-new" {
		t.Errorf("playlist.ID = %q, want pl-new", playlist.ID)
	}
}

func TestAddTracksToPlaylist(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/playlists/pl-1/tracks" {
			t.Errorf("path = %q", r.URL.Path)
		}
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.AddTracksToPlaylist(context.Background(), "pl-1", []string{"spotify:track:t1"})
	if err != nil {
		t.Fatalf("AddTracksToPlaylist returned error: %v", err)
	}
	if !strings.Contains(gotBody, "spotify:track:t1") {
		t.Errorf("body = %q, missing track URI", gotBody)
	}
}

func TestErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":429,"message":"API rate limit exceeded"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetCurrentUser(context.Background())
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if want := "API rate limit exceeded"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not contain %q", err.Error(), want)
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL)
	if _, err := client.GetRecentlyPlayed(ctx, 50); err == nil {
		t.Error("expected error for cancelled context")
	}
}
