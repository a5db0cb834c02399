// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestCircuitBreakerPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"listener-1","display_name":"Test"}`))
	}))
	defer server.Close()

	cbc := NewCircuitBreakerClient(newTestClient(server.URL))

	user, err := cbc.GetCurrentUser(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if user.ID != "listener-1" {
		t.Errorf("user.ID = %q, want listener-1", user.ID)
	}
	if cbc.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", cbc.State())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cbc := NewCircuitBreakerClient(newTestClient(server.URL))

	// Breaker requires 10 observed requests before it can trip.
	for i := 0; i < 12; i++ {
		_, _ = cbc.GetRecentlyPlayed(context.Background(), 50)
	}

	if cbc.State() != gobreaker.StateOpen {
		t.Errorf("state = %v, want open after sustained failures", cbc.State())
	}

	// Once open, requests are rejected without hitting the server.
	_, err := cbc.GetRecentlyPlayed(context.Background(), 50)
	if err == nil {
		t.Fatal("expected rejection while circuit is open")
	}
}

func TestCircuitBreakerErrorPropagation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
	}))
	defer server.Close()

	cbc := NewCircuitBreakerClient(newTestClient(server.URL))

	_, err := cbc.GetTopTracks(context.Background(), RangeMediumTerm, 20)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}
