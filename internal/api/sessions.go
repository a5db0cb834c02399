// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunebloom/tunebloom/internal/engine"
	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/metrics"
	"github.com/tunebloom/tunebloom/internal/spotify"
)

// EngineFactory builds a recommendation engine and its catalog client,
// both bound to one listener's catalog access token. The client is kept
// alongside the engine for operations outside the recommendation
// pipeline (playlist export).
type EngineFactory func(accessToken string) (*engine.Engine, spotify.Interface, error)

// Session pairs an engine with its identifier and serializes access to
// it. Engine state is mutable per request, so concurrent requests against
// one session are processed one at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	engine     *engine.Engine
	catalog    spotify.Interface
	lastActive time.Time
}

// touch refreshes the idle clock.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Generate produces a recommendation deck under the session lock.
func (s *Session) Generate(ctx context.Context, count int, opts engine.Options) ([]engine.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.GenerateRecommendations(ctx, count, opts)
}

// Exclude records a swipe under the session lock.
func (s *Session) Exclude(ctx context.Context, trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.engine.ExcludeTrack(ctx, trackID)
}

// Unexclude undoes a swipe under the session lock.
func (s *Session) Unexclude(ctx context.Context, trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.engine.RemoveExclusion(ctx, trackID)
}

// Reset clears the session's engine state under the session lock.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.engine.Reset()
}

// ExportPlaylist creates a private playlist on the listener's account and
// fills it with the given tracks. Returns the new playlist's ID.
func (s *Session) ExportPlaylist(ctx context.Context, name string, trackIDs []string, saveToLibrary bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	user, err := s.catalog.GetCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve listener: %w", err)
	}

	playlist, err := s.catalog.CreatePlaylist(ctx, user.ID, name, "Liked on TuneBloom")
	if err != nil {
		return "", fmt.Errorf("create playlist: %w", err)
	}

	uris := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		uris = append(uris, "spotify:track:"+id)
	}
	if err := s.catalog.AddTracksToPlaylist(ctx, playlist.ID, uris); err != nil {
		return "", fmt.Errorf("add tracks: %w", err)
	}

	if saveToLibrary {
		if err := s.catalog.SaveTracks(ctx, trackIDs); err != nil {
			// The playlist already exists; a failed library save is not
			// worth failing the export over.
			logging.Warn().Err(err).Str("playlist_id", playlist.ID).Msg("Library save failed during export")
		}
	}

	return playlist.ID, nil
}

// SessionRegistry holds live sessions, bounded in number and evicted
// after the configured idle TTL. Its Serve method runs the eviction loop
// and satisfies suture.Service.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl         time.Duration
	maxSessions int
	factory     EngineFactory

	evictInterval time.Duration
}

// NewSessionRegistry creates a registry with the given idle TTL and
// session bound.
func NewSessionRegistry(ttl time.Duration, maxSessions int, factory EngineFactory) *SessionRegistry {
	return &SessionRegistry{
		sessions:      make(map[string]*Session),
		ttl:           ttl,
		maxSessions:   maxSessions,
		factory:       factory,
		evictInterval: time.Minute,
	}
}

// Create builds a new session around an engine bound to the access token.
func (reg *SessionRegistry) Create(accessToken string) (*Session, error) {
	eng, catalog, err := reg.factory(accessToken)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		engine:     eng,
		catalog:    catalog,
		lastActive: now,
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.sessions) >= reg.maxSessions {
		return nil, fmt.Errorf("session limit reached (%d)", reg.maxSessions)
	}
	reg.sessions[session.ID] = session
	metrics.ActiveSessions.Set(float64(len(reg.sessions)))

	return session, nil
}

// Get returns the session and refreshes its idle clock.
func (reg *SessionRegistry) Get(id string) (*Session, bool) {
	reg.mu.RLock()
	session, ok := reg.sessions[id]
	reg.mu.RUnlock()
	if ok {
		session.touch()
	}
	return session, ok
}

// Delete removes the session. Missing IDs are a no-op.
func (reg *SessionRegistry) Delete(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.sessions, id)
	metrics.ActiveSessions.Set(float64(len(reg.sessions)))
}

// Len returns the current session count.
func (reg *SessionRegistry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}

// Serve runs the idle-eviction loop until the context is canceled. It
// satisfies suture.Service so the registry slots into the supervision
// tree.
func (reg *SessionRegistry) Serve(ctx context.Context) error {
	ticker := time.NewTicker(reg.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reg.evictIdle()
		}
	}
}

// evictIdle drops sessions idle past the TTL.
func (reg *SessionRegistry) evictIdle() {
	cutoff := time.Now().Add(-reg.ttl)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for id, session := range reg.sessions {
		if session.idleSince().Before(cutoff) {
			delete(reg.sessions, id)
			logging.Debug().Str("session_id", id).Msg("Evicted idle session")
		}
	}
	metrics.ActiveSessions.Set(float64(len(reg.sessions)))
}

// String identifies the registry in supervisor logs.
func (reg *SessionRegistry) String() string {
	return "session-registry"
}
