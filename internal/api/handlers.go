// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tunebloom/tunebloom/internal/engine"
	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/validation"
)

// maxRequestBody bounds request body reads.
const maxRequestBody = 1 << 20

// Handler serves the session and recommendation endpoints.
type Handler struct {
	registry *SessionRegistry
}

// NewHandler creates a handler over the session registry.
func NewHandler(registry *SessionRegistry) *Handler {
	return &Handler{registry: registry}
}

type createSessionRequest struct {
	// AccessToken is the listener's catalog API bearer token.
	AccessToken string `json:"access_token" validate:"required,min=8"`
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

type recommendationsRequest struct {
	// Count is the requested deck size.
	Count int `json:"count" validate:"required,min=1,max=50"`

	// LikedTracks are this session's liked tracks, most recent last.
	LikedTracks []engine.Track `json:"liked_tracks" validate:"max=500"`

	// VibeShift is the caller's refresh counter.
	VibeShift int `json:"vibe_shift" validate:"min=0"`
}

type recommendationsResponse struct {
	Tracks []engine.Track `json:"tracks"`
	Count  int            `json:"count"`
}

type exportPlaylistRequest struct {
	// Name is the playlist title.
	Name string `json:"name" validate:"required,max=200"`

	// TrackIDs are the catalog track IDs to place in the playlist.
	TrackIDs []string `json:"track_ids" validate:"required,min=1,max=100,dive,required"`

	// SaveToLibrary additionally saves the tracks to the listener's library.
	SaveToLibrary bool `json:"save_to_library"`
}

type exportPlaylistResponse struct {
	PlaylistID string `json:"playlist_id"`
	TrackCount int    `json:"track_count"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req createSessionRequest
	if !h.decode(rw, r, &req) {
		return
	}

	session, err := h.registry.Create(req.AccessToken)
	if err != nil {
		logging.Warn().Err(err).Msg("Session creation failed")
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "could not create session")
		return
	}

	logging.Info().Str("session_id", session.ID).Msg("Session created")
	rw.Created(createSessionResponse{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt,
	})
}

// DeleteSession handles DELETE /api/v1/sessions/{sessionID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	h.registry.Delete(session.ID)
	rw.NoContent()
}

// Recommendations handles POST /api/v1/sessions/{sessionID}/recommendations.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	var req recommendationsRequest
	if !h.decode(rw, r, &req) {
		return
	}

	deck, err := session.Generate(r.Context(), req.Count, engine.Options{
		LikedTracks: req.LikedTracks,
		VibeShift:   req.VibeShift,
	})
	if err != nil {
		rw.ExternalServiceError("catalog", err)
		return
	}

	rw.Success(recommendationsResponse{
		Tracks: deck,
		Count:  len(deck),
	})
}

// AddExclusion handles POST /api/v1/sessions/{sessionID}/exclusions/{trackID}.
func (h *Handler) AddExclusion(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	trackID := chi.URLParam(r, "trackID")
	if trackID == "" {
		rw.BadRequest("track ID is required")
		return
	}

	session.Exclude(r.Context(), trackID)
	rw.NoContent()
}

// ExportPlaylist handles POST /api/v1/sessions/{sessionID}/playlists.
func (h *Handler) ExportPlaylist(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	var req exportPlaylistRequest
	if !h.decode(rw, r, &req) {
		return
	}

	playlistID, err := session.ExportPlaylist(r.Context(), req.Name, req.TrackIDs, req.SaveToLibrary)
	if err != nil {
		rw.ExternalServiceError("catalog", err)
		return
	}

	rw.Created(exportPlaylistResponse{
		PlaylistID: playlistID,
		TrackCount: len(req.TrackIDs),
	})
}

// RemoveExclusion handles DELETE /api/v1/sessions/{sessionID}/exclusions/{trackID}.
func (h *Handler) RemoveExclusion(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	trackID := chi.URLParam(r, "trackID")
	if trackID == "" {
		rw.BadRequest("track ID is required")
		return
	}

	session.Unexclude(r.Context(), trackID)
	rw.NoContent()
}

// ResetSession handles POST /api/v1/sessions/{sessionID}/reset.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	session, ok := h.session(rw, r)
	if !ok {
		return
	}

	session.Reset()
	rw.NoContent()
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]interface{}{
		"status":   "ok",
		"sessions": h.registry.Len(),
	})
}

// session resolves the {sessionID} route parameter, writing the error
// response itself when the session does not exist.
func (h *Handler) session(rw *ResponseWriter, r *http.Request) (*Session, bool) {
	id := chi.URLParam(r, "sessionID")
	if id == "" {
		rw.BadRequest("session ID is required")
		return nil, false
	}
	session, ok := h.registry.Get(id)
	if !ok {
		rw.NotFound("session not found")
		return nil, false
	}
	return session, true
}

// decode reads, unmarshals and validates the request body, writing the
// error response itself on failure.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(rw.w, r.Body, maxRequestBody)
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		rw.BadRequest("invalid request body")
		return false
	}

	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError("request validation failed", verr.Fields)
		return false
	}
	return true
}
