// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"github.com/tunebloom/tunebloom/internal/spotify"
)

// Track is a catalog track with the fields the engine derives: the audio
// feature vector, attached heard-track samples and the transient similarity
// score assigned during ranking. Catalog identity is never mutated.
type Track struct {
	spotify.Track

	// AudioFeatures is nil when the catalog has no analysis for the track.
	AudioFeatures *spotify.AudioFeatures `json:"audio_features,omitempty"`

	// HeardSamples are display-only "similar to tracks you know" cues.
	HeardSamples []HeardSample `json:"heard_samples,omitempty"`

	// Similarity is the Euclidean distance to the target profile, assigned
	// during ranking. Lower is closer; SentinelDistance marks tracks with
	// no feature vector.
	Similarity float64 `json:"similarity"`
}

// HeardSample is a lightweight projection of a previously heard track.
type HeardSample struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists string `json:"artists"`
}

// FeatureAverages holds feature-wise arithmetic means over a set of
// tracks. A nil field means the feature was absent from every track and is
// omitted from the profile rather than defaulted to zero.
type FeatureAverages struct {
	Danceability     *float64 `json:"danceability,omitempty"`
	Energy           *float64 `json:"energy,omitempty"`
	Valence          *float64 `json:"valence,omitempty"`
	Acousticness     *float64 `json:"acousticness,omitempty"`
	Instrumentalness *float64 `json:"instrumentalness,omitempty"`
	Speechiness      *float64 `json:"speechiness,omitempty"`
	Tempo            *float64 `json:"tempo,omitempty"`
}

// IsEmpty reports whether no feature carried a value.
func (f *FeatureAverages) IsEmpty() bool {
	return f.Danceability == nil && f.Energy == nil && f.Valence == nil &&
		f.Acousticness == nil && f.Instrumentalness == nil &&
		f.Speechiness == nil && f.Tempo == nil
}

// TasteProfile is the listener's long-term profile, derived once per
// session from listening history and cached until reset.
type TasteProfile struct {
	// Audio holds averaged feature values across the reference tracks.
	Audio FeatureAverages `json:"audio"`

	// SeedTracks are the first reference track IDs, up to the seed cap.
	SeedTracks []string `json:"seed_tracks"`

	// SeedArtists are the fetched top-artist IDs.
	SeedArtists []string `json:"seed_artists"`

	// TopGenres are the most frequent genre tags across top artists.
	TopGenres []string `json:"top_genres"`
}

// HasSeeds reports whether any seed list is non-empty. A profile without
// seeds sends the candidate fetcher straight to the keyword fallback.
func (p *TasteProfile) HasSeeds() bool {
	return len(p.SeedTracks) > 0 || len(p.SeedArtists) > 0 || len(p.TopGenres) > 0
}

// FeedbackProfile is derived from the current session's liked tracks only.
// It is rebuilt on every recommendation request and never persisted; its
// seeds and targets supersede the taste profile's when present.
type FeedbackProfile struct {
	Audio       FeatureAverages `json:"audio"`
	SeedTracks  []string        `json:"seed_tracks"`
	SeedArtists []string        `json:"seed_artists"`
	TopGenres   []string        `json:"top_genres"`
}

// Options carries the per-request inputs of a recommendation call.
type Options struct {
	// LikedTracks are the tracks the listener liked this session, used to
	// build the feedback profile. Tracks served by this engine carry their
	// audio features, so the feedback averages need no extra fetches.
	LikedTracks []Track

	// VibeShift is the caller's refresh counter. It is reduced modulo 5
	// and scaled by 0.05 to perturb target feature values.
	VibeShift int
}
