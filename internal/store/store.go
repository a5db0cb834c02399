// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store defines the exclusion persistence contract and its
// implementations. Exclusion stores are a best-effort side channel: the
// engine treats every operation here as advisory and keeps serving
// recommendations when a store fails.
package store

import "context"

// Reason records why a track was excluded from future decks.
type Reason string

const (
	// ReasonInLibrary marks tracks already in the listener's saved library.
	ReasonInLibrary Reason = "in_library"
	// ReasonRecentlyPlayed marks tracks from recent playback history.
	ReasonRecentlyPlayed Reason = "recently_played"
	// ReasonSwiped marks tracks the listener explicitly dismissed.
	ReasonSwiped Reason = "swiped"
	// ReasonServed marks tracks already dealt into a previous deck.
	ReasonServed Reason = "served"
)

// ExclusionStore persists excluded track identifiers per listener.
//
// Implementations must make AddExcluded idempotent: re-adding an already
// excluded track is not an error. Errors are returned for the caller to
// log, but callers fail open and continue without the store.
type ExclusionStore interface {
	// ExcludedTrackIDs returns the excluded track IDs for a listener.
	ExcludedTrackIDs(ctx context.Context, userID string) ([]string, error)

	// AddExcluded records track IDs as excluded with the given reason.
	AddExcluded(ctx context.Context, userID string, trackIDs []string, reason Reason) error

	// RemoveExcluded deletes a single exclusion, for undoing a swipe.
	RemoveExcluded(ctx context.Context, userID, trackID string) error
}

// NoopStore is an ExclusionStore that persists nothing. It stands in when
// durable exclusion storage is disabled; the engine's in-memory exclusion
// set still applies within a session.
type NoopStore struct{}

// Ensure NoopStore implements ExclusionStore
var _ ExclusionStore = (*NoopStore)(nil)

// NewNoopStore creates a no-op exclusion store.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

// ExcludedTrackIDs always returns an empty set.
func (s *NoopStore) ExcludedTrackIDs(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// AddExcluded discards the records.
func (s *NoopStore) AddExcluded(_ context.Context, _ string, _ []string, _ Reason) error {
	return nil
}

// RemoveExcluded does nothing.
func (s *NoopStore) RemoveExcluded(_ context.Context, _, _ string) error {
	return nil
}
