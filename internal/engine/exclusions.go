// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tunebloom/tunebloom/internal/metrics"
	"github.com/tunebloom/tunebloom/internal/store"
)

// exclusionTracker maintains two overlapping identifier sets: excluded
// ("never recommend") and listened ("already encountered"). Membership
// checks fail open once the exclusion set outgrows the configured bound,
// trading exclusion precision for deck liveness.
//
// Persistence is a best-effort side channel through the configured
// ExclusionStore; every store failure is logged and swallowed.
type exclusionTracker struct {
	mu       sync.RWMutex
	excluded map[string]struct{}
	listened map[string]struct{}

	maxSetSize int
	userID     string

	store  store.ExclusionStore
	logger zerolog.Logger
}

func newExclusionTracker(maxSetSize int, st store.ExclusionStore, logger zerolog.Logger) *exclusionTracker {
	return &exclusionTracker{
		excluded:   make(map[string]struct{}),
		listened:   make(map[string]struct{}),
		maxSetSize: maxSetSize,
		store:      st,
		logger:     logger,
	}
}

// SetUserID sets the listener identity used as the persistence key.
func (t *exclusionTracker) SetUserID(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = userID
}

// IsExcluded reports exclusion-set membership. Once the set exceeds the
// fail-open bound it returns false unconditionally.
func (t *exclusionTracker) IsExcluded(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.excluded) > t.maxSetSize {
		metrics.ExclusionFailOpen.Inc()
		return false
	}
	_, ok := t.excluded[id]
	return ok
}

// IsListened reports listened-set membership, with the same fail-open
// bound as IsExcluded.
func (t *exclusionTracker) IsListened(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.listened) > t.maxSetSize {
		metrics.ExclusionFailOpen.Inc()
		return false
	}
	_, ok := t.listened[id]
	return ok
}

// Exclude adds the track to both the exclusion and listened sets and
// persists it best-effort with the given reason.
func (t *exclusionTracker) Exclude(ctx context.Context, id string, reason store.Reason) {
	if id == "" {
		return
	}

	t.mu.Lock()
	t.excluded[id] = struct{}{}
	t.listened[id] = struct{}{}
	userID := t.userID
	t.mu.Unlock()

	t.persist(ctx, userID, []string{id}, reason)
}

// Unexclude removes the track from both sets, for the caller's undo
// action. The durable remote record is never retracted; only the local
// cache tier is touched.
func (t *exclusionTracker) Unexclude(ctx context.Context, id string) {
	t.mu.Lock()
	delete(t.excluded, id)
	delete(t.listened, id)
	userID := t.userID
	t.mu.Unlock()

	if t.store == nil || userID == "" {
		return
	}
	if err := t.store.RemoveExcluded(ctx, userID, id); err != nil {
		t.logger.Warn().Err(err).Str("track_id", id).Msg("exclusion retraction failed")
	}
}

// MergeFromSource merges identifiers from a provenance source into both
// sets and persists the newly discovered ones best-effort.
func (t *exclusionTracker) MergeFromSource(ctx context.Context, ids []string, reason store.Reason) {
	if len(ids) == 0 {
		return
	}

	t.mu.Lock()
	discovered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := t.listened[id]; !ok {
			discovered = append(discovered, id)
		}
		t.excluded[id] = struct{}{}
		t.listened[id] = struct{}{}
	}
	userID := t.userID
	t.mu.Unlock()

	t.persist(ctx, userID, discovered, reason)
}

// MergeInMemory merges identifiers into both sets without persistence,
// used when loading already-persisted exclusions.
func (t *exclusionTracker) MergeInMemory(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		t.excluded[id] = struct{}{}
		t.listened[id] = struct{}{}
	}
}

// LoadPersisted merges the store's exclusions for the current listener
// into memory. Failures leave the sets unchanged.
func (t *exclusionTracker) LoadPersisted(ctx context.Context) {
	t.mu.RLock()
	userID := t.userID
	t.mu.RUnlock()

	if t.store == nil || userID == "" {
		return
	}

	ids, err := t.store.ExcludedTrackIDs(ctx, userID)
	if err != nil {
		t.logger.Warn().Err(err).Msg("loading persisted exclusions failed")
		return
	}
	t.MergeInMemory(ids)
}

// Size returns the exclusion set's cardinality.
func (t *exclusionTracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.excluded)
}

// Clear empties both in-memory sets. Persisted stores are untouched.
func (t *exclusionTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.excluded = make(map[string]struct{})
	t.listened = make(map[string]struct{})
}

func (t *exclusionTracker) persist(ctx context.Context, userID string, ids []string, reason store.Reason) {
	if t.store == nil || userID == "" || len(ids) == 0 {
		return
	}
	if err := t.store.AddExcluded(ctx, userID, ids, reason); err != nil {
		t.logger.Warn().Err(err).Str("reason", string(reason)).Int("count", len(ids)).Msg("exclusion persistence failed")
	}
}
