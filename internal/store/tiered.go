// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"

	"github.com/tunebloom/tunebloom/internal/logging"
	"github.com/tunebloom/tunebloom/internal/metrics"
)

// TieredStore layers a durable remote tier over a local cache tier. Writes
// go to both; reads merge both so exclusions survive either tier being
// empty. A tier failure is recorded and logged but never propagated, since
// exclusion persistence is advisory.
type TieredStore struct {
	remote ExclusionStore
	local  ExclusionStore
}

// Ensure TieredStore implements ExclusionStore
var _ ExclusionStore = (*TieredStore)(nil)

// NewTieredStore combines a remote and a local exclusion store. Either may
// be nil, in which case that tier is skipped.
func NewTieredStore(remote, local ExclusionStore) *TieredStore {
	return &TieredStore{remote: remote, local: local}
}

// ExcludedTrackIDs returns the union of both tiers, deduplicated. A failing
// tier contributes nothing.
func (s *TieredStore) ExcludedTrackIDs(ctx context.Context, userID string) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	collect := func(tier string, st ExclusionStore) {
		if st == nil {
			return
		}
		tierIDs, err := st.ExcludedTrackIDs(ctx, userID)
		if err != nil {
			logging.Warn().Err(err).Str("tier", tier).Str("user_id", userID).Msg("exclusion store read failed")
			return
		}
		for _, id := range tierIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	collect("remote", s.remote)
	collect("local", s.local)

	return ids, nil
}

// AddExcluded writes to both tiers.
func (s *TieredStore) AddExcluded(ctx context.Context, userID string, trackIDs []string, reason Reason) error {
	s.eachTier(func(tier string, st ExclusionStore) error {
		err := st.AddExcluded(ctx, userID, trackIDs, reason)
		s.recordWrite(tier, "add", userID, err)
		return err
	})
	return nil
}

// RemoveExcluded removes only from the local cache tier. Undoing a swipe
// retracts the session-adjacent record; the durable remote record stays, so
// undo never rewrites cross-session history.
func (s *TieredStore) RemoveExcluded(ctx context.Context, userID, trackID string) error {
	if s.local == nil {
		return nil
	}
	err := s.local.RemoveExcluded(ctx, userID, trackID)
	s.recordWrite("local", "remove", userID, err)
	return nil
}

func (s *TieredStore) eachTier(fn func(tier string, st ExclusionStore) error) {
	if s.remote != nil {
		_ = fn("remote", s.remote)
	}
	if s.local != nil {
		_ = fn("local", s.local)
	}
}

func (s *TieredStore) recordWrite(tier, op, userID string, err error) {
	if err != nil {
		metrics.ExclusionStoreWrites.WithLabelValues(tier, "error").Inc()
		logging.Warn().Err(err).Str("tier", tier).Str("op", op).Str("user_id", userID).Msg("exclusion store write failed")
		return
	}
	metrics.ExclusionStoreWrites.WithLabelValues(tier, "success").Inc()
}
