// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefix for BadgerDB storage
const exclusionKeyPrefix = "exclusions:"

// BadgerStore implements ExclusionStore using BadgerDB as a local cache
// tier. Each listener's exclusions live under one key as a JSON entry list,
// trimmed to the most recent maxEntries so the cache stays proportional to
// what a ranking pass can actually use.
type BadgerStore struct {
	db         *badger.DB
	maxEntries int
}

// Ensure BadgerStore implements ExclusionStore
var _ ExclusionStore = (*BadgerStore)(nil)

// exclusionEntry is the persisted per-track record.
type exclusionEntry struct {
	TrackID string `json:"track_id"`
	Reason  Reason `json:"reason"`
}

// NewBadgerStore creates a BadgerDB-backed exclusion cache.
// maxEntries bounds the per-listener entry list; values <= 0 default to 800.
func NewBadgerStore(db *badger.DB, maxEntries int) *BadgerStore {
	if maxEntries <= 0 {
		maxEntries = 800
	}
	return &BadgerStore{db: db, maxEntries: maxEntries}
}

// ExcludedTrackIDs returns the cached exclusions for a listener, newest
// last. A missing key is an empty set, not an error.
func (s *BadgerStore) ExcludedTrackIDs(_ context.Context, userID string) ([]string, error) {
	var entries []exclusionEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get exclusions: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for i := range entries {
		ids = append(ids, entries[i].TrackID)
	}
	return ids, nil
}

// AddExcluded appends track IDs to the listener's exclusion list,
// deduplicating against existing entries and trimming the oldest entries
// past the cache bound.
func (s *BadgerStore) AddExcluded(_ context.Context, userID string, trackIDs []string, reason Reason) error {
	if len(trackIDs) == 0 {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entries, err := s.readEntries(txn, userID)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(entries))
		for i := range entries {
			seen[entries[i].TrackID] = struct{}{}
		}

		for _, id := range trackIDs {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			entries = append(entries, exclusionEntry{TrackID: id, Reason: reason})
		}

		// Keep the newest entries when over the bound.
		if len(entries) > s.maxEntries {
			entries = entries[len(entries)-s.maxEntries:]
		}

		return s.writeEntries(txn, userID, entries)
	})
}

// RemoveExcluded deletes a single track from the listener's exclusion list.
// Removing an absent track is not an error.
func (s *BadgerStore) RemoveExcluded(_ context.Context, userID, trackID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entries, err := s.readEntries(txn, userID)
		if err != nil {
			return err
		}

		kept := entries[:0]
		for i := range entries {
			if entries[i].TrackID != trackID {
				kept = append(kept, entries[i])
			}
		}
		if len(kept) == len(entries) {
			return nil
		}

		return s.writeEntries(txn, userID, kept)
	})
}

// Clear deletes the listener's entire exclusion list. Maintenance helper;
// nothing in the recommendation path wipes persisted exclusions.
func (s *BadgerStore) Clear(_ context.Context, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(s.key(userID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete exclusions: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) key(userID string) []byte {
	return []byte(exclusionKeyPrefix + userID)
}

func (s *BadgerStore) readEntries(txn *badger.Txn, userID string) ([]exclusionEntry, error) {
	item, err := txn.Get(s.key(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exclusions: %w", err)
	}

	var entries []exclusionEntry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entries)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal exclusions: %w", err)
	}
	return entries, nil
}

func (s *BadgerStore) writeEntries(txn *badger.Txn, userID string, entries []exclusionEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal exclusions: %w", err)
	}
	if err := txn.Set(s.key(userID), data); err != nil {
		return fmt.Errorf("set exclusions: %w", err)
	}
	return nil
}
