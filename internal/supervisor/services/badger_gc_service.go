// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerGCService periodically runs Badger value-log garbage collection
// for the local exclusion cache. Badger does not GC on its own; without
// this the value log grows unbounded on long-lived deployments.
type BadgerGCService struct {
	db           *badger.DB
	interval     time.Duration
	discardRatio float64
}

// NewBadgerGCService creates the GC service. Non-positive interval
// defaults to 10 minutes; out-of-range discardRatio defaults to 0.5.
func NewBadgerGCService(db *badger.DB, interval time.Duration, discardRatio float64) *BadgerGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &BadgerGCService{
		db:           db,
		interval:     interval,
		discardRatio: discardRatio,
	}
}

// Serve implements suture.Service. ErrNoRewrite means there was nothing
// to collect and is not a failure.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// One GC call rewrites at most one value-log file; loop until
			// there is nothing left to rewrite.
			for {
				err := s.db.RunValueLogGC(s.discardRatio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
						return err
					}
					break
				}
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (s *BadgerGCService) String() string {
	return "badger-gc"
}
