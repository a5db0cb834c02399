// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tunebloom/tunebloom/internal/metrics"
	"github.com/tunebloom/tunebloom/internal/spotify"
)

// rankAndSelect filters the candidate pool by the listened set, applies
// the two liveness fallback tiers, then orders the survivors by Euclidean
// distance to the active target profile and truncates to count.
func (e *Engine) rankAndSelect(ctx context.Context, candidates []Track, profile *TasteProfile, feedback *FeedbackProfile, count int) ([]Track, error) {
	working := make([]Track, 0, len(candidates))
	for i := range candidates {
		if !e.exclusions.IsListened(candidates[i].ID) {
			working = append(working, candidates[i])
		}
	}

	// Tier 1: prefer showing repeats over showing nothing.
	if len(working) < e.config.Ranking.MinPoolSize {
		e.logger.Debug().
			Int("filtered", len(working)).
			Int("unfiltered", len(candidates)).
			Msg("pool below minimum, relaxing to unfiltered candidates")
		metrics.FallbackActivations.WithLabelValues("unfiltered").Inc()
		working = append(working[:0:0], candidates...)
	}

	// Tier 2: top up from keyword search when the pool is still thin.
	if len(working) < count/2 || len(working) == 0 {
		metrics.FallbackActivations.WithLabelValues("search").Inc()

		seen := make(map[string]struct{}, len(working))
		for i := range working {
			seen[working[i].ID] = struct{}{}
		}
		fallback := e.searchFallback(ctx, seen)
		e.attachFeatures(ctx, fallback)

		heard := e.heardCache()
		merged := working
		var alreadyListened []Track
		for i := range fallback {
			fallback[i].HeardSamples = e.pickHeardSamples(&fallback[i], heard)
			if e.exclusions.IsListened(fallback[i].ID) {
				alreadyListened = append(alreadyListened, fallback[i])
				continue
			}
			merged = append(merged, fallback[i])
		}

		// Last resort: an empty deck is worse than a repeat.
		if len(merged) == 0 {
			merged = alreadyListened
		}
		working = merged
	}

	if len(working) == 0 {
		return nil, fmt.Errorf("no candidates available, catalog and fallback fetches all failed")
	}

	// Shuffle before scoring so equal-distance candidates do not keep the
	// catalog's incidental order.
	e.shuffle(working)

	target := profile.Audio
	if feedback != nil && !feedback.Audio.IsEmpty() {
		target = feedback.Audio
	}

	// Sort keys carry a jitter below the tie epsilon, so scores that differ
	// by less than the epsilon land in random order while real differences
	// keep their ranking.
	keys := make([]float64, len(working))
	for i := range working {
		working[i].Similarity = e.scoreCandidate(&working[i], target)
		keys[i] = working[i].Similarity + e.jitter(e.config.Ranking.TieEpsilon)
	}

	order := make([]int, len(working))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] < keys[order[j]]
	})

	ranked := make([]Track, 0, count)
	for _, idx := range order {
		if len(ranked) == count {
			break
		}
		ranked = append(ranked, working[idx])
	}
	return ranked, nil
}

// scoreCandidate assigns the similarity distance. No feature vector at all
// means the sentinel distance, placing the candidate last.
func (e *Engine) scoreCandidate(candidate *Track, target FeatureAverages) float64 {
	if candidate.AudioFeatures == nil {
		return e.config.Ranking.SentinelDistance
	}
	dist, _ := featureDistance(candidate.AudioFeatures, target)
	return dist
}

// featureDistance computes the Euclidean distance between a candidate's
// feature vector and a target over exactly danceability, energy and
// valence. A term missing on either side is skipped; the returned term
// count lets callers detect a fully incomparable pair.
func featureDistance(f *spotify.AudioFeatures, target FeatureAverages) (float64, int) {
	sum := 0.0
	terms := 0

	accumulate := func(candidate, tgt *float64) {
		if candidate == nil || tgt == nil {
			return
		}
		d := *candidate - *tgt
		sum += d * d
		terms++
	}

	accumulate(f.Danceability, target.Danceability)
	accumulate(f.Energy, target.Energy)
	accumulate(f.Valence, target.Valence)

	return math.Sqrt(sum), terms
}

// featuresAsAverages projects a feature vector onto the averages shape so
// it can serve as a distance target.
func featuresAsAverages(f *spotify.AudioFeatures) FeatureAverages {
	return FeatureAverages{
		Danceability: f.Danceability,
		Energy:       f.Energy,
		Valence:      f.Valence,
	}
}
