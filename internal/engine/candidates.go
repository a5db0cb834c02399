// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sort"
	"time"

	"github.com/tunebloom/tunebloom/internal/metrics"
	"github.com/tunebloom/tunebloom/internal/spotify"
)

// energyRangeHalfWidth is the base half-width of batch C's energy window,
// widened by the vibe offset.
const energyRangeHalfWidth = 0.2

// fetchCandidates gathers a deduplicated candidate pool from up to four
// seeded recommendation batches. It filters nothing itself; exclusion
// filtering belongs to the ranking stage. A seedless profile skips
// straight to the keyword-search fallback so brand-new accounts still get
// a deck.
func (e *Engine) fetchCandidates(ctx context.Context, profile *TasteProfile, feedback *FeedbackProfile, shift float64) []Track {
	seedTracks := profile.SeedTracks
	seedArtists := profile.SeedArtists
	seedGenres := profile.TopGenres
	audio := profile.Audio

	// Session feedback supersedes the historical profile wherever present.
	if feedback != nil {
		if len(feedback.SeedTracks) > 0 {
			seedTracks = feedback.SeedTracks
		}
		if len(feedback.SeedArtists) > 0 {
			seedArtists = feedback.SeedArtists
		}
		if len(feedback.TopGenres) > 0 {
			seedGenres = feedback.TopGenres
		}
		if !feedback.Audio.IsEmpty() {
			audio = feedback.Audio
		}
	}

	batches := e.buildBatches(seedTracks, seedArtists, seedGenres, audio, shift)

	seen := make(map[string]struct{})
	var candidates []Track

	issued := 0
	for _, params := range batches {
		if !params.HasSeeds() {
			continue
		}
		if issued > 0 {
			e.pace(ctx)
		}
		issued++

		tracks, err := e.catalog.GetRecommendations(ctx, params)
		if err != nil {
			e.logger.Warn().Err(err).Msg("recommendation batch failed")
			continue
		}
		metrics.CandidatesFetched.WithLabelValues("seeded").Add(float64(len(tracks)))

		for i := range tracks {
			if tracks[i].ID == "" {
				continue
			}
			if _, ok := seen[tracks[i].ID]; ok {
				continue
			}
			seen[tracks[i].ID] = struct{}{}
			candidates = append(candidates, Track{Track: tracks[i]})
		}
	}

	if issued == 0 {
		candidates = e.searchFallback(ctx, seen)
	}

	e.attachFeatures(ctx, candidates)

	heard := e.heardCache()
	for i := range candidates {
		candidates[i].HeardSamples = e.pickHeardSamples(&candidates[i], heard)
	}

	return candidates
}

// buildBatches parameterizes the four seeded batches:
//
//	A: track seeds plus up to two artists, targeting averaged
//	   danceability, energy and valence.
//	B: genre seeds plus up to two artists, targets nudged by the vibe
//	   offset.
//	C: a different track-seed slice with an energy range instead of a
//	   point target, widened by the vibe offset.
//	D: track and artist seeds targeting tempo.
func (e *Engine) buildBatches(seedTracks, seedArtists, seedGenres []string, audio FeatureAverages, shift float64) []*spotify.RecommendationParams {
	limits := e.config.Candidates.BatchLimits

	batchA := &spotify.RecommendationParams{
		SeedTracks:         headOf(seedTracks, 3),
		SeedArtists:        headOf(seedArtists, 2),
		Limit:              limits[0],
		TargetDanceability: audio.Danceability,
		TargetEnergy:       audio.Energy,
		TargetValence:      audio.Valence,
	}

	batchB := &spotify.RecommendationParams{
		SeedGenres:         headOf(seedGenres, 3),
		SeedArtists:        headOf(seedArtists, 2),
		Limit:              limits[1],
		TargetDanceability: nudged(audio.Danceability, shift),
		TargetEnergy:       nudged(audio.Energy, shift),
	}

	batchC := &spotify.RecommendationParams{
		SeedTracks: sliceOf(seedTracks, 2, 5),
		Limit:      limits[2],
	}
	if audio.Energy != nil {
		halfWidth := energyRangeHalfWidth + shift
		batchC.MinEnergy = clamped(*audio.Energy - halfWidth)
		batchC.MaxEnergy = clamped(*audio.Energy + halfWidth)
	}

	batchD := &spotify.RecommendationParams{
		SeedTracks:         headOf(seedTracks, 3),
		SeedArtists:        headOf(seedArtists, 2),
		Limit:              limits[3],
		TargetTempo:        audio.Tempo,
		TargetDanceability: audio.Danceability,
	}

	return []*spotify.RecommendationParams{batchA, batchB, batchC, batchD}
}

// searchFallback gathers candidates from the fixed keyword queries against
// the text-search endpoint. seen carries already collected IDs so merged
// fallback results stay deduplicated.
func (e *Engine) searchFallback(ctx context.Context, seen map[string]struct{}) []Track {
	var candidates []Track

	for qi, query := range e.config.Candidates.FallbackQueries {
		if qi > 0 {
			e.pace(ctx)
		}

		tracks, err := e.catalog.SearchTracks(ctx, query, e.config.Candidates.FallbackLimit, 0)
		if err != nil {
			e.logger.Warn().Err(err).Str("query", query).Msg("fallback search failed")
			continue
		}
		metrics.CandidatesFetched.WithLabelValues("search_fallback").Add(float64(len(tracks)))

		for i := range tracks {
			if tracks[i].ID == "" {
				continue
			}
			if _, ok := seen[tracks[i].ID]; ok {
				continue
			}
			seen[tracks[i].ID] = struct{}{}
			candidates = append(candidates, Track{Track: tracks[i]})
		}
	}

	return candidates
}

// pace sleeps between consecutive catalog fetches to respect the external
// rate budget, waking early on context cancellation.
func (e *Engine) pace(ctx context.Context) {
	if e.config.Candidates.BatchPacing <= 0 {
		return
	}
	timer := time.NewTimer(e.config.Candidates.BatchPacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// pickHeardSamples chooses heard-track projections for a candidate. With
// a feature vector present, heard tracks are scored by feature distance
// minus a genre-overlap bonus; without one the samples are random.
func (e *Engine) pickHeardSamples(candidate *Track, heard []Track) []HeardSample {
	if len(heard) == 0 {
		return nil
	}
	sampleCount := e.config.Candidates.HeardSamples
	if sampleCount <= 0 {
		return nil
	}

	if candidate.AudioFeatures == nil {
		return e.randomHeardSamples(heard, sampleCount)
	}

	type scored struct {
		index int
		score float64
	}
	var scorable []scored
	for i := range heard {
		if heard[i].AudioFeatures == nil {
			continue
		}
		dist, terms := featureDistance(candidate.AudioFeatures, featuresAsAverages(heard[i].AudioFeatures))
		if terms == 0 {
			continue
		}
		overlap := genreOverlap(candidate.Artists, heard[i].Artists)
		scorable = append(scorable, scored{index: i, score: dist - 0.1*float64(overlap)})
	}

	if len(scorable) == 0 {
		return e.randomHeardSamples(heard, sampleCount)
	}

	sort.SliceStable(scorable, func(i, j int) bool {
		return scorable[i].score < scorable[j].score
	})
	if len(scorable) > sampleCount {
		scorable = scorable[:sampleCount]
	}

	samples := make([]HeardSample, 0, len(scorable))
	for _, s := range scorable {
		samples = append(samples, heardSampleOf(&heard[s.index]))
	}
	return samples
}

// randomHeardSamples picks up to n distinct random heard tracks.
func (e *Engine) randomHeardSamples(heard []Track, n int) []HeardSample {
	if n > len(heard) {
		n = len(heard)
	}

	picked := make(map[int]struct{}, n)
	samples := make([]HeardSample, 0, n)
	for len(samples) < n {
		idx := e.randomIndex(len(heard))
		if _, ok := picked[idx]; ok {
			continue
		}
		picked[idx] = struct{}{}
		samples = append(samples, heardSampleOf(&heard[idx]))
	}
	return samples
}

func heardSampleOf(t *Track) HeardSample {
	return HeardSample{
		ID:      t.ID,
		Name:    t.Name,
		Artists: t.ArtistNames(),
	}
}

// genreOverlap counts genre tags shared between two artist lists.
func genreOverlap(a, b []spotify.Artist) int {
	tags := make(map[string]struct{})
	for i := range a {
		for _, genre := range a[i].Genres {
			tags[genre] = struct{}{}
		}
	}

	overlap := 0
	for i := range b {
		for _, genre := range b[i].Genres {
			if _, ok := tags[genre]; ok {
				overlap++
			}
		}
	}
	return overlap
}

// headOf returns the first n elements, or fewer when the slice is short.
func headOf(s []string, n int) []string {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

// sliceOf returns s[from:to] clamped to the slice's bounds.
func sliceOf(s []string, from, to int) []string {
	if from > len(s) {
		from = len(s)
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// nudged offsets a target value by the vibe shift, clamped to [0,1].
// A nil target stays nil.
func nudged(v *float64, shift float64) *float64 {
	if v == nil {
		return nil
	}
	return clamped(*v + shift)
}

// clamped bounds a value to [0,1] and returns a pointer to it.
func clamped(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}
