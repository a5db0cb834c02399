// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"sort"

	"github.com/tunebloom/tunebloom/internal/spotify"
	"github.com/tunebloom/tunebloom/internal/store"
)

// historyWindows are the three top-track windows whose union forms the
// reference set.
var historyWindows = []spotify.TimeRange{
	spotify.RangeShortTerm,
	spotify.RangeMediumTerm,
	spotify.RangeLongTerm,
}

// buildProfile derives the taste profile from listening history. Every
// external call is individually guarded: a failure degrades that
// sub-result to empty rather than aborting the build. Only a listener with
// no history at all yields a seedless profile, which downstream skips the
// seeded batches entirely.
//
// Returns the profile, the heard-track cache (reference tracks with their
// features attached) and the listener identity.
func (e *Engine) buildProfile(ctx context.Context, sessionLikedIDs []string) (*TasteProfile, []Track, string, error) {
	// A rebuild starts from clean derived sets.
	e.exclusions.Clear()

	// Listener identity, best-effort. Without it the exclusion store has
	// no key and persistence is skipped.
	userID := ""
	if user, err := e.catalog.GetCurrentUser(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("fetching listener identity failed")
	} else {
		userID = user.ID
	}
	e.exclusions.SetUserID(userID)
	e.exclusions.LoadPersisted(ctx)

	reference := e.gatherReferenceTracks(ctx)

	heard := e.fetchReferenceFeatures(ctx, reference)
	audio := averageFeatures(heard)

	seedArtists, topGenres := e.gatherArtistSeeds(ctx)

	// The listened union: everything the listener has already encountered,
	// persisted by provenance so future sessions inherit it.
	referenceIDs := trackIDs(reference)
	e.exclusions.MergeFromSource(ctx, referenceIDs, store.ReasonInLibrary)
	e.exclusions.MergeFromSource(ctx, e.gatherSavedIDs(ctx), store.ReasonInLibrary)
	e.exclusions.MergeFromSource(ctx, e.gatherRecentIDs(ctx), store.ReasonRecentlyPlayed)
	e.exclusions.MergeInMemory(sessionLikedIDs)
	e.exclusions.MergeFromSource(ctx, e.gatherPlaylistIDs(ctx), store.ReasonInLibrary)

	seedCount := e.config.Profile.SeedTracks
	if seedCount > len(referenceIDs) {
		seedCount = len(referenceIDs)
	}

	profile := &TasteProfile{
		Audio:       audio,
		SeedTracks:  referenceIDs[:seedCount],
		SeedArtists: seedArtists,
		TopGenres:   topGenres,
	}

	e.logger.Info().
		Int("reference_tracks", len(reference)).
		Int("seed_artists", len(seedArtists)).
		Strs("top_genres", topGenres).
		Bool("has_audio", !audio.IsEmpty()).
		Msg("taste profile built")

	return profile, heard, userID, nil
}

// gatherReferenceTracks unions top tracks across the three history
// windows, deduplicated by ID. Empty results fall back to saved tracks,
// then to recently played.
func (e *Engine) gatherReferenceTracks(ctx context.Context) []spotify.Track {
	seen := make(map[string]struct{})
	var reference []spotify.Track

	for _, window := range historyWindows {
		tracks, err := e.catalog.GetTopTracks(ctx, window, e.config.Profile.TopTracksLimit)
		if err != nil {
			e.logger.Warn().Err(err).Str("window", string(window)).Msg("fetching top tracks failed")
			continue
		}
		for i := range tracks {
			if _, ok := seen[tracks[i].ID]; ok || tracks[i].ID == "" {
				continue
			}
			seen[tracks[i].ID] = struct{}{}
			reference = append(reference, tracks[i])
		}
	}

	if len(reference) == 0 {
		saved, _, err := e.catalog.GetSavedTracks(ctx, e.config.Profile.SavedPageSize, 0)
		if err != nil {
			e.logger.Warn().Err(err).Msg("saved-tracks fallback failed")
		} else {
			reference = dedupTracks(saved)
		}
	}

	if len(reference) == 0 {
		recent, err := e.catalog.GetRecentlyPlayed(ctx, e.config.Profile.RecentlyPlayedLimit)
		if err != nil {
			e.logger.Warn().Err(err).Msg("recently-played fallback failed")
		} else {
			reference = dedupTracks(recent)
		}
	}

	return reference
}

// fetchReferenceFeatures fetches audio features for up to the configured
// cap of reference tracks, chunked, tolerating partial chunk failures.
// The result is the heard-track cache: each entry pairs a reference track
// with whatever feature vector the catalog reported.
func (e *Engine) fetchReferenceFeatures(ctx context.Context, reference []spotify.Track) []Track {
	capped := reference
	if len(capped) > e.config.Profile.MaxReferenceTracks {
		capped = capped[:e.config.Profile.MaxReferenceTracks]
	}

	heard := make([]Track, 0, len(capped))
	for i := range capped {
		heard = append(heard, Track{Track: capped[i]})
	}

	e.attachFeatures(ctx, heard)
	return heard
}

// attachFeatures fetches feature vectors for the given tracks in chunks
// and attaches them positionally. A failed chunk leaves its tracks with an
// absent vector.
func (e *Engine) attachFeatures(ctx context.Context, tracks []Track) {
	chunkSize := e.config.Candidates.FeatureChunkSize

	for start := 0; start < len(tracks); start += chunkSize {
		end := start + chunkSize
		if end > len(tracks) {
			end = len(tracks)
		}
		chunk := tracks[start:end]

		ids := make([]string, 0, len(chunk))
		for i := range chunk {
			ids = append(ids, chunk[i].ID)
		}

		features, err := e.catalog.GetAudioFeatures(ctx, ids)
		if err != nil {
			e.logger.Warn().Err(err).Int("chunk_start", start).Msg("fetching audio features failed")
			continue
		}
		for i := range chunk {
			if i < len(features) {
				chunk[i].AudioFeatures = features[i]
			}
		}
	}
}

// gatherArtistSeeds fetches top artists and derives the genre frequency
// ranking. Genre ties keep input order (stable sort).
func (e *Engine) gatherArtistSeeds(ctx context.Context) (seedArtists, topGenres []string) {
	artists, err := e.catalog.GetTopArtists(ctx, spotify.RangeMediumTerm, e.config.Profile.TopArtistsLimit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("fetching top artists failed")
		return nil, nil
	}

	for i := range artists {
		if artists[i].ID != "" {
			seedArtists = append(seedArtists, artists[i].ID)
		}
	}

	genreCount := make(map[string]int)
	var genreOrder []string
	for i := range artists {
		for _, genre := range artists[i].Genres {
			if genreCount[genre] == 0 {
				genreOrder = append(genreOrder, genre)
			}
			genreCount[genre]++
		}
	}

	sort.SliceStable(genreOrder, func(i, j int) bool {
		return genreCount[genreOrder[i]] > genreCount[genreOrder[j]]
	})
	if len(genreOrder) > e.config.Profile.TopGenres {
		genreOrder = genreOrder[:e.config.Profile.TopGenres]
	}

	return seedArtists, genreOrder
}

// gatherSavedIDs walks the saved library up to the configured cap.
func (e *Engine) gatherSavedIDs(ctx context.Context) []string {
	var ids []string
	pageSize := e.config.Profile.SavedPageSize

	for offset := 0; offset < e.config.Profile.SavedTracksCap; offset += pageSize {
		tracks, total, err := e.catalog.GetSavedTracks(ctx, pageSize, offset)
		if err != nil {
			e.logger.Warn().Err(err).Int("offset", offset).Msg("fetching saved tracks failed")
			break
		}
		ids = append(ids, trackIDs(tracks)...)
		if offset+pageSize >= total || len(tracks) == 0 {
			break
		}
	}
	return ids
}

// gatherRecentIDs fetches recently played track IDs.
func (e *Engine) gatherRecentIDs(ctx context.Context) []string {
	tracks, err := e.catalog.GetRecentlyPlayed(ctx, e.config.Profile.RecentlyPlayedLimit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("fetching recently played failed")
		return nil
	}
	return trackIDs(tracks)
}

// gatherPlaylistIDs samples tracks from the listener's playlists, bounded
// per playlist and overall to keep build latency proportional.
func (e *Engine) gatherPlaylistIDs(ctx context.Context) []string {
	playlists, err := e.catalog.GetPlaylists(ctx, e.config.Profile.PlaylistLimit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("fetching playlists failed")
		return nil
	}

	var ids []string
	for i := range playlists {
		if len(ids) >= e.config.Profile.PlaylistOverallCap {
			break
		}
		tracks, err := e.catalog.GetPlaylistTracks(ctx, playlists[i].ID, e.config.Profile.PlaylistTrackCap, 0)
		if err != nil {
			e.logger.Warn().Err(err).Str("playlist_id", playlists[i].ID).Msg("fetching playlist tracks failed")
			continue
		}
		remaining := e.config.Profile.PlaylistOverallCap - len(ids)
		if len(tracks) > remaining {
			tracks = tracks[:remaining]
		}
		ids = append(ids, trackIDs(tracks)...)
	}
	return ids
}

// maxTracksPerLookup matches the catalog's batch cap on the track
// metadata endpoint.
const maxTracksPerLookup = 50

// hydrateLiked fills in catalog metadata and feature vectors for liked
// tracks the caller submitted as bare IDs. The feedback profile needs
// artist and genre tags to seed batches; a failed lookup degrades to
// track seeds only.
func (e *Engine) hydrateLiked(ctx context.Context, liked []Track) []Track {
	var missing []string
	for i := range liked {
		if liked[i].ID != "" && len(liked[i].Artists) == 0 {
			missing = append(missing, liked[i].ID)
		}
	}
	if len(missing) == 0 {
		return liked
	}

	byID := make(map[string]spotify.Track, len(missing))
	for start := 0; start < len(missing); start += maxTracksPerLookup {
		end := start + maxTracksPerLookup
		if end > len(missing) {
			end = len(missing)
		}
		tracks, err := e.catalog.GetTracks(ctx, missing[start:end])
		if err != nil {
			e.logger.Warn().Err(err).Msg("liked track lookup failed, keeping bare ids")
			break
		}
		for i := range tracks {
			byID[tracks[i].ID] = tracks[i]
		}
	}
	if len(byID) == 0 {
		return liked
	}

	hydrated := make([]Track, len(liked))
	copy(hydrated, liked)
	for i := range hydrated {
		if len(hydrated[i].Artists) > 0 {
			continue
		}
		if full, ok := byID[hydrated[i].ID]; ok {
			hydrated[i].Track = full
		}
	}

	// Fetch vectors only for tracks the caller sent without one.
	var bare []int
	for i := range hydrated {
		if hydrated[i].ID != "" && hydrated[i].AudioFeatures == nil {
			bare = append(bare, i)
		}
	}
	if len(bare) > 0 {
		sub := make([]Track, len(bare))
		for j, i := range bare {
			sub[j] = hydrated[i]
		}
		e.attachFeatures(ctx, sub)
		for j, i := range bare {
			hydrated[i].AudioFeatures = sub[j].AudioFeatures
		}
	}

	return hydrated
}

// buildFeedbackProfile derives a profile from the session's liked tracks:
// the five most recent as seeds, the most common artists, the most common
// genre tags, and feature averages over the liked tracks' vectors.
func (e *Engine) buildFeedbackProfile(liked []Track) *FeedbackProfile {
	if len(liked) == 0 {
		return nil
	}

	// Most recent likes first.
	seedTracks := make([]string, 0, 5)
	for i := len(liked) - 1; i >= 0 && len(seedTracks) < 5; i-- {
		if liked[i].ID != "" {
			seedTracks = append(seedTracks, liked[i].ID)
		}
	}

	artistCount := make(map[string]int)
	var artistOrder []string
	genreCount := make(map[string]int)
	var genreOrder []string
	for i := range liked {
		for _, artist := range liked[i].Artists {
			if artist.ID == "" {
				continue
			}
			if artistCount[artist.ID] == 0 {
				artistOrder = append(artistOrder, artist.ID)
			}
			artistCount[artist.ID]++
			for _, genre := range artist.Genres {
				if genreCount[genre] == 0 {
					genreOrder = append(genreOrder, genre)
				}
				genreCount[genre]++
			}
		}
	}

	sort.SliceStable(artistOrder, func(i, j int) bool {
		return artistCount[artistOrder[i]] > artistCount[artistOrder[j]]
	})
	if len(artistOrder) > 5 {
		artistOrder = artistOrder[:5]
	}

	sort.SliceStable(genreOrder, func(i, j int) bool {
		return genreCount[genreOrder[i]] > genreCount[genreOrder[j]]
	})
	if len(genreOrder) > 5 {
		genreOrder = genreOrder[:5]
	}

	return &FeedbackProfile{
		Audio:       averageFeatures(liked),
		SeedTracks:  seedTracks,
		SeedArtists: artistOrder,
		TopGenres:   genreOrder,
	}
}

// averageFeatures computes the feature-wise arithmetic mean over tracks
// reporting a non-nil value for each feature. A feature absent from every
// track stays nil.
func averageFeatures(tracks []Track) FeatureAverages {
	type accumulator struct {
		sum   float64
		count int
	}

	var dance, energy, valence, acoustic, instrumental, speech, tempo accumulator

	add := func(acc *accumulator, v *float64) {
		if v != nil {
			acc.sum += *v
			acc.count++
		}
	}

	for i := range tracks {
		f := tracks[i].AudioFeatures
		if f == nil {
			continue
		}
		add(&dance, f.Danceability)
		add(&energy, f.Energy)
		add(&valence, f.Valence)
		add(&acoustic, f.Acousticness)
		add(&instrumental, f.Instrumentalness)
		add(&speech, f.Speechiness)
		add(&tempo, f.Tempo)
	}

	mean := func(acc accumulator) *float64 {
		if acc.count == 0 {
			return nil
		}
		v := acc.sum / float64(acc.count)
		return &v
	}

	return FeatureAverages{
		Danceability:     mean(dance),
		Energy:           mean(energy),
		Valence:          mean(valence),
		Acousticness:     mean(acoustic),
		Instrumentalness: mean(instrumental),
		Speechiness:      mean(speech),
		Tempo:            mean(tempo),
	}
}

// trackIDs extracts the non-empty IDs of a track list.
func trackIDs(tracks []spotify.Track) []string {
	ids := make([]string, 0, len(tracks))
	for i := range tracks {
		if tracks[i].ID != "" {
			ids = append(ids, tracks[i].ID)
		}
	}
	return ids
}

// dedupTracks removes duplicate and empty IDs, preserving order.
func dedupTracks(tracks []spotify.Track) []spotify.Track {
	seen := make(map[string]struct{}, len(tracks))
	out := make([]spotify.Track, 0, len(tracks))
	for i := range tracks {
		if tracks[i].ID == "" {
			continue
		}
		if _, ok := seen[tracks[i].ID]; ok {
			continue
		}
		seen[tracks[i].ID] = struct{}{}
		out = append(out, tracks[i])
	}
	return out
}
