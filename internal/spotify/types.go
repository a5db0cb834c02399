// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package spotify

// User represents the authenticated listener.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Image is an album or artist cover image.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist represents an artist record attached to a track or returned from
// the top-artists endpoint. Genres is only populated on full artist objects;
// a missing field decodes to an empty list.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres,omitempty"`
}

// Album holds track album metadata.
type Album struct {
	Name        string  `json:"name"`
	Images      []Image `json:"images,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
}

// Track is an immutable catalog track snapshot.
type Track struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	URI     string   `json:"uri,omitempty"`
	Artists []Artist `json:"artists,omitempty"`
	Album   Album    `json:"album,omitempty"`
}

// ArtistNames returns a display string joining the track's artist names.
func (t *Track) ArtistNames() string {
	switch len(t.Artists) {
	case 0:
		return ""
	case 1:
		return t.Artists[0].Name
	}

	names := t.Artists[0].Name
	for _, a := range t.Artists[1:] {
		names += ", " + a.Name
	}
	return names
}

// AudioFeatures is the per-track audio analysis vector. The six unit-range
// signals are pointers because the catalog may omit individual values; a
// nil field means "unknown", which scoring must skip rather than treat as
// zero. Tempo is in beats per minute.
type AudioFeatures struct {
	ID               string   `json:"id"`
	Danceability     *float64 `json:"danceability"`
	Energy           *float64 `json:"energy"`
	Valence          *float64 `json:"valence"`
	Acousticness     *float64 `json:"acousticness"`
	Instrumentalness *float64 `json:"instrumentalness"`
	Speechiness      *float64 `json:"speechiness"`
	Tempo            *float64 `json:"tempo"`
}

// Playlist is a listener playlist summary.
type Playlist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// TimeRange selects the listening-history window for top-item endpoints.
type TimeRange string

const (
	// RangeShortTerm covers roughly the last 4 weeks.
	RangeShortTerm TimeRange = "short_term"
	// RangeMediumTerm covers roughly the last 6 months.
	RangeMediumTerm TimeRange = "medium_term"
	// RangeLongTerm covers several years of history.
	RangeLongTerm TimeRange = "long_term"
)

// RecommendationParams parameterizes a seeded recommendation request.
// All target/min/max constraints are optional; nil means unconstrained.
type RecommendationParams struct {
	SeedTracks  []string
	SeedArtists []string
	SeedGenres  []string
	Limit       int

	TargetDanceability *float64
	TargetEnergy       *float64
	TargetValence      *float64
	TargetTempo        *float64
	MinEnergy          *float64
	MaxEnergy          *float64
}

// HasSeeds reports whether at least one seed list is non-empty. The
// recommendation endpoint rejects entirely seedless requests.
func (p *RecommendationParams) HasSeeds() bool {
	return len(p.SeedTracks) > 0 || len(p.SeedArtists) > 0 || len(p.SeedGenres) > 0
}

// pagedTracks is the generic wrapper for endpoints returning {items: [...]}.
type pagedTracks struct {
	Items []Track `json:"items"`
}

// savedTracksPage wraps the saved-library endpoint's nested track items.
type savedTracksPage struct {
	Items []struct {
		Track Track `json:"track"`
	} `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// playHistoryPage wraps the recently-played endpoint response.
type playHistoryPage struct {
	Items []struct {
		Track Track `json:"track"`
	} `json:"items"`
}

// artistsPage wraps the top-artists endpoint response.
type artistsPage struct {
	Items []Artist `json:"items"`
}

// playlistsPage wraps the user-playlists endpoint response.
type playlistsPage struct {
	Items []Playlist `json:"items"`
}

// playlistTracksPage wraps the playlist-tracks endpoint response. Track is
// a pointer because deleted or local tracks decode to null.
type playlistTracksPage struct {
	Items []struct {
		Track *Track `json:"track"`
	} `json:"items"`
	Total int `json:"total"`
}

// audioFeaturesResponse wraps the bulk audio-features endpoint. Entries are
// nil for identifiers the catalog has no analysis for.
type audioFeaturesResponse struct {
	AudioFeatures []*AudioFeatures `json:"audio_features"`
}

// recommendationsResponse wraps the seeded-recommendation endpoint.
type recommendationsResponse struct {
	Tracks []Track `json:"tracks"`
}

// searchResponse wraps the track-search endpoint.
type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

// apiError is the catalog's error envelope.
type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}
