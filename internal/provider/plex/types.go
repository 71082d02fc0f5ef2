// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package plex

// mediaContainerResponse is the envelope every Plex endpoint returns.
type mediaContainerResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	Size      int         `json:"size"`
	Directory []directory `json:"Directory,omitempty"`
	Metadata  []metadata  `json:"Metadata,omitempty"`
}

// directory is one library section.
type directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// metadata is one catalog item: a movie, show, season, or episode,
// distinguished by Type.
type metadata struct {
	RatingKey string `json:"ratingKey"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Title     string `json:"title"`

	// GUID is the item's cloud catalog id, "plex://movie/<id>". The
	// account-level watchlist and review services key on it.
	GUID string `json:"guid,omitempty"`

	// ParentTitle/GrandparentTitle climb the episode -> season -> show
	// hierarchy.
	ParentTitle      string `json:"parentTitle,omitempty"`
	GrandparentTitle string `json:"grandparentTitle,omitempty"`

	// Index is the season number for seasons and the episode number for
	// episodes.
	Index       int `json:"index,omitempty"`
	ParentIndex int `json:"parentIndex,omitempty"`

	LeafCount int `json:"leafCount,omitempty"`

	ViewCount    int     `json:"viewCount,omitempty"`
	ViewOffset   int64   `json:"viewOffset,omitempty"`
	LastViewedAt int64   `json:"lastViewedAt,omitempty"`
	UserRating   float64 `json:"userRating,omitempty"`

	// ViewedAt is set on playback-history rows only.
	ViewedAt int64 `json:"viewedAt,omitempty"`

	Guids []guid `json:"Guid,omitempty"`
}

// reviewResponse is the community API's GraphQL envelope for one written
// review.
type reviewResponse struct {
	Data struct {
		Review struct {
			Message string `json:"message"`
		} `json:"metadataReviewV2"`
	} `json:"data"`
}

// guid is one namespaced external identifier, e.g. "tmdb://603".
type guid struct {
	ID string `json:"id"`
}
