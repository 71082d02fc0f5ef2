// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package provider defines the capability interfaces consumed by the
// reconciliation engine: read-only views over a playback library and
// read/write views over a tracking-service list.
//
// Concrete implementations register themselves by namespace; the engine only
// ever sees the interface values constructed once at startup.
package provider

import (
	"context"
	"time"
)

// ExternalID is a namespaced catalog identifier, e.g. {tmdb 603}.
type ExternalID struct {
	Namespace string
	Value     string
}

// Kind distinguishes the two reconcilable library entities.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeason Kind = "season"
)

// Section is one library section (a Plex library, a shelf, ...).
type Section struct {
	Key   string
	Title string
	Type  string
}

// ListOptions narrows a section listing.
type ListOptions struct {
	// ModifiedSince limits results to items modified after the given time.
	// The zero time means no limit.
	ModifiedSince time.Time

	// OnlyWatched limits results to items with at least one view.
	OnlyWatched bool

	// Keys limits results to specific library keys.
	Keys []string
}

// UnitView is the view evidence for one covered sub-unit (an episode, or the
// single unit of a movie).
type UnitView struct {
	// Index is the 1-based unit index within the item.
	Index int

	// Views is the recorded view count for this unit.
	Views int

	// FirstViewedAt / LastViewedAt bracket the unit's playback history.
	// Zero when no explicit history record exists.
	FirstViewedAt time.Time
	LastViewedAt  time.Time
}

// LibraryItem is the read-only capability surface of one reconcilable
// library entity: a movie, or one season of a show.
type LibraryItem interface {
	Kind() Kind

	// Key is the item's stable key in the library namespace.
	Key() string

	Title() string

	// ParentTitle is the show title for seasons; empty for movies.
	ParentTitle() string

	// SectionKey is the key of the containing library section.
	SectionKey() string

	// ExternalIDs returns the item's known catalog identifiers.
	ExternalIDs() []ExternalID

	// Season returns the 1-based season index. ok is false for movies.
	Season() (index int, ok bool)

	// TotalUnits is the known sub-unit count: episodes for a season, 1 for
	// a movie.
	TotalUnits() int

	// Units returns view evidence per covered sub-unit, in unit order.
	// Units with zero views may be omitted.
	Units() []UnitView

	// OnWatching reports the library's continue-watching signal.
	OnWatching() bool

	// OnWatchlist reports the library's watchlist signal.
	OnWatchlist() bool

	// UserRating is the viewer's rating on a 0-100 scale.
	UserRating() (rating int, ok bool)

	// Review is the viewer's free-text review, most specific in scope.
	Review() (text string, ok bool)

	// LastViewedAt is the item-level last-viewed timestamp, used as a
	// fallback when a unit has no explicit history record.
	LastViewedAt() (t time.Time, ok bool)
}

// Library is the read-only capability surface of the playback library.
type Library interface {
	// Namespace identifies the library's identifier namespace, e.g. "plex".
	Namespace() string

	Sections(ctx context.Context) ([]Section, error)

	Items(ctx context.Context, section Section, opts ListOptions) ([]LibraryItem, error)

	// Reinit refreshes sessions and clears client caches. Called by the
	// scheduler's reinit cycle.
	Reinit(ctx context.Context) error
}

// ListEntry is a tracking-list entry together with its catalog metadata.
type ListEntry struct {
	// Namespace is the tracker's identifier namespace, e.g. "anilist".
	Namespace string

	// MediaKey is the entry's key in the tracker namespace.
	MediaKey string

	Title string

	// Format is the tracker-side catalog format, e.g. "MOVIE", "TV".
	Format string

	// Units is the tracker-side known sub-unit total (episodes). Zero when
	// unknown.
	Units int

	// Snapshot holds the entry's mutable tracking fields.
	Snapshot EntrySnapshot
}

// EntryUpdate pairs a media key with its desired snapshot for batch updates.
type EntryUpdate struct {
	MediaKey string
	Snapshot EntrySnapshot
}

// Tracker is the read/write capability surface of a watch-list tracking
// service.
type Tracker interface {
	Namespace() string

	// GetEntry returns the viewer's list entry for a media key, or nil when
	// the item is untracked.
	GetEntry(ctx context.Context, mediaKey string) (*ListEntry, error)

	// UpdateEntry creates or updates the entry for a media key.
	UpdateEntry(ctx context.Context, mediaKey string, snap EntrySnapshot) error

	// UpdateEntries applies a batch of updates in one remote call.
	UpdateEntries(ctx context.Context, updates []EntryUpdate) error

	DeleteEntry(ctx context.Context, mediaKey string) error

	// Search performs a catalog title search.
	Search(ctx context.Context, query string) ([]ListEntry, error)

	// BackupList serializes the viewer's entire list.
	BackupList(ctx context.Context) ([]byte, error)

	// RestoreList re-applies a previously taken backup.
	RestoreList(ctx context.Context, blob []byte) error

	// Reinit refreshes credentials/sessions and clears the entry cache.
	Reinit(ctx context.Context) error
}
