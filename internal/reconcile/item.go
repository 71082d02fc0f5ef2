// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"fmt"

	"github.com/tomtom215/concordus/internal/provider"
)

// ItemIdentifier carries enough context about a library entity to render a
// human-readable log or audit line without re-querying the library.
type ItemIdentifier struct {
	Namespace   string
	SectionKey  string
	MediaKey    string
	Kind        provider.Kind
	Title       string
	ParentTitle string
	Season      int
}

// IdentifyItem builds an identifier from a library item.
func IdentifyItem(namespace string, item provider.LibraryItem) ItemIdentifier {
	id := ItemIdentifier{
		Namespace:   namespace,
		SectionKey:  item.SectionKey(),
		MediaKey:    item.Key(),
		Kind:        item.Kind(),
		Title:       item.Title(),
		ParentTitle: item.ParentTitle(),
	}
	if season, ok := item.Season(); ok {
		id.Season = season
	}
	return id
}

// String renders the identifier for log lines: "Show - Season 1" for
// seasons, the bare title for movies.
func (id ItemIdentifier) String() string {
	if id.Kind == provider.KindSeason && id.ParentTitle != "" {
		return fmt.Sprintf("%s - Season %d", id.ParentTitle, id.Season)
	}
	return id.Title
}

// SearchTitle is the title used for fuzzy catalog search. Seasons search by
// show title since tracker catalogs key seasons under the show name.
func (id ItemIdentifier) SearchTitle() string {
	if id.Kind == provider.KindSeason && id.ParentTitle != "" {
		return id.ParentTitle
	}
	return id.Title
}
