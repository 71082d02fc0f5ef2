// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/mappings"
	"github.com/tomtom215/concordus/internal/provider"
)

// Resolver is the graph lookup consumed during candidate discovery.
type Resolver interface {
	Resolve(ctx context.Context, ids []provider.ExternalID, season int, episodic bool) ([]mappings.Edge, error)
}

// Candidate is a matched tracker entry for one library item.
type Candidate struct {
	// MediaKey is the entry's key in the tracker namespace.
	MediaKey string

	// Window is the matched edge's source-side range; the zero range for
	// fuzzy matches and unqualified edges.
	Window mappings.Range

	// DestWindow is the edge's destination-side range, nil when the edge
	// covers the whole destination entry or the match was fuzzy.
	DestWindow *mappings.Range

	// TrackerUnits is the tracker-side unit total learned during matching,
	// 0 when unknown.
	TrackerUnits int

	// Fuzzy marks candidates found by title search rather than the graph.
	Fuzzy bool

	// Similarity is the title similarity of a fuzzy match, in [0, 1].
	Similarity float64
}

// Matcher performs candidate discovery: graph resolution first, then an
// optional fuzzy title-search fallback against the tracker catalog.
type Matcher struct {
	resolver Resolver
	tracker  provider.Tracker

	// threshold gates the fuzzy fallback: -1 disables it entirely, 0
	// accepts any search result, otherwise the best result must score at
	// least this similarity.
	threshold float64
}

// NewMatcher creates a matcher.
func NewMatcher(resolver Resolver, tracker provider.Tracker, threshold float64) *Matcher {
	return &Matcher{resolver: resolver, tracker: tracker, threshold: threshold}
}

// Find returns the tracker candidate for a library item, or nil when no
// acceptable candidate exists.
func (m *Matcher) Find(ctx context.Context, item provider.LibraryItem, id ItemIdentifier) (*Candidate, error) {
	season, episodic := item.Season()

	edges, err := m.resolver.Resolve(ctx, item.ExternalIDs(), season, episodic)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	for _, e := range edges {
		if e.Destination.Provider != m.tracker.Namespace() {
			continue
		}
		return &Candidate{
			MediaKey:   e.Destination.EntryID,
			Window:     e.SourceRange,
			DestWindow: e.DestRange,
		}, nil
	}

	if m.threshold < 0 {
		return nil, nil
	}
	return m.fuzzyFind(ctx, item, id)
}

// fuzzyFind searches the tracker catalog by title and picks the most
// similar format-compatible result.
func (m *Matcher) fuzzyFind(ctx context.Context, item provider.LibraryItem, id ItemIdentifier) (*Candidate, error) {
	query := id.SearchTitle()
	results, err := m.tracker.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var (
		best    *provider.ListEntry
		bestSim float64
	)
	for i := range results {
		entry := &results[i]
		if !formatCompatible(item, entry) {
			continue
		}
		sim := TitleSimilarity(query, entry.Title)
		if best == nil || sim > bestSim {
			best, bestSim = entry, sim
		}
	}

	if best == nil {
		return nil, nil
	}
	if m.threshold > 0 && bestSim < m.threshold {
		logging.Debug().Str("item", id.String()).Str("candidate", best.Title).
			Float64("similarity", bestSim).Float64("threshold", m.threshold).
			Msg("Best fuzzy candidate below threshold")
		return nil, nil
	}

	return &Candidate{
		MediaKey:     best.MediaKey,
		TrackerUnits: best.Units,
		Fuzzy:        true,
		Similarity:   bestSim,
	}, nil
}

// formatCompatible filters fuzzy candidates by catalog format and unit
// count. A movie only matches movie-format entries; a season only matches
// non-movie entries whose unit total agrees when both sides know it.
func formatCompatible(item provider.LibraryItem, entry *provider.ListEntry) bool {
	isMovie := strings.EqualFold(entry.Format, "movie")
	if item.Kind() == provider.KindMovie {
		return isMovie
	}
	if isMovie {
		return false
	}
	if entry.Units > 0 && item.TotalUnits() > 0 && entry.Units != item.TotalUnits() {
		return false
	}
	return true
}
