// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package plex

import (
	"strings"
	"time"

	"github.com/tomtom215/concordus/internal/provider"
)

// parseGuids converts Plex guid strings ("tmdb://603") into namespaced
// external ids. Legacy agent guids ("com.plexapp.agents...") are skipped.
func parseGuids(guids []guid) []provider.ExternalID {
	ids := make([]provider.ExternalID, 0, len(guids))
	for _, g := range guids {
		ns, value, ok := strings.Cut(g.ID, "://")
		if !ok || value == "" || strings.Contains(ns, ".") {
			continue
		}
		ids = append(ids, provider.ExternalID{Namespace: ns, Value: value})
	}
	return ids
}

// scaleRating converts Plex's 0-10 star rating to the 0-100 scale.
func scaleRating(r float64) (int, bool) {
	if r <= 0 {
		return 0, false
	}
	return int(r * 10), true
}

func unixTime(ts int64) (time.Time, bool) {
	if ts <= 0 {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}

// movieItem adapts one movie metadata row together with its account-level
// signals.
type movieItem struct {
	meta        metadata
	sectionKey  string
	onWatchlist bool
	review      string
	firstViewed time.Time
}

func (m *movieItem) Kind() provider.Kind { return provider.KindMovie }
func (m *movieItem) Key() string { return m.meta.RatingKey }
func (m *movieItem) Title() string { return m.meta.Title }
func (m *movieItem) ParentTitle() string { return "" }
func (m *movieItem) SectionKey() string { return m.sectionKey }
func (m *movieItem) Season() (int, bool) { return 0, false }
func (m *movieItem) TotalUnits() int { return 1 }
func (m *movieItem) OnWatchlist() bool { return m.onWatchlist }
func (m *movieItem) Review() (string, bool) {
	return m.review, m.review != ""
}

func (m *movieItem) ExternalIDs() []provider.ExternalID {
	return parseGuids(m.meta.Guids)
}

func (m *movieItem) Units() []provider.UnitView {
	if m.meta.ViewCount <= 0 {
		return nil
	}
	viewed, _ := unixTime(m.meta.LastViewedAt)
	first := m.firstViewed
	if first.IsZero() {
		first = viewed
	}
	return []provider.UnitView{{
		Index:         1,
		Views:         m.meta.ViewCount,
		FirstViewedAt: first,
		LastViewedAt:  viewed,
	}}
}

// OnWatching reports active playback: a resume offset mid-item. With
// completed views already recorded it marks a rewatch in progress.
func (m *movieItem) OnWatching() bool {
	return m.meta.ViewOffset > 0
}

func (m *movieItem) UserRating() (int, bool) {
	return scaleRating(m.meta.UserRating)
}

func (m *movieItem) LastViewedAt() (time.Time, bool) {
	return unixTime(m.meta.LastViewedAt)
}

// seasonItem adapts one season together with its episode rows. External ids
// come from the owning show: Plex tracks catalog identity at show level,
// and the mapping graph scopes edges by season index.
type seasonItem struct {
	meta       metadata
	show       metadata
	episodes   []metadata
	sectionKey string

	// onWatchlist and review are show-level account signals.
	onWatchlist bool
	review      string

	// firstViews maps episode rating keys to their earliest recorded view.
	firstViews map[string]time.Time
}

func (s *seasonItem) Kind() provider.Kind { return provider.KindSeason }
func (s *seasonItem) Key() string { return s.meta.RatingKey }
func (s *seasonItem) Title() string { return s.meta.Title }
func (s *seasonItem) ParentTitle() string { return s.show.Title }
func (s *seasonItem) SectionKey() string { return s.sectionKey }
func (s *seasonItem) OnWatchlist() bool { return s.onWatchlist }
func (s *seasonItem) Review() (string, bool) {
	return s.review, s.review != ""
}

func (s *seasonItem) ExternalIDs() []provider.ExternalID {
	return parseGuids(s.show.Guids)
}

func (s *seasonItem) Season() (int, bool) {
	if s.meta.Index <= 0 {
		return 0, false
	}
	return s.meta.Index, true
}

func (s *seasonItem) TotalUnits() int {
	if s.meta.LeafCount > 0 {
		return s.meta.LeafCount
	}
	return len(s.episodes)
}

func (s *seasonItem) Units() []provider.UnitView {
	var units []provider.UnitView
	for _, ep := range s.episodes {
		if ep.ViewCount <= 0 {
			continue
		}
		viewed, _ := unixTime(ep.LastViewedAt)
		first := s.firstViews[ep.RatingKey]
		if first.IsZero() {
			first = viewed
		}
		units = append(units, provider.UnitView{
			Index:         ep.Index,
			Views:         ep.ViewCount,
			FirstViewedAt: first,
			LastViewedAt:  viewed,
		})
	}
	return units
}

// OnWatching reports an episode mid-playback, including a rewatch of an
// already-viewed episode.
func (s *seasonItem) OnWatching() bool {
	for _, ep := range s.episodes {
		if ep.ViewOffset > 0 {
			return true
		}
	}
	return false
}

// UserRating prefers the season's own rating, then the show's.
func (s *seasonItem) UserRating() (int, bool) {
	if r, ok := scaleRating(s.meta.UserRating); ok {
		return r, ok
	}
	return scaleRating(s.show.UserRating)
}

func (s *seasonItem) LastViewedAt() (time.Time, bool) {
	var last time.Time
	for _, ep := range s.episodes {
		if t, ok := unixTime(ep.LastViewedAt); ok && t.After(last) {
			last = t
		}
	}
	if last.IsZero() {
		return unixTime(s.meta.LastViewedAt)
	}
	return last, true
}
