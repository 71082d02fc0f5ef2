// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"time"

	"github.com/tomtom215/concordus/internal/mappings"
	"github.com/tomtom215/concordus/internal/provider"
)

// Derive computes the target snapshot for a library item purely from library
// evidence. window is the matched edge's source-side range (the zero range
// covers the whole item); destWindow is the edge's destination-side range,
// nil when the edge covers the whole destination entry; trackerUnits is the
// tracker-side known unit total, 0 when unknown.
func Derive(item provider.LibraryItem, window mappings.Range, destWindow *mappings.Range, trackerUnits int) provider.EntrySnapshot {
	total := coveredTotal(item, window, trackerUnits)
	covered := coveredUnits(item, window)

	viewed := 0
	for _, u := range covered {
		if u.Views > 0 {
			viewed++
		}
	}

	// Progress is counted on the source side, then translated through the
	// edge's episode correspondence when the edge qualifies one: a season
	// mapped onto e13-e24 of a two-cour entry reports 24, not 12.
	progress := viewed
	limit := total
	if translated, ok := translateProgress(window, destWindow, covered); ok {
		progress = translated
		limit = destLimit(destWindow, trackerUnits)
	}
	if limit > 0 && progress > limit {
		progress = limit
	}
	fully := total > 0 && viewed >= total

	snap := provider.EntrySnapshot{
		Status: deriveStatus(fully, item.OnWatching(), item.OnWatchlist(), viewed),
	}
	if viewed > 0 || snap.Status != provider.StatusNone {
		snap.Progress = provider.Int(progress)
	}

	if fully {
		if repeats := minViews(covered, total) - 1; repeats > 0 {
			snap.Repeats = provider.Int(repeats)
		}
	}

	start, finish := deriveDates(item, covered, fully)
	if !start.IsZero() {
		snap.StartedAt = provider.Time(start)
	}
	if !finish.IsZero() {
		snap.FinishedAt = provider.Time(finish)
	}

	if rating, ok := item.UserRating(); ok {
		snap.Score = provider.Int(rating)
	}
	if review, ok := item.Review(); ok && review != "" {
		snap.Notes = provider.Str(review)
	}
	return snap
}

// deriveStatus maps the library's boolean watch signals to a status, in
// strict precedence order.
func deriveStatus(fully, watching, watchlist bool, viewed int) provider.Status {
	partial := viewed > 0 && !fully
	switch {
	case fully && watching:
		return provider.StatusRepeating
	case fully:
		return provider.StatusCompleted
	case watching:
		return provider.StatusCurrent
	case partial && !watchlist:
		return provider.StatusDropped
	case watchlist && viewed == 0:
		return provider.StatusPlanning
	case watchlist && partial:
		return provider.StatusPaused
	default:
		return provider.StatusNone
	}
}

// translateProgress maps the highest viewed episode through the edge's
// declared episode correspondence onto the destination side. Edges with no
// destination window and no ratio keep count-based progress.
func translateProgress(window mappings.Range, dest *mappings.Range, covered []provider.UnitView) (int, bool) {
	if dest == nil && window.Ratio <= 1 {
		return 0, false
	}
	highest := 0
	for _, u := range covered {
		if u.Views > 0 && u.Index > highest {
			highest = u.Index
		}
	}
	if highest == 0 {
		return 0, false
	}
	return mappings.TranslateEpisode(window, dest, highest)
}

// destLimit bounds translated progress: the destination window's closed end
// when declared, else the tracker-side unit total.
func destLimit(dest *mappings.Range, trackerUnits int) int {
	if dest != nil && dest.HasEpisodes && dest.End > 0 {
		return dest.End
	}
	return trackerUnits
}

// coveredTotal computes the known unit total within the window. A closed
// episode window bounds the total; the tracker-side count, when known,
// bounds it further.
func coveredTotal(item provider.LibraryItem, window mappings.Range, trackerUnits int) int {
	total := item.TotalUnits()
	if window.HasEpisodes && window.Start > 0 && window.End > 0 {
		if width := window.End - window.Start + 1; total == 0 || width < total {
			total = width
		}
	}
	if trackerUnits > 0 && (total == 0 || trackerUnits < total) {
		total = trackerUnits
	}
	return total
}

// coveredUnits filters the item's view evidence to the window, in unit
// order.
func coveredUnits(item provider.LibraryItem, window mappings.Range) []provider.UnitView {
	var out []provider.UnitView
	for _, u := range item.Units() {
		if window.Contains(u.Index) {
			out = append(out, u)
		}
	}
	return out
}

// minViews returns the minimum per-unit view count across all covered unit
// slots. Units absent from the evidence count as zero views.
func minViews(covered []provider.UnitView, total int) int {
	if len(covered) < total {
		return 0
	}
	min := 0
	for i, u := range covered {
		if i == 0 || u.Views < min {
			min = u.Views
		}
	}
	return min
}

// deriveDates computes start and finish timestamps from the first and last
// covered units' history, falling back to the item-level last-viewed
// timestamp. When both sources disagree, the earlier timestamp wins.
func deriveDates(item provider.LibraryItem, covered []provider.UnitView, fully bool) (start, finish time.Time) {
	var first, last provider.UnitView
	for _, u := range covered {
		if u.Views == 0 {
			continue
		}
		if first.Index == 0 || u.Index < first.Index {
			first = u
		}
		if u.Index > last.Index {
			last = u
		}
	}
	if first.Index == 0 {
		return time.Time{}, time.Time{}
	}

	fallback, _ := item.LastViewedAt()

	start = first.FirstViewedAt
	if start.IsZero() {
		start = fallback
	}

	if fully {
		finish = earlierOf(last.LastViewedAt, fallback)
	}
	return start, finish
}

// earlierOf returns the earlier of two timestamps, ignoring zero values.
// This is the tiebreak policy for disagreeing episode-based and date-based
// finish signals.
func earlierOf(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
