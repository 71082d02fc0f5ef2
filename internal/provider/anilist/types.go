// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package anilist

import (
	"time"

	"github.com/tomtom215/concordus/internal/provider"
)

// statusToAniList maps the neutral status vocabulary onto AniList's
// MediaListStatus enum.
var statusToAniList = map[provider.Status]string{
	provider.StatusPlanning:  "PLANNING",
	provider.StatusPaused:    "PAUSED",
	provider.StatusDropped:   "DROPPED",
	provider.StatusCurrent:   "CURRENT",
	provider.StatusCompleted: "COMPLETED",
	provider.StatusRepeating: "REPEATING",
}

var statusFromAniList = map[string]provider.Status{
	"PLANNING":  provider.StatusPlanning,
	"PAUSED":    provider.StatusPaused,
	"DROPPED":   provider.StatusDropped,
	"CURRENT":   provider.StatusCurrent,
	"COMPLETED": provider.StatusCompleted,
	"REPEATING": provider.StatusRepeating,
}

// fuzzyDate is AniList's partial date representation.
type fuzzyDate struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

func (d fuzzyDate) toTime() *time.Time {
	if d.Year == 0 {
		return nil
	}
	month, day := d.Month, d.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	t := time.Date(d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func toFuzzyDate(t *time.Time) *fuzzyDate {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &fuzzyDate{Year: u.Year(), Month: int(u.Month()), Day: u.Day()}
}

// mediaTitle carries the title variants AniList returns.
type mediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
}

// preferred returns the english title when present, else romaji.
func (t mediaTitle) preferred() string {
	if t.English != "" {
		return t.English
	}
	return t.Romaji
}

// media is the catalog side of a list entry or search result.
type media struct {
	ID       int        `json:"id"`
	Title    mediaTitle `json:"title"`
	Format   string     `json:"format"`
	Episodes int        `json:"episodes"`
}

// listEntry is one MediaList row.
type listEntry struct {
	ID          int        `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Repeat      int        `json:"repeat"`
	Score       int        `json:"score"`
	Notes       string     `json:"notes"`
	StartedAt   *fuzzyDate `json:"startedAt"`
	CompletedAt *fuzzyDate `json:"completedAt"`
	Media       media      `json:"media"`
}

// toSnapshot converts a list row into the neutral snapshot form. Zero
// numeric fields become nil pointers so they never overwrite during merge.
func (e listEntry) toSnapshot() provider.EntrySnapshot {
	snap := provider.EntrySnapshot{Status: statusFromAniList[e.Status]}
	if e.Progress > 0 {
		p := e.Progress
		snap.Progress = &p
	}
	if e.Repeat > 0 {
		r := e.Repeat
		snap.Repeats = &r
	}
	if e.Score > 0 {
		s := e.Score
		snap.Score = &s
	}
	if e.Notes != "" {
		n := e.Notes
		snap.Notes = &n
	}
	if e.StartedAt != nil {
		snap.StartedAt = e.StartedAt.toTime()
	}
	if e.CompletedAt != nil {
		snap.FinishedAt = e.CompletedAt.toTime()
	}
	return snap
}

func (e listEntry) toListEntry(namespace string) *provider.ListEntry {
	return &provider.ListEntry{
		Namespace: namespace,
		MediaKey:  itoa(e.Media.ID),
		Title:     e.Media.Title.preferred(),
		Format:    e.Media.Format,
		Units:     e.Media.Episodes,
		Snapshot:  e.toSnapshot(),
	}
}

// saveVariables is the variable set of one SaveMediaListEntry mutation.
type saveVariables struct {
	MediaID     int        `json:"mediaId"`
	Status      string     `json:"status,omitempty"`
	Progress    *int       `json:"progress,omitempty"`
	Repeat      *int       `json:"repeat,omitempty"`
	ScoreRaw    *int       `json:"scoreRaw,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	StartedAt   *fuzzyDate `json:"startedAt,omitempty"`
	CompletedAt *fuzzyDate `json:"completedAt,omitempty"`
}

func saveVariablesFor(mediaID int, snap provider.EntrySnapshot) saveVariables {
	return saveVariables{
		MediaID:     mediaID,
		Status:      statusToAniList[snap.Status],
		Progress:    snap.Progress,
		Repeat:      snap.Repeats,
		ScoreRaw:    snap.Score,
		Notes:       snap.Notes,
		StartedAt:   toFuzzyDate(snap.StartedAt),
		CompletedAt: toFuzzyDate(snap.FinishedAt),
	}
}
