// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/mappings"
	"github.com/tomtom215/concordus/internal/provider"
)

func movieEdge(trackerKey string) mappings.Edge {
	return mappings.Edge{
		Source:      mappings.Node{Provider: "tmdb", EntryID: "10", Scope: "movie"},
		Destination: mappings.Node{Provider: "anilist", EntryID: trackerKey, Scope: "movie"},
	}
}

func testEngine(t *testing.T, profile config.ProfileConfig, lib *fakeLibrary, tracker *fakeTracker, resolver *fakeResolver) (*Engine, *memHistory) {
	t.Helper()
	if profile.Name == "" {
		profile.Name = "default"
	}
	hist := &memHistory{}
	return NewEngine(profile, lib, tracker, resolver, hist, staticPins{}, 25), hist
}

func watchedMovie() *fakeItem {
	item := movieItem("m1", "The Matrix", 1)
	item.ids = []provider.ExternalID{{Namespace: "tmdb", Value: "10"}}
	return item
}

func TestEngineSyncsNewEntry(t *testing.T) {
	lib := &fakeLibrary{items: []provider.LibraryItem{watchedMovie()}}
	tracker := newFakeTracker()
	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
	}}
	engine, hist := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)

	stats, err := engine.Run(context.Background(), RunOptions{Trigger: "manual"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Outcomes[history.OutcomeSynced] != 1 {
		t.Fatalf("outcomes = %v, want one synced", stats.Outcomes)
	}

	entry, err := tracker.GetEntry(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Snapshot.Status != provider.StatusCompleted {
		t.Errorf("tracker entry = %+v, want completed", entry)
	}

	rec := hist.last(history.OutcomeSynced)
	if rec == nil {
		t.Fatal("no synced history record")
	}
	if rec.Before != nil {
		t.Error("create transition should have nil before snapshot")
	}
	if rec.After == nil || rec.After.Status != provider.StatusCompleted {
		t.Errorf("after snapshot = %+v", rec.After)
	}
}

func TestEngineSkipConvergence(t *testing.T) {
	lib := &fakeLibrary{items: []provider.LibraryItem{watchedMovie()}}
	tracker := newFakeTracker()
	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
	}}
	engine, _ := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)
	ctx := context.Background()

	if _, err := engine.Run(ctx, RunOptions{}); err != nil {
		t.Fatal(err)
	}

	// Second run with no intervening change converges to skipped.
	stats, err := engine.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Outcomes[history.OutcomeSkipped] != 1 {
		t.Errorf("second run outcomes = %v, want one skipped", stats.Outcomes)
	}
	if len(tracker.updates) != 1 {
		t.Errorf("tracker saw %d updates, want exactly 1", len(tracker.updates))
	}
}

func TestEngineNotFound(t *testing.T) {
	// No mapping edge and fuzzy fallback disabled.
	lib := &fakeLibrary{items: []provider.LibraryItem{watchedMovie()}}
	tracker := newFakeTracker()
	engine, hist := testEngine(t,
		config.ProfileConfig{FuzzyThreshold: -1},
		lib, tracker, &fakeResolver{})

	stats, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Outcomes[history.OutcomeNotFound] != 1 {
		t.Errorf("outcomes = %v, want one not_found", stats.Outcomes)
	}
	if hist.last(history.OutcomeNotFound) == nil {
		t.Error("not_found outcome must still write a record")
	}
}

func TestEngineFuzzyFallback(t *testing.T) {
	lib := &fakeLibrary{items: []provider.LibraryItem{watchedMovie()}}
	tracker := newFakeTracker()
	tracker.catalog = []provider.ListEntry{
		{Namespace: "anilist", MediaKey: "7", Title: "The Matrix", Format: "MOVIE"},
		{Namespace: "anilist", MediaKey: "8", Title: "The Matrix", Format: "TV", Units: 26},
	}
	engine, _ := testEngine(t,
		config.ProfileConfig{FuzzyThreshold: 0.7},
		lib, tracker, &fakeResolver{})

	stats, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Outcomes[history.OutcomeSynced] != 1 {
		t.Fatalf("outcomes = %v, want one synced via fuzzy match", stats.Outcomes)
	}
	// The movie must match the movie-format result, not the TV one.
	if len(tracker.updates) != 1 || tracker.updates[0] != "7" {
		t.Errorf("updates = %v, want [7]", tracker.updates)
	}
}

func TestEngineDestructiveDelete(t *testing.T) {
	// Library shows no evidence for a tracked item.
	item := movieItem("m1", "The Matrix", 0)
	item.ids = []provider.ExternalID{{Namespace: "tmdb", Value: "10"}}
	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
	}}

	seed := func(tracker *fakeTracker) {
		tracker.entries["1"] = &provider.ListEntry{
			Namespace: "anilist",
			MediaKey:  "1",
			Snapshot:  provider.EntrySnapshot{Status: provider.StatusCompleted, Progress: provider.Int(1)},
		}
	}

	t.Run("destructive deletes", func(t *testing.T) {
		tracker := newFakeTracker()
		seed(tracker)
		lib := &fakeLibrary{items: []provider.LibraryItem{item}}
		engine, hist := testEngine(t,
			config.ProfileConfig{DestructiveSync: true, FuzzyThreshold: -1},
			lib, tracker, resolver)

		stats, err := engine.Run(context.Background(), RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if stats.Outcomes[history.OutcomeDeleted] != 1 {
			t.Errorf("outcomes = %v, want one deleted", stats.Outcomes)
		}
		if len(tracker.deletes) != 1 {
			t.Errorf("delete calls = %v, want exactly one", tracker.deletes)
		}
		rec := hist.last(history.OutcomeDeleted)
		if rec == nil || rec.Before == nil || rec.After != nil {
			t.Errorf("delete record = %+v, want before set and after nil", rec)
		}
	})

	t.Run("non-destructive skips", func(t *testing.T) {
		tracker := newFakeTracker()
		seed(tracker)
		lib := &fakeLibrary{items: []provider.LibraryItem{item}}
		engine, _ := testEngine(t,
			config.ProfileConfig{DestructiveSync: false, FuzzyThreshold: -1},
			lib, tracker, resolver)

		stats, err := engine.Run(context.Background(), RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if stats.Outcomes[history.OutcomeSkipped] != 1 {
			t.Errorf("outcomes = %v, want one skipped", stats.Outcomes)
		}
		if len(tracker.deletes) != 0 {
			t.Errorf("non-destructive sync issued deletes: %v", tracker.deletes)
		}
	})
}

func TestEngineBatchMode(t *testing.T) {
	itemA := watchedMovie()
	itemB := movieItem("m2", "Another Movie", 1)
	itemB.ids = []provider.ExternalID{{Namespace: "tmdb", Value: "20"}}

	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
		"tmdb:20:movie": {{
			Source:      mappings.Node{Provider: "tmdb", EntryID: "20", Scope: "movie"},
			Destination: mappings.Node{Provider: "anilist", EntryID: "2", Scope: "movie"},
		}},
	}}
	lib := &fakeLibrary{items: []provider.LibraryItem{itemA, itemB}}
	tracker := newFakeTracker()
	engine, _ := testEngine(t,
		config.ProfileConfig{BatchRequests: true},
		lib, tracker, resolver)

	stats, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Outcomes[history.OutcomeSynced] != 2 {
		t.Fatalf("outcomes = %v, want two synced", stats.Outcomes)
	}
	if tracker.batches != 1 {
		t.Errorf("batch calls = %d, want 1 flush for the section", tracker.batches)
	}
	if len(tracker.entries) != 2 {
		t.Errorf("tracker entries = %d, want 2", len(tracker.entries))
	}
}

func TestEnginePerItemFailureIsolation(t *testing.T) {
	itemA := watchedMovie()
	itemB := movieItem("m2", "Another Movie", 1)
	itemB.ids = []provider.ExternalID{{Namespace: "tmdb", Value: "20"}}

	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
		"tmdb:20:movie": {{
			Source:      mappings.Node{Provider: "tmdb", EntryID: "20", Scope: "movie"},
			Destination: mappings.Node{Provider: "anilist", EntryID: "2", Scope: "movie"},
		}},
	}}
	lib := &fakeLibrary{items: []provider.LibraryItem{itemA, itemB}}
	tracker := newFakeTracker()
	tracker.failUpdates = true
	engine, hist := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)

	stats, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("per-item failures must not abort the run: %v", err)
	}
	if stats.Outcomes[history.OutcomeFailed] != 2 {
		t.Errorf("outcomes = %v, want both items failed", stats.Outcomes)
	}
	rec := hist.last(history.OutcomeFailed)
	if rec == nil || rec.Error == "" {
		t.Errorf("failed record = %+v, want error message recorded", rec)
	}
}

func TestEngineContainsItemPanic(t *testing.T) {
	broken := &panickyItem{fakeItem: movieItem("m9", "Broken Adapter", 1)}
	broken.ids = []provider.ExternalID{{Namespace: "tmdb", Value: "99"}}
	healthy := watchedMovie()

	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:99:movie": {{
			Source:      mappings.Node{Provider: "tmdb", EntryID: "99", Scope: "movie"},
			Destination: mappings.Node{Provider: "anilist", EntryID: "9", Scope: "movie"},
		}},
		"tmdb:10:movie": {movieEdge("1")},
	}}
	lib := &fakeLibrary{items: []provider.LibraryItem{broken, healthy}}
	tracker := newFakeTracker()
	engine, hist := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)

	stats, err := engine.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("a panicking item must not abort the run: %v", err)
	}
	if stats.Outcomes[history.OutcomeFailed] != 1 {
		t.Errorf("outcomes = %v, want the panicking item failed", stats.Outcomes)
	}
	if stats.Outcomes[history.OutcomeSynced] != 1 {
		t.Errorf("outcomes = %v, want the sibling item still synced", stats.Outcomes)
	}
	rec := hist.last(history.OutcomeFailed)
	if rec == nil || !strings.Contains(rec.Error, "unexpected provider state") {
		t.Errorf("failed record = %+v, want the panic value recorded", rec)
	}
}

func TestEngineDestWindowProgress(t *testing.T) {
	// Season 2, fully watched, mapped onto episodes 13-24 of a 24-episode
	// tracker entry.
	srcRange, err := mappings.ParseRange("e1-e12")
	if err != nil {
		t.Fatal(err)
	}
	destRange, err := mappings.ParseRange("e13-e24")
	if err != nil {
		t.Fatal(err)
	}

	item := seasonItem("s2", "Two Cour Show", 2, 12, 12)
	item.ids = []provider.ExternalID{{Namespace: "anidb", Value: "77"}}
	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"anidb:77:s2": {{
			Source:      mappings.Node{Provider: "anidb", EntryID: "77", Scope: "s2"},
			Destination: mappings.Node{Provider: "anilist", EntryID: "9"},
			SourceRange: srcRange,
			DestRange:   &destRange,
		}},
	}}
	lib := &fakeLibrary{items: []provider.LibraryItem{item}}
	tracker := newFakeTracker()
	tracker.entries["9"] = &provider.ListEntry{Namespace: "anilist", MediaKey: "9", Units: 24}
	engine, _ := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)

	if _, err := engine.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	entry, err := tracker.GetEntry(context.Background(), "9")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Snapshot.Status != provider.StatusCompleted {
		t.Errorf("status = %s, want completed", entry.Snapshot.Status)
	}
	if entry.Snapshot.Progress == nil || *entry.Snapshot.Progress != 24 {
		t.Errorf("progress = %v, want the destination-side 24", entry.Snapshot.Progress)
	}
}

func TestEngineUndo(t *testing.T) {
	lib := &fakeLibrary{items: []provider.LibraryItem{watchedMovie()}}
	tracker := newFakeTracker()
	resolver := &fakeResolver{edges: map[string][]mappings.Edge{
		"tmdb:10:movie": {movieEdge("1")},
	}}
	engine, hist := testEngine(t, config.ProfileConfig{}, lib, tracker, resolver)
	ctx := context.Background()

	if _, err := engine.Run(ctx, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	rec := hist.last(history.OutcomeSynced)
	if rec == nil {
		t.Fatal("no synced record")
	}

	// The record is a create (nil before): undo deletes the entry.
	if err := engine.Undo(ctx, rec.ID); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if entry, _ := tracker.GetEntry(ctx, "1"); entry != nil {
		t.Errorf("entry survived undo of its creation: %+v", entry)
	}

	got, err := hist.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != history.OutcomeUndone {
		t.Errorf("outcome = %s, want undone", got.Outcome)
	}

	// An already-undone record cannot be undone again.
	if err := engine.Undo(ctx, rec.ID); err == nil {
		t.Error("second undo should fail")
	}
}
