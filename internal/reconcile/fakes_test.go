// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/mappings"
	"github.com/tomtom215/concordus/internal/provider"
)

// fakeItem implements provider.LibraryItem for tests.
type fakeItem struct {
	kind        provider.Kind
	key         string
	title       string
	parentTitle string
	sectionKey  string
	ids         []provider.ExternalID
	season      int
	totalUnits  int
	units       []provider.UnitView
	onWatching  bool
	onWatchlist bool
	rating      *int
	review      string
	lastViewed  time.Time
}

func (f *fakeItem) Kind() provider.Kind                { return f.kind }
func (f *fakeItem) Key() string                        { return f.key }
func (f *fakeItem) Title() string                      { return f.title }
func (f *fakeItem) ParentTitle() string                { return f.parentTitle }
func (f *fakeItem) SectionKey() string                 { return f.sectionKey }
func (f *fakeItem) ExternalIDs() []provider.ExternalID { return f.ids }
func (f *fakeItem) TotalUnits() int                    { return f.totalUnits }
func (f *fakeItem) Units() []provider.UnitView         { return f.units }
func (f *fakeItem) OnWatching() bool                   { return f.onWatching }
func (f *fakeItem) OnWatchlist() bool                  { return f.onWatchlist }

func (f *fakeItem) Season() (int, bool) {
	if f.kind == provider.KindSeason {
		return f.season, true
	}
	return 0, false
}

func (f *fakeItem) UserRating() (int, bool) {
	if f.rating == nil {
		return 0, false
	}
	return *f.rating, true
}

func (f *fakeItem) Review() (string, bool) {
	return f.review, f.review != ""
}

func (f *fakeItem) LastViewedAt() (time.Time, bool) {
	return f.lastViewed, !f.lastViewed.IsZero()
}

// movieItem builds a single-unit movie with the given view count.
func movieItem(key, title string, views int) *fakeItem {
	item := &fakeItem{
		kind:       provider.KindMovie,
		key:        key,
		title:      title,
		sectionKey: "1",
		totalUnits: 1,
	}
	if views > 0 {
		item.units = []provider.UnitView{{Index: 1, Views: views}}
	}
	return item
}

// seasonItem builds a season with watched episodes 1..watched of total.
func seasonItem(key, show string, season, total, watched int) *fakeItem {
	item := &fakeItem{
		kind:        provider.KindSeason,
		key:         key,
		title:       fmt.Sprintf("Season %d", season),
		parentTitle: show,
		sectionKey:  "2",
		season:      season,
		totalUnits:  total,
	}
	for ep := 1; ep <= watched; ep++ {
		item.units = append(item.units, provider.UnitView{Index: ep, Views: 1})
	}
	return item
}

// panickyItem simulates a misbehaving library adapter: reading its view
// evidence panics.
type panickyItem struct {
	*fakeItem
}

func (p *panickyItem) Units() []provider.UnitView {
	panic("unexpected provider state")
}

// fakeLibrary implements provider.Library over a fixed item list.
type fakeLibrary struct {
	items []provider.LibraryItem
}

func (f *fakeLibrary) Namespace() string { return "plex" }

func (f *fakeLibrary) Sections(ctx context.Context) ([]provider.Section, error) {
	return []provider.Section{{Key: "1", Title: "Movies", Type: "movie"}, {Key: "2", Title: "Shows", Type: "show"}}, nil
}

func (f *fakeLibrary) Items(ctx context.Context, section provider.Section, opts provider.ListOptions) ([]provider.LibraryItem, error) {
	var out []provider.LibraryItem
	for _, item := range f.items {
		if item.SectionKey() == section.Key {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeLibrary) Reinit(ctx context.Context) error { return nil }

// fakeTracker implements provider.Tracker over an in-memory entry map and
// records every mutating call.
type fakeTracker struct {
	mu      sync.Mutex
	entries map[string]*provider.ListEntry
	catalog []provider.ListEntry

	updates []string
	deletes []string
	batches int

	failUpdates bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{entries: make(map[string]*provider.ListEntry)}
}

func (f *fakeTracker) Namespace() string { return "anilist" }

func (f *fakeTracker) GetEntry(ctx context.Context, mediaKey string) (*provider.ListEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[mediaKey]
	if !ok {
		return nil, nil
	}
	copied := *e
	copied.Snapshot = e.Snapshot.Clone()
	return &copied, nil
}

func (f *fakeTracker) UpdateEntry(ctx context.Context, mediaKey string, snap provider.EntrySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates {
		return fmt.Errorf("tracker unavailable")
	}
	f.updates = append(f.updates, mediaKey)
	e, ok := f.entries[mediaKey]
	if !ok {
		e = &provider.ListEntry{Namespace: "anilist", MediaKey: mediaKey}
		f.entries[mediaKey] = e
	}
	e.Snapshot = snap.Clone()
	return nil
}

func (f *fakeTracker) UpdateEntries(ctx context.Context, updates []provider.EntryUpdate) error {
	f.mu.Lock()
	f.batches++
	fail := f.failUpdates
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("tracker unavailable")
	}
	for _, u := range updates {
		if err := f.UpdateEntry(ctx, u.MediaKey, u.Snapshot); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTracker) DeleteEntry(ctx context.Context, mediaKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, mediaKey)
	delete(f.entries, mediaKey)
	return nil
}

func (f *fakeTracker) Search(ctx context.Context, query string) ([]provider.ListEntry, error) {
	return f.catalog, nil
}

func (f *fakeTracker) BackupList(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *fakeTracker) RestoreList(ctx context.Context, blob []byte) error { return nil }

func (f *fakeTracker) Reinit(ctx context.Context) error { return nil }

// fakeResolver implements Resolver over a fixed edge list keyed by external
// id namespace/value.
type fakeResolver struct {
	edges map[string][]mappings.Edge
}

func edgeLookupKey(ns, value string, season int, episodic bool) string {
	if episodic {
		return fmt.Sprintf("%s:%s:s%d", ns, value, season)
	}
	return fmt.Sprintf("%s:%s:movie", ns, value)
}

func (f *fakeResolver) Resolve(ctx context.Context, ids []provider.ExternalID, season int, episodic bool) ([]mappings.Edge, error) {
	var out []mappings.Edge
	for _, id := range ids {
		out = append(out, f.edges[edgeLookupKey(id.Namespace, id.Value, season, episodic)]...)
	}
	return out, nil
}

// staticPins implements PinSource with a fixed pin set.
type staticPins map[string]struct{}

func (p staticPins) PinnedFields(profile, trackerNS, mediaKey string) (map[string]struct{}, error) {
	return p, nil
}

// memHistory implements history.Store in memory.
type memHistory struct {
	mu      sync.Mutex
	records []*history.Record
}

func (m *memHistory) Save(ctx context.Context, r *history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memHistory) Get(ctx context.Context, id string) (*history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memHistory) Query(ctx context.Context, f history.Filter) ([]*history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*history.Record
	for _, r := range m.records {
		if f.Profile != "" && r.Profile != f.Profile {
			continue
		}
		if f.Outcome != "" && r.Outcome != f.Outcome {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memHistory) MarkUndone(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.Outcome = history.OutcomeUndone
			return nil
		}
	}
	return history.ErrNotFound
}

// last returns the newest record with the given outcome, or nil.
func (m *memHistory) last(outcome history.Outcome) *history.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Outcome == outcome {
			return m.records[i]
		}
	}
	return nil
}
