// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package anilist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/provider"
)

// gqlServer routes incoming GraphQL documents to canned responses by
// substring match on the query text.
type gqlServer struct {
	t        *testing.T
	requests []graphQLRequest
	respond  func(req graphQLRequest) string
}

func (s *gqlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer token" {
		s.t.Errorf("authorization header = %q", got)
	}
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.t.Fatalf("decode request: %v", err)
	}
	s.requests = append(s.requests, req)
	w.Write([]byte(s.respond(req)))
}

func testTracker(t *testing.T, respond func(req graphQLRequest) string) (*Tracker, *gqlServer) {
	t.Helper()
	gql := &gqlServer{t: t, respond: respond}
	srv := httptest.NewServer(gql)
	t.Cleanup(srv.Close)
	tracker := New(config.TrackerConfig{
		Provider:          "anilist",
		URL:               srv.URL,
		Token:             "token",
		RequestsPerSecond: 1000,
		EntryCacheTTL:     time.Minute,
	})
	return tracker, gql
}

const viewerResponse = `{"data":{"Viewer":{"id":42}}}`

const entryResponse = `{"data":{"MediaList":{
	"id":555,"status":"CURRENT","progress":7,"repeat":0,"score":85,"notes":"",
	"startedAt":{"year":2026,"month":3,"day":1},"completedAt":{"year":0},
	"media":{"id":101,"title":{"romaji":"Monster","english":""},"format":"TV","episodes":74}}}}`

func TestGetEntry(t *testing.T) {
	tracker, gql := testTracker(t, func(req graphQLRequest) string {
		if strings.Contains(req.Query, "Viewer") {
			return viewerResponse
		}
		return entryResponse
	})

	entry, err := tracker.GetEntry(context.Background(), "101")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry == nil {
		t.Fatal("expected an entry")
	}
	if entry.MediaKey != "101" || entry.Title != "Monster" || entry.Units != 74 {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Snapshot.Status != provider.StatusCurrent {
		t.Fatalf("status = %q", entry.Snapshot.Status)
	}
	if entry.Snapshot.Progress == nil || *entry.Snapshot.Progress != 7 {
		t.Fatalf("progress = %v", entry.Snapshot.Progress)
	}
	if entry.Snapshot.Repeats != nil {
		t.Fatal("zero repeat should map to nil")
	}
	if entry.Snapshot.StartedAt == nil ||
		!entry.Snapshot.StartedAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("started at = %v", entry.Snapshot.StartedAt)
	}

	// Second read is served from cache.
	before := len(gql.requests)
	if _, err := tracker.GetEntry(context.Background(), "101"); err != nil {
		t.Fatalf("cached GetEntry: %v", err)
	}
	if len(gql.requests) != before {
		t.Fatal("cached read should not hit the API")
	}
}

func TestGetEntryUntracked(t *testing.T) {
	tracker, _ := testTracker(t, func(req graphQLRequest) string {
		if strings.Contains(req.Query, "Viewer") {
			return viewerResponse
		}
		return `{"data":null,"errors":[{"message":"Not Found.","status":404}]}`
	})

	entry, err := tracker.GetEntry(context.Background(), "999")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry != nil {
		t.Fatalf("entry = %+v, want nil for untracked media", entry)
	}
}

func TestUpdateEntriesAliasedDocument(t *testing.T) {
	tracker, gql := testTracker(t, func(req graphQLRequest) string {
		return `{"data":{"u0":{"id":1},"u1":{"id":2}}}`
	})

	progress := 7
	score := 85
	updates := []provider.EntryUpdate{
		{MediaKey: "101", Snapshot: provider.EntrySnapshot{Status: provider.StatusCurrent, Progress: &progress}},
		{MediaKey: "102", Snapshot: provider.EntrySnapshot{Status: provider.StatusCompleted, Score: &score}},
	}
	if err := tracker.UpdateEntries(context.Background(), updates); err != nil {
		t.Fatalf("UpdateEntries: %v", err)
	}

	if len(gql.requests) != 1 {
		t.Fatalf("requests = %d, want a single batched document", len(gql.requests))
	}
	doc := gql.requests[0].Query
	if !strings.Contains(doc, "u0: SaveMediaListEntry") || !strings.Contains(doc, "u1: SaveMediaListEntry") {
		t.Fatalf("document missing aliased mutations:\n%s", doc)
	}

	vars, ok := gql.requests[0].Variables.(map[string]any)
	if !ok {
		t.Fatalf("variables type %T", gql.requests[0].Variables)
	}
	if vars["mediaId0"] != float64(101) || vars["status1"] != "COMPLETED" {
		t.Fatalf("variables = %v", vars)
	}
	if _, present := vars["scoreRaw0"]; present {
		t.Fatal("absent score should not be sent")
	}
}

func TestDeleteEntry(t *testing.T) {
	tracker, gql := testTracker(t, func(req graphQLRequest) string {
		switch {
		case strings.Contains(req.Query, "Viewer"):
			return viewerResponse
		case strings.Contains(req.Query, "DeleteMediaListEntry"):
			return `{"data":{"DeleteMediaListEntry":{"deleted":true}}}`
		default:
			return entryResponse
		}
	})

	if err := tracker.DeleteEntry(context.Background(), "101"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	last := gql.requests[len(gql.requests)-1]
	vars := last.Variables.(map[string]any)
	if vars["id"] != float64(555) {
		t.Fatalf("delete used id %v, want the list-row id 555", vars["id"])
	}
}

func TestSearch(t *testing.T) {
	tracker, _ := testTracker(t, func(req graphQLRequest) string {
		return `{"data":{"Page":{"media":[
			{"id":101,"title":{"romaji":"Monster","english":""},"format":"TV","episodes":74},
			{"id":202,"title":{"romaji":"Monsutaa","english":"Monster Movie"},"format":"MOVIE","episodes":1}]}}}`
	})

	results, err := tracker.Search(context.Background(), "monster")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[1].Title != "Monster Movie" {
		t.Fatalf("english title should be preferred, got %q", results[1].Title)
	}
	if results[0].Format != "TV" || results[0].Units != 74 {
		t.Fatalf("result = %+v", results[0])
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	tracker, gql := testTracker(t, func(req graphQLRequest) string {
		switch {
		case strings.Contains(req.Query, "Viewer"):
			return viewerResponse
		case strings.Contains(req.Query, "MediaListCollection"):
			return `{"data":{"MediaListCollection":{"lists":[
				{"entries":[{"id":555,"status":"COMPLETED","progress":74,"score":90,
				 "media":{"id":101,"title":{"romaji":"Monster"},"format":"TV","episodes":74}}]},
				{"entries":[{"id":556,"status":"CURRENT","progress":3,
				 "media":{"id":202,"title":{"romaji":"Other"},"format":"TV","episodes":12}}]}]}}}`
		default:
			return `{"data":{"u0":{"id":1}}}`
		}
	})

	blob, err := tracker.BackupList(context.Background())
	if err != nil {
		t.Fatalf("BackupList: %v", err)
	}

	var doc backupDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		t.Fatalf("decode backup: %v", err)
	}
	if doc.ViewerID != 42 || len(doc.Entries) != 2 {
		t.Fatalf("backup = %+v", doc)
	}

	if err := tracker.RestoreList(context.Background(), blob); err != nil {
		t.Fatalf("RestoreList: %v", err)
	}
	last := gql.requests[len(gql.requests)-1]
	if !strings.Contains(last.Query, "u1: SaveMediaListEntry") {
		t.Fatalf("restore should batch both entries:\n%s", last.Query)
	}
}

func TestReinitClearsCacheAndViewer(t *testing.T) {
	tracker, gql := testTracker(t, func(req graphQLRequest) string {
		if strings.Contains(req.Query, "Viewer") {
			return viewerResponse
		}
		return entryResponse
	})

	if _, err := tracker.GetEntry(context.Background(), "101"); err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if err := tracker.Reinit(context.Background()); err != nil {
		t.Fatalf("Reinit: %v", err)
	}

	before := len(gql.requests)
	if _, err := tracker.GetEntry(context.Background(), "101"); err != nil {
		t.Fatalf("GetEntry after reinit: %v", err)
	}
	if len(gql.requests) == before {
		t.Fatal("reinit should drop the entry cache")
	}
}

func TestGraphQLErrorPropagates(t *testing.T) {
	tracker, _ := testTracker(t, func(req graphQLRequest) string {
		return `{"data":null,"errors":[{"message":"Invalid token","status":401}]}`
	})

	if _, err := tracker.Search(context.Background(), "x"); err == nil {
		t.Fatal("expected graphql error")
	}
}

func TestBreakerStateGauge(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateHalfOpen, 1},
		{gobreaker.StateOpen, 2},
	}
	for _, tt := range tests {
		if got := stateGauge(tt.state); got != tt.want {
			t.Errorf("stateGauge(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}
