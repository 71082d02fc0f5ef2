// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/reconcile"
	"github.com/tomtom215/concordus/internal/scheduler"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeTriggerer struct {
	stats   reconcile.RunStats
	err     error
	profile string
}

func (t *fakeTriggerer) Trigger(_ context.Context, profile string) (reconcile.RunStats, error) {
	t.profile = profile
	return t.stats, t.err
}

type fakeUndoer struct {
	err error
	ids []string
}

func (u *fakeUndoer) Undo(_ context.Context, id string) error {
	u.ids = append(u.ids, id)
	return u.err
}

type memStore struct {
	records map[string]*history.Record
	queried history.Filter
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*history.Record{}}
}

func (m *memStore) Save(_ context.Context, r *history.Record) error {
	m.records[r.ID] = r
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*history.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Query(_ context.Context, f history.Filter) ([]*history.Record, error) {
	m.queried = f
	var out []*history.Record
	for _, r := range m.records {
		if f.Profile != "" && r.Profile != f.Profile {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) MarkUndone(_ context.Context, id string) error {
	r, ok := m.records[id]
	if !ok {
		return history.ErrNotFound
	}
	r.Outcome = history.OutcomeUndone
	return nil
}

func testServer(t *testing.T, trig Triggerer, store history.Store, undoers map[string]Undoer, db Pinger) http.Handler {
	t.Helper()
	if trig == nil {
		trig = &fakeTriggerer{}
	}
	if store == nil {
		store = newMemStore()
	}
	if db == nil {
		db = &fakePinger{}
	}
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 8484}
	return New(cfg, trig, store, undoers, db).Router()
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{name: "healthy", wantStatus: http.StatusOK},
		{name: "database down", pingErr: errors.New("closed"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testServer(t, nil, nil, nil, &fakePinger{err: tt.pingErr})
			rec := doRequest(t, h, http.MethodGet, "/healthz")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSyncTrigger(t *testing.T) {
	trig := &fakeTriggerer{
		stats: reconcile.RunStats{
			Items:    3,
			Outcomes: map[history.Outcome]int{history.OutcomeSynced: 2, history.OutcomeSkipped: 1},
		},
	}
	h := testServer(t, trig, nil, nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/main")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if trig.profile != "main" {
		t.Fatalf("triggered profile = %q, want main", trig.profile)
	}

	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Items != 3 || resp.Outcomes["synced"] != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSyncTriggerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "run in progress", err: scheduler.ErrRunInProgress, wantStatus: http.StatusConflict},
		{name: "unknown profile", err: scheduler.ErrUnknownProfile, wantStatus: http.StatusNotFound},
		{name: "internal failure", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testServer(t, &fakeTriggerer{err: tt.err}, nil, nil, nil)
			rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/main")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var apiErr apiError
			if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil || apiErr.Error == "" {
				t.Fatalf("expected error payload, got %s", rec.Body.String())
			}
		})
	}
}

func TestHistoryQuery(t *testing.T) {
	store := newMemStore()
	r1 := history.NewRecord("main", history.OutcomeSynced)
	r2 := history.NewRecord("alt", history.OutcomeFailed)
	store.records[r1.ID] = r1
	store.records[r2.ID] = r2

	h := testServer(t, nil, store, nil, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/history?profile=main&limit=5&since=2026-01-01T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var records []*history.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 1 || records[0].Profile != "main" {
		t.Fatalf("got %d records, want 1 for profile main", len(records))
	}

	if store.queried.Limit != 5 {
		t.Fatalf("limit = %d, want 5", store.queried.Limit)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !store.queried.Since.Equal(want) {
		t.Fatalf("since = %v, want %v", store.queried.Since, want)
	}
}

func TestHistoryQueryEmptyIsArray(t *testing.T) {
	h := testServer(t, nil, nil, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestHistoryQueryBadParams(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "bad since", target: "/api/v1/history?since=yesterday"},
		{name: "bad limit", target: "/api/v1/history?limit=zero"},
		{name: "limit too large", target: "/api/v1/history?limit=99999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testServer(t, nil, nil, nil, nil)
			rec := doRequest(t, h, http.MethodGet, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestUndo(t *testing.T) {
	store := newMemStore()
	r := history.NewRecord("main", history.OutcomeSynced)
	store.records[r.ID] = r

	undoer := &fakeUndoer{}
	h := testServer(t, nil, store, map[string]Undoer{"main": undoer}, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/history/"+r.ID+"/undo")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(undoer.ids) != 1 || undoer.ids[0] != r.ID {
		t.Fatalf("undoer saw %v, want [%s]", undoer.ids, r.ID)
	}
}

func TestUndoErrors(t *testing.T) {
	store := newMemStore()
	orphan := history.NewRecord("gone", history.OutcomeSynced)
	failing := history.NewRecord("main", history.OutcomeSkipped)
	store.records[orphan.ID] = orphan
	store.records[failing.ID] = failing

	undoer := &fakeUndoer{err: errors.New("record is not undoable")}
	h := testServer(t, nil, store, map[string]Undoer{"main": undoer}, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{name: "missing record", target: "/api/v1/history/nope/undo", wantStatus: http.StatusNotFound},
		{name: "orphaned profile", target: "/api/v1/history/" + orphan.ID + "/undo", wantStatus: http.StatusConflict},
		{name: "engine refuses", target: "/api/v1/history/" + failing.ID + "/undo", wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.ServerConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute}
	h := New(cfg, &fakeTriggerer{}, newMemStore(), nil, &fakePinger{}).Router()

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last)
	}

	// Health stays outside the limited group.
	rec := doRequest(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}
