// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/scheduler"
)

// apiError is the uniform error payload for all non-2xx responses.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// syncResponse reports the per-outcome item counts of a completed manual run.
type syncResponse struct {
	Profile  string         `json:"profile"`
	Items    int            `json:"items"`
	Outcomes map[string]int `json:"outcomes"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")

	stats, err := s.scheduler.Trigger(r.Context(), profile)
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, "a run is already in progress for this profile")
		return
	case errors.Is(err, scheduler.ErrUnknownProfile):
		writeError(w, http.StatusNotFound, "unknown profile")
		return
	case err != nil:
		logging.Error().Err(err).Str("profile", profile).Msg("manual sync failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := syncResponse{Profile: profile, Items: stats.Items, Outcomes: map[string]int{}}
	for outcome, n := range stats.Outcomes {
		resp.Outcomes[string(outcome)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.history.Query(r.Context(), f)
	if err != nil {
		logging.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if records == nil {
		records = []*history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// parseFilter builds a history filter from query parameters. An absent limit
// defaults to 100 so unbounded queries cannot dump the whole table.
func parseFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()

	f := history.Filter{
		Profile:  q.Get("profile"),
		Outcome:  history.Outcome(q.Get("outcome")),
		MediaKey: q.Get("media_key"),
		Limit:    100,
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return history.Filter{}, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			return history.Filter{}, errors.New("limit must be an integer between 1 and 1000")
		}
		f.Limit = limit
	}
	return f, nil
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("record_id", id).Msg("history lookup failed")
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}

	undoer, ok := s.undoers[rec.Profile]
	if !ok {
		writeError(w, http.StatusConflict, "record belongs to a profile that is no longer configured")
		return
	}

	if err := undoer.Undo(r.Context(), id); err != nil {
		logging.Error().Err(err).Str("record_id", id).Msg("undo failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "undone", "id": id})
}
