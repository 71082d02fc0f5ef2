// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package server exposes the admin HTTP API: health, metrics, manual sync
// triggers, and the reconciliation history with undo.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/reconcile"
)

// Triggerer starts a manual reconciliation run for one profile.
type Triggerer interface {
	Trigger(ctx context.Context, profile string) (reconcile.RunStats, error)
}

// Undoer reverses a previously applied history record.
type Undoer interface {
	Undo(ctx context.Context, recordID string) error
}

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies for the admin API.
type Server struct {
	cfg       config.ServerConfig
	scheduler Triggerer
	history   history.Store
	undoers   map[string]Undoer
	db        Pinger
}

// New assembles a Server. The undoers map is keyed by profile name so that
// an undo is replayed through the engine that owns the record's tracker.
func New(cfg config.ServerConfig, scheduler Triggerer, hist history.Store, undoers map[string]Undoer, db Pinger) *Server {
	return &Server{
		cfg:       cfg,
		scheduler: scheduler,
		history:   hist,
		undoers:   undoers,
		db:        db,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
		}

		r.Post("/sync/{profile}", s.handleSync)
		r.Get("/history", s.handleHistory)
		r.Post("/history/{id}/undo", s.handleUndo)
	})

	return r
}

// HTTPServer wraps the router in an http.Server bound to the configured
// address, ready for supervised serving.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
	}
}
