// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package history records reconciliation outcomes with before/after entry
// snapshots, so every applied change can be inspected and undone later.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tomtom215/concordus/internal/provider"
)

// Outcome is the terminal classification of one reconciliation attempt.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeNotFound Outcome = "not_found"
	OutcomeDeleted  Outcome = "deleted"
	OutcomePending  Outcome = "pending"
	OutcomeUndone   Outcome = "undone"
)

// Record is one audit row: what happened to one item during one
// reconciliation attempt. Before and After are nil when the item had no
// tracking entry on that side of the transition.
type Record struct {
	ID      string  `json:"id"`
	Profile string  `json:"profile"`
	Outcome Outcome `json:"outcome"`

	LibraryNamespace string `json:"library_namespace"`
	SectionKey       string `json:"section_key"`
	MediaKey         string `json:"media_key"`

	TrackerNamespace string `json:"tracker_namespace"`
	TrackerKey       string `json:"tracker_key"`

	// Kind is the reconciled entity kind, "movie" or "season".
	Kind string `json:"kind"`

	// Title is the human-readable item identity at reconciliation time.
	Title string `json:"title"`

	Before *provider.EntrySnapshot `json:"before,omitempty"`
	After  *provider.EntrySnapshot `json:"after,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a record with a fresh id and a UTC timestamp.
func NewRecord(profile string, outcome Outcome) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Profile:   profile,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
}

// Undoable reports whether the record represents a reversible transition.
func (r *Record) Undoable() bool {
	switch r.Outcome {
	case OutcomeSynced, OutcomeDeleted:
		return true
	default:
		return false
	}
}

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Profile  string
	Outcome  Outcome
	MediaKey string
	Since    time.Time
	Limit    int
}

// Store persists reconciliation records.
type Store interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Query(ctx context.Context, f Filter) ([]*Record, error)

	// MarkUndone rewrites a record's outcome after a successful undo.
	MarkUndone(ctx context.Context, id string) error
}
