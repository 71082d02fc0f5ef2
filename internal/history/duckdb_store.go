// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/concordus/internal/provider"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("history record not found")

// DuckDBStore implements Store using DuckDB for persistent storage.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed history store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the sync_history table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sync_history (
			id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			outcome TEXT NOT NULL,

			library_namespace TEXT NOT NULL,
			section_key TEXT NOT NULL,
			media_key TEXT NOT NULL,

			tracker_namespace TEXT NOT NULL,
			tracker_key TEXT NOT NULL,

			kind TEXT NOT NULL,
			title TEXT NOT NULL,

			before_snapshot JSON,
			after_snapshot JSON,

			error TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_created ON sync_history(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_history_profile ON sync_history(profile);
		CREATE INDEX IF NOT EXISTS idx_history_media ON sync_history(media_key)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create sync_history table: %w", err)
	}
	return nil
}

// Save persists one record.
func (s *DuckDBStore) Save(ctx context.Context, r *Record) error {
	before, err := provider.MarshalSnapshot(r.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := provider.MarshalSnapshot(r.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_history (
			id, profile, outcome,
			library_namespace, section_key, media_key,
			tracker_namespace, tracker_key,
			kind, title,
			before_snapshot, after_snapshot,
			error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Profile, string(r.Outcome),
		r.LibraryNamespace, r.SectionKey, r.MediaKey,
		r.TrackerNamespace, r.TrackerKey,
		r.Kind, r.Title,
		nullableBlob(before), nullableBlob(after),
		nullableString(r.Error), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Get returns one record by id.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM sync_history WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query history record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRecord(rows)
}

// Query returns records matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Profile != "" {
		conds = append(conds, "profile = ?")
		args = append(args, f.Profile)
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if f.MediaKey != "" {
		conds = append(conds, "media_key = ?")
		args = append(args, f.MediaKey)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since)
	}

	query := selectColumns + " FROM sync_history"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkUndone rewrites a record's outcome after a successful undo.
func (s *DuckDBStore) MarkUndone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_history SET outcome = ? WHERE id = ?`, string(OutcomeUndone), id)
	if err != nil {
		return fmt.Errorf("mark record undone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
	SELECT id, profile, outcome,
	       library_namespace, section_key, media_key,
	       tracker_namespace, tracker_key,
	       kind, title,
	       before_snapshot, after_snapshot,
	       error, created_at`

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r             Record
		outcome       string
		before, after []byte
		errMsg        sql.NullString
		createdAt     time.Time
	)
	if err := rows.Scan(&r.ID, &r.Profile, &outcome,
		&r.LibraryNamespace, &r.SectionKey, &r.MediaKey,
		&r.TrackerNamespace, &r.TrackerKey,
		&r.Kind, &r.Title,
		&before, &after,
		&errMsg, &createdAt); err != nil {
		return nil, fmt.Errorf("scan history record: %w", err)
	}
	r.Outcome = Outcome(outcome)
	r.Error = errMsg.String
	r.CreatedAt = createdAt.UTC()

	var err error
	if r.Before, err = provider.UnmarshalSnapshot(before); err != nil {
		return nil, fmt.Errorf("unmarshal before snapshot: %w", err)
	}
	if r.After, err = provider.UnmarshalSnapshot(after); err != nil {
		return nil, fmt.Errorf("unmarshal after snapshot: %w", err)
	}
	return &r, nil
}

func nullableBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
