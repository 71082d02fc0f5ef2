// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package database manages the DuckDB connection shared by the mapping graph
// store and the reconciliation history store. Schema creation lives with the
// stores themselves; this package only opens and tunes the connection.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
)

// DB wraps the sql.DB handle with connection configuration.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// Open opens the DuckDB database at the configured path and verifies the
// connection. Use ":memory:" as the path for an in-memory database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	conn, err := sql.Open("duckdb", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// DuckDB is an in-process engine; a small pool is plenty and avoids
	// write contention between the loader transaction and readers.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database opened")
	return &DB{conn: conn, cfg: cfg}, nil
}

// dsn builds the DuckDB connection string with tuning parameters.
func dsn(cfg config.DatabaseConfig) string {
	if cfg.Path == ":memory:" || cfg.Path == "" {
		return ":memory:"
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}
	return fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, threads, maxMemory)
}

// Conn returns the underlying sql.DB for store construction.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("close duckdb: %w", err)
	}
	return nil
}

// ExecStatements splits a multi-statement schema block on semicolons and
// executes each statement. DuckDB's driver executes one statement at a time.
func ExecStatements(ctx context.Context, conn *sql.DB, schema string) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// splitStatements splits schema SQL on semicolons, dropping empty fragments.
func splitStatements(schema string) []string {
	parts := strings.Split(schema, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
