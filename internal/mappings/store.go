// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package mappings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/concordus/internal/database"
)

// Store persists the mapping graph in DuckDB. It is read-heavy: the only
// writer is Apply, which runs as a single transaction so no reader ever
// observes a half-applied graph.
type Store struct {
	conn *sql.DB
}

// NewStore creates a graph store over an open database connection.
func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// CreateTables creates the graph schema if it does not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	schema := `
		CREATE SEQUENCE IF NOT EXISTS seq_mapping_nodes;
		CREATE TABLE IF NOT EXISTS mapping_nodes (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_mapping_nodes'),
			provider TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			UNIQUE (provider, entry_id, scope)
		);
		CREATE INDEX IF NOT EXISTS idx_mapping_nodes_lookup
			ON mapping_nodes(provider, entry_id);

		CREATE SEQUENCE IF NOT EXISTS seq_mapping_edges;
		CREATE TABLE IF NOT EXISTS mapping_edges (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_mapping_edges'),
			source_id BIGINT NOT NULL,
			dest_id BIGINT NOT NULL,
			source_range TEXT NOT NULL DEFAULT '',
			dest_range TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_edges_key
			ON mapping_edges(source_id, dest_id, source_range, dest_range);
		CREATE INDEX IF NOT EXISTS idx_mapping_edges_source
			ON mapping_edges(source_id);

		CREATE TABLE IF NOT EXISTS edge_provenance (
			edge_id BIGINT NOT NULL,
			n INTEGER NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (edge_id, n)
		)
	`
	if err := database.ExecStatements(ctx, s.conn, schema); err != nil {
		return fmt.Errorf("create mapping schema: %w", err)
	}
	return nil
}

// DesiredEdge is one edge of the desired graph state, produced from a loaded
// mapping set and diffed against the store by Apply.
type DesiredEdge struct {
	Source      Node
	Destination Node
	SourceRange string
	DestRange   *string
	Provenance  []string
}

// Key returns the edge's canonical diff key.
func (d DesiredEdge) Key() string {
	return edgeKey(d.Source, d.Destination, d.SourceRange, d.DestRange)
}

// Stats summarizes the writes performed by one Apply pass.
type Stats struct {
	NodesInserted      int
	NodesDeleted       int
	EdgesInserted      int
	EdgesDeleted       int
	ProvenanceReplaced int
}

// Zero reports whether the pass performed no writes at all.
func (st Stats) Zero() bool {
	return st == Stats{}
}

// Apply diffs the desired edge set against the stored graph and applies
// inserts, deletes, and provenance replacements in a single transaction.
// Provenance rows for an edge are always replaced as a set, never partially
// updated. Nodes are created lazily and removed when no edge references
// them.
func (s *Store) Apply(ctx context.Context, desired []DesiredEdge) (Stats, error) {
	var stats Stats

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin graph transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := loadExistingEdges(ctx, tx)
	if err != nil {
		return stats, err
	}

	nodeIDs, err := loadNodeIDs(ctx, tx)
	if err != nil {
		return stats, err
	}

	desiredKeys := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		key := d.Key()
		if _, dup := desiredKeys[key]; dup {
			continue
		}
		desiredKeys[key] = struct{}{}

		row, exists := existing[key]
		if !exists {
			edgeID, inserted, err := insertEdge(ctx, tx, nodeIDs, d)
			if err != nil {
				return stats, err
			}
			stats.NodesInserted += inserted
			stats.EdgesInserted++
			if err := replaceProvenance(ctx, tx, edgeID, d.Provenance); err != nil {
				return stats, err
			}
			continue
		}

		if !stringSlicesEqual(row.provenance, d.Provenance) {
			if err := replaceProvenance(ctx, tx, row.id, d.Provenance); err != nil {
				return stats, err
			}
			stats.ProvenanceReplaced++
		}
	}

	for key, row := range existing {
		if _, keep := desiredKeys[key]; keep {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM edge_provenance WHERE edge_id = ?`, row.id); err != nil {
			return stats, fmt.Errorf("delete edge provenance: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM mapping_edges WHERE id = ?`, row.id); err != nil {
			return stats, fmt.Errorf("delete edge: %w", err)
		}
		stats.EdgesDeleted++
	}

	// Cascade: nodes survive only while an edge references them.
	res, err := tx.ExecContext(ctx, `
		DELETE FROM mapping_nodes WHERE id NOT IN (
			SELECT source_id FROM mapping_edges
			UNION
			SELECT dest_id FROM mapping_edges
		)`)
	if err != nil {
		return stats, fmt.Errorf("delete orphan nodes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.NodesDeleted = int(n)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit graph transaction: %w", err)
	}
	return stats, nil
}

// existingEdge is one stored edge row with its provenance, keyed for diffing.
type existingEdge struct {
	id         int64
	provenance []string
}

// loadExistingEdges reads the stored edge set keyed by canonical edge key.
func loadExistingEdges(ctx context.Context, tx *sql.Tx) (map[string]existingEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT e.id,
		       src.provider, src.entry_id, src.scope,
		       dst.provider, dst.entry_id, dst.scope,
		       e.source_range, e.dest_range
		FROM mapping_edges e
		JOIN mapping_nodes src ON src.id = e.source_id
		JOIN mapping_nodes dst ON dst.id = e.dest_id`)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer rows.Close()

	out := make(map[string]existingEdge)
	ids := make(map[int64]string)
	for rows.Next() {
		var (
			id        int64
			src, dst  Node
			srcRange  string
			destRange sql.NullString
		)
		if err := rows.Scan(&id,
			&src.Provider, &src.EntryID, &src.Scope,
			&dst.Provider, &dst.EntryID, &dst.Scope,
			&srcRange, &destRange); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		var dr *string
		if destRange.Valid {
			dr = &destRange.String
		}
		key := edgeKey(src, dst, srcRange, dr)
		out[key] = existingEdge{id: id}
		ids[id] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}

	provRows, err := tx.QueryContext(ctx,
		`SELECT edge_id, source FROM edge_provenance ORDER BY edge_id, n`)
	if err != nil {
		return nil, fmt.Errorf("load provenance: %w", err)
	}
	defer provRows.Close()

	for provRows.Next() {
		var edgeID int64
		var source string
		if err := provRows.Scan(&edgeID, &source); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		key, ok := ids[edgeID]
		if !ok {
			continue
		}
		row := out[key]
		row.provenance = append(row.provenance, source)
		out[key] = row
	}
	if err := provRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provenance: %w", err)
	}
	return out, nil
}

// loadNodeIDs reads all node ids keyed by descriptor.
func loadNodeIDs(ctx context.Context, tx *sql.Tx) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, provider, entry_id, scope FROM mapping_nodes`)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var n Node
		if err := rows.Scan(&id, &n.Provider, &n.EntryID, &n.Scope); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out[n.Descriptor()] = id
	}
	return out, rows.Err()
}

// ensureNode inserts a node if absent, returning its id and whether an
// insert happened.
func ensureNode(ctx context.Context, tx *sql.Tx, nodeIDs map[string]int64, n Node) (int64, bool, error) {
	if id, ok := nodeIDs[n.Descriptor()]; ok {
		return id, false, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO mapping_nodes (provider, entry_id, scope)
		VALUES (?, ?, ?) RETURNING id`,
		n.Provider, n.EntryID, n.Scope).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("insert node %s: %w", n.Descriptor(), err)
	}
	nodeIDs[n.Descriptor()] = id
	return id, true, nil
}

// insertEdge inserts one edge, creating its nodes as needed. Returns the new
// edge id and the number of nodes inserted.
func insertEdge(ctx context.Context, tx *sql.Tx, nodeIDs map[string]int64, d DesiredEdge) (int64, int, error) {
	var inserted int

	srcID, srcNew, err := ensureNode(ctx, tx, nodeIDs, d.Source)
	if err != nil {
		return 0, inserted, err
	}
	if srcNew {
		inserted++
	}
	dstID, dstNew, err := ensureNode(ctx, tx, nodeIDs, d.Destination)
	if err != nil {
		return 0, inserted, err
	}
	if dstNew {
		inserted++
	}

	var edgeID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO mapping_edges (source_id, dest_id, source_range, dest_range)
		VALUES (?, ?, ?, ?) RETURNING id`,
		srcID, dstID, d.SourceRange, d.DestRange).Scan(&edgeID)
	if err != nil {
		return 0, inserted, fmt.Errorf("insert edge %s: %w", d.Key(), err)
	}
	return edgeID, inserted, nil
}

// replaceProvenance atomically replaces an edge's provenance rows.
func replaceProvenance(ctx context.Context, tx *sql.Tx, edgeID int64, sources []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edge_provenance WHERE edge_id = ?`, edgeID); err != nil {
		return fmt.Errorf("clear provenance: %w", err)
	}
	for n, source := range sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edge_provenance (edge_id, n, source) VALUES (?, ?, ?)`,
			edgeID, n, source); err != nil {
			return fmt.Errorf("insert provenance: %w", err)
		}
	}
	return nil
}

// Provenance returns an edge's ordered provenance sources.
func (s *Store) Provenance(ctx context.Context, edgeID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT source FROM edge_provenance WHERE edge_id = ? ORDER BY n`, edgeID)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		out = append(out, source)
	}
	return out, rows.Err()
}

// Counts returns the number of nodes and edges in the graph.
func (s *Store) Counts(ctx context.Context) (nodes, edges int64, err error) {
	if err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mapping_nodes`).Scan(&nodes); err != nil {
		return 0, 0, fmt.Errorf("count nodes: %w", err)
	}
	if err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mapping_edges`).Scan(&edges); err != nil {
		return 0, 0, fmt.Errorf("count edges: %w", err)
	}
	return nodes, edges, nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
