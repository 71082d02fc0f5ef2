// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package mappings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tomtom215/concordus/internal/provider"
)

// Resolver answers identity lookups against the stored mapping graph.
type Resolver struct {
	conn *sql.DB
}

// NewResolver creates a resolver over an open database connection.
func NewResolver(conn *sql.DB) *Resolver {
	return &Resolver{conn: conn}
}

// Resolve returns every edge whose source node matches one of the item's
// external identifiers in the requested scope. Movies match movie-scoped
// nodes; episodic items match nodes scoped to the given season plus
// season-independent nodes. The empty scope always matches, so identity
// entries without a scope qualifier still resolve.
func (r *Resolver) Resolve(ctx context.Context, ids []provider.ExternalID, season int, episodic bool) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var (
		idClauses []string
		args      []interface{}
	)
	for _, id := range ids {
		idClauses = append(idClauses, "(src.provider = ? AND src.entry_id = ?)")
		args = append(args, id.Namespace, id.Value)
	}

	scopeClause := "src.scope IN ('', ?)"
	if episodic {
		args = append(args, fmt.Sprintf("s%d", season))
	} else {
		args = append(args, ScopeMovie)
	}

	query := fmt.Sprintf(`
		SELECT e.id,
		       src.provider, src.entry_id, src.scope,
		       dst.provider, dst.entry_id, dst.scope,
		       e.source_range, e.dest_range
		FROM mapping_edges e
		JOIN mapping_nodes src ON src.id = e.source_id
		JOIN mapping_nodes dst ON dst.id = e.dest_id
		WHERE (%s) AND %s
		ORDER BY e.id`, strings.Join(idClauses, " OR "), scopeClause)

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve mapping edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var (
			e         Edge
			srcRange  string
			destRange sql.NullString
		)
		if err := rows.Scan(&e.ID,
			&e.Source.Provider, &e.Source.EntryID, &e.Source.Scope,
			&e.Destination.Provider, &e.Destination.EntryID, &e.Destination.Scope,
			&srcRange, &destRange); err != nil {
			return nil, fmt.Errorf("scan resolved edge: %w", err)
		}
		if e.SourceRange, err = ParseRange(srcRange); err != nil {
			return nil, fmt.Errorf("stored source range %q: %w", srcRange, err)
		}
		if destRange.Valid {
			dr, err := ParseRange(destRange.String)
			if err != nil {
				return nil, fmt.Errorf("stored destination range %q: %w", destRange.String, err)
			}
			e.DestRange = &dr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveOne returns the first edge leading to the given destination
// provider, or nil when the item has no mapping there.
func (r *Resolver) ResolveOne(ctx context.Context, ids []provider.ExternalID, season int, episodic bool, destProvider string) (*Edge, error) {
	edges, err := r.Resolve(ctx, ids, season, episodic)
	if err != nil {
		return nil, err
	}
	for i := range edges {
		if edges[i].Destination.Provider == destProvider {
			return &edges[i], nil
		}
	}
	return nil, nil
}
