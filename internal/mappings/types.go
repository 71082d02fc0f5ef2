// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package mappings maintains the cross-provider identifier-equivalence
// graph: nodes identify catalog entries per provider namespace, directed
// range-qualified edges record equivalences (including partial ones, where a
// single season corresponds to a whole entry elsewhere), and per-edge
// provenance records which sources asserted each edge.
package mappings

import (
	"fmt"
	"strings"
)

// ScopeMovie is the node scope for movie entries. Season scopes use the
// "s<N>" notation; the empty scope means the whole (season-independent)
// entry.
const ScopeMovie = "movie"

// Node identifies one catalog entry in one provider's namespace.
// (Provider, EntryID, Scope) is unique within the graph.
type Node struct {
	Provider string
	EntryID  string
	Scope    string
}

// ParseDescriptor parses the composite "provider:entry_id:scope" descriptor
// used as keys in mapping documents. The scope part is optional.
func ParseDescriptor(s string) (Node, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Node{}, fmt.Errorf("descriptor %q: empty component", s)
		}
		return Node{Provider: parts[0], EntryID: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Node{}, fmt.Errorf("descriptor %q: empty component", s)
		}
		return Node{Provider: parts[0], EntryID: parts[1], Scope: parts[2]}, nil
	default:
		return Node{}, fmt.Errorf("descriptor %q: want provider:entry_id[:scope]", s)
	}
}

// Descriptor renders the node back to its composite descriptor string.
func (n Node) Descriptor() string {
	if n.Scope == "" {
		return n.Provider + ":" + n.EntryID
	}
	return n.Provider + ":" + n.EntryID + ":" + n.Scope
}

// SeasonScope reports the season number when the scope is a season marker.
func (n Node) SeasonScope() (int, bool) {
	r, err := ParseRange(n.Scope)
	if err != nil || r.Season == 0 || r.HasEpisodes {
		return 0, false
	}
	return r.Season, true
}

// Edge is a directed, range-qualified equivalence between two nodes.
// (Source, Destination, SourceRange, DestRange) is unique. Symmetric
// relationships are stored as two rows, one per direction, so resolution
// from either provider is a single lookup.
type Edge struct {
	ID          int64
	Source      Node
	Destination Node

	// SourceRange qualifies the edge relative to the source node. The zero
	// Range means the whole node.
	SourceRange Range

	// DestRange qualifies the edge relative to the destination node; nil
	// means the whole destination node.
	DestRange *Range
}

// Key returns the edge's uniqueness key in a stable textual form, used for
// diffing the desired graph against the stored one and for provenance
// bookkeeping.
func (e Edge) Key() string {
	return edgeKey(e.Source, e.Destination, e.SourceRange.String(), rangeStringPtr(e.DestRange))
}

// edgeKey builds the canonical edge key from raw components.
func edgeKey(src, dst Node, srcRange string, dstRange *string) string {
	dr := "\x00" // distinguishes nil from the empty range
	if dstRange != nil {
		dr = *dstRange
	}
	return src.Descriptor() + "|" + dst.Descriptor() + "|" + srcRange + "|" + dr
}

func rangeStringPtr(r *Range) *string {
	if r == nil {
		return nil
	}
	s := r.String()
	return &s
}

// IsCustom reports whether an edge's provenance marks it as user-supplied:
// at least one contributing source differs from the canonical upstream
// source.
func IsCustom(provenance []string, canonical string) bool {
	for _, src := range provenance {
		if src != canonical {
			return true
		}
	}
	return false
}
