// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package mappings

import (
	"context"
	"fmt"

	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
	"github.com/tomtom215/concordus/internal/state"
)

// Syncer keeps the stored mapping graph in step with the upstream mapping
// documents. A pass loads and merges all sources, compares the content hash
// against the last applied one, and only touches the database when the
// merged set actually changed.
type Syncer struct {
	loader *Loader
	store  *Store
	state  *state.Store
}

// NewSyncer creates a mapping syncer.
func NewSyncer(loader *Loader, store *Store, st *state.Store) *Syncer {
	return &Syncer{loader: loader, store: store, state: st}
}

// Sync runs one load-and-apply pass. Running it twice with no upstream
// change performs zero database writes.
func (s *Syncer) Sync(ctx context.Context) error {
	result, err := s.sync(ctx)
	metrics.MappingSyncs.WithLabelValues(result).Inc()
	return err
}

func (s *Syncer) sync(ctx context.Context) (string, error) {
	set, err := s.loader.Load(ctx)
	if err != nil {
		return "failed", fmt.Errorf("load mapping sources: %w", err)
	}

	prev, ok, err := s.state.ContentHash()
	if err != nil {
		return "failed", fmt.Errorf("read mapping content hash: %w", err)
	}
	if ok && prev == set.Hash {
		logging.Debug().Str("hash", set.Hash).Msg("Mapping set unchanged, skipping apply")
		return "unchanged", nil
	}

	desired := DesiredEdges(set)

	stats, err := s.store.Apply(ctx, desired)
	if err != nil {
		return "failed", fmt.Errorf("apply mapping graph: %w", err)
	}
	metrics.MappingEdges.Set(float64(len(desired)))

	if err := s.state.SetContentHash(set.Hash); err != nil {
		return "failed", fmt.Errorf("store mapping content hash: %w", err)
	}

	logging.Info().
		Str("hash", set.Hash).
		Int("edges", len(desired)).
		Int("edges_inserted", stats.EdgesInserted).
		Int("edges_deleted", stats.EdgesDeleted).
		Int("nodes_inserted", stats.NodesInserted).
		Int("nodes_deleted", stats.NodesDeleted).
		Int("provenance_replaced", stats.ProvenanceReplaced).
		Msg("Mapping graph updated")
	return "applied", nil
}

// DesiredEdges extracts the desired edge set from a merged mapping set.
// Every asserted equivalence yields edges in both directions so reverse
// lookups need no special casing. Malformed entries are logged and dropped,
// never fatal.
func DesiredEdges(set *Set) []DesiredEdge {
	var out []DesiredEdge
	seen := make(map[string]struct{})

	add := func(src, dst Node, srcRange string, dstRange *string) {
		key := edgeKey(src, dst, srcRange, dstRange)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, DesiredEdge{
			Source:      src,
			Destination: dst,
			SourceRange: srcRange,
			DestRange:   dstRange,
			Provenance:  set.Contributions(key),
		})
	}

	for desc, v := range set.Entries {
		srcNode, err := ParseDescriptor(desc)
		if err != nil {
			logging.Warn().Str("entry", desc).Err(err).Msg("Malformed mapping entry, dropping")
			continue
		}
		targets, ok := toStringMap(v)
		if !ok {
			logging.Warn().Str("entry", desc).Msg("Mapping entry is not a target map, dropping")
			continue
		}
		for targetDesc, tv := range targets {
			dstNode, err := ParseDescriptor(targetDesc)
			if err != nil {
				logging.Warn().Str("entry", desc).Str("target", targetDesc).Err(err).
					Msg("Malformed mapping target, dropping")
				continue
			}
			ranges, ok := toStringMap(tv)
			if !ok {
				logging.Warn().Str("entry", desc).Str("target", targetDesc).
					Msg("Mapping target is not a range map, dropping")
				continue
			}
			for srcRange, drv := range ranges {
				if srcRange == ReplaceKey {
					continue
				}
				if _, err := ParseRange(srcRange); err != nil {
					logging.Warn().Str("entry", desc).Str("range", srcRange).Err(err).
						Msg("Malformed source range, dropping edge")
					continue
				}
				dstRange := toStringPtr(drv)
				if dstRange != nil {
					if _, err := ParseRange(*dstRange); err != nil {
						logging.Warn().Str("entry", desc).Str("range", *dstRange).Err(err).
							Msg("Malformed destination range, dropping edge")
						continue
					}
				}
				add(srcNode, dstNode, srcRange, dstRange)
				add(dstNode, srcNode, derefOr(dstRange, ""), &srcRange)
			}
		}
	}
	return out
}
