// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"context"

	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
	"github.com/tomtom215/concordus/internal/provider"
)

// queuedUpdate is one batched tracker update awaiting the section flush.
type queuedUpdate struct {
	id       ItemIdentifier
	mediaKey string
	before   *provider.EntrySnapshot
	after    provider.EntrySnapshot
}

// batchQueue collects update actions during a section walk and flushes them
// through the tracker's batch capability in batch-size chunks. Outcome and
// audit semantics match the non-batched path: each queued item still gets
// its own terminal record.
type batchQueue struct {
	engine  *Engine
	size    int
	pending []queuedUpdate
}

func newBatchQueue(e *Engine, size int) *batchQueue {
	return &batchQueue{engine: e, size: size}
}

func (q *batchQueue) add(u queuedUpdate) {
	q.pending = append(q.pending, u)
}

// flush issues all queued updates in chunks. A chunk failure classifies
// every item in that chunk as failed; other chunks still proceed.
func (q *batchQueue) flush(ctx context.Context, stats *RunStats) {
	e := q.engine
	for start := 0; start < len(q.pending); start += q.size {
		end := start + q.size
		if end > len(q.pending) {
			end = len(q.pending)
		}
		chunk := q.pending[start:end]

		updates := make([]provider.EntryUpdate, len(chunk))
		for i, u := range chunk {
			updates[i] = provider.EntryUpdate{MediaKey: u.mediaKey, Snapshot: u.after}
		}

		err := e.tracker.UpdateEntries(ctx, updates)
		for _, u := range chunk {
			outcome := history.OutcomeSynced
			rec := e.newRecordFor(u.id, u.mediaKey, outcome, u.before, &u.after)
			if err != nil {
				outcome = history.OutcomeFailed
				rec.Outcome = outcome
				rec.After = nil
				rec.Error = err.Error()
			}
			e.saveRecord(ctx, rec)
			stats.count(outcome)
			metrics.ObserveOutcome(e.profile.Name, string(outcome))
		}
		if err != nil {
			logging.Error().Str("profile", e.profile.Name).Int("items", len(chunk)).
				Err(err).Msg("Batch update flush failed")
		}
	}
	q.pending = nil
}

// abandon records queued-but-unflushed updates as pending when a run is
// cancelled before its section flush. The next run reconsiders them.
func (q *batchQueue) abandon(ctx context.Context, stats *RunStats) {
	e := q.engine
	for _, u := range q.pending {
		rec := e.newRecordFor(u.id, u.mediaKey, history.OutcomePending, u.before, &u.after)
		e.saveRecord(context.WithoutCancel(ctx), rec)
		stats.count(history.OutcomePending)
		metrics.ObserveOutcome(e.profile.Name, string(history.OutcomePending))
	}
	q.pending = nil
}
