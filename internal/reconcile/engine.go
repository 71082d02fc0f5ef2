// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package reconcile implements the per-item reconciliation pipeline:
// candidate discovery against the mapping graph, field derivation from
// library evidence, snapshot merge against the tracker's existing entry,
// and the final action decision with audit recording.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
	"github.com/tomtom215/concordus/internal/provider"
)

// PinSource reports administrator field pins for a tracking entry. Pinned
// fields are excluded from merging entirely.
type PinSource interface {
	PinnedFields(profile, trackerNS, mediaKey string) (map[string]struct{}, error)
}

// Engine reconciles one profile: one library against one tracker. Engines
// hold no shared mutable state, so engines for different profiles may run
// concurrently.
type Engine struct {
	profile   config.ProfileConfig
	library   provider.Library
	tracker   provider.Tracker
	matcher   *Matcher
	history   history.Store
	pins      PinSource
	batchSize int
}

// NewEngine creates a reconciliation engine for one profile.
func NewEngine(profile config.ProfileConfig, library provider.Library, tracker provider.Tracker, resolver Resolver, hist history.Store, pins PinSource, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Engine{
		profile:   profile,
		library:   library,
		tracker:   tracker,
		matcher:   NewMatcher(resolver, tracker, profile.FuzzyThreshold),
		history:   hist,
		pins:      pins,
		batchSize: batchSize,
	}
}

// RunOptions narrows one reconciliation run.
type RunOptions struct {
	// Trigger labels the run for metrics: "periodic", "poll", "manual".
	Trigger string

	// ModifiedSince narrows the library scan to recently modified items.
	ModifiedSince time.Time

	// Keys narrows the run to specific library keys, for targeted retry.
	Keys []string
}

// RunStats summarizes one run's terminal outcomes.
type RunStats struct {
	Items    int
	Outcomes map[history.Outcome]int
}

func (s *RunStats) count(o history.Outcome) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[history.Outcome]int)
	}
	s.Items++
	s.Outcomes[o]++
}

// Run reconciles every in-scope library item once. Items are processed
// sequentially within the profile; each item's commit is self-contained, so
// cancellation between items leaves already-processed items fully applied.
// A failure before any item is processed aborts the run; per-item failures
// are recorded and do not stop the run.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	var stats RunStats
	started := time.Now()

	sections, err := e.library.Sections(ctx)
	if err != nil {
		metrics.ObserveRun(e.profile.Name, opts.Trigger, err, time.Since(started))
		return stats, fmt.Errorf("list library sections: %w", err)
	}

	for _, section := range sections {
		if !e.sectionInScope(section) {
			continue
		}
		if err := e.runSection(ctx, section, opts, &stats); err != nil {
			metrics.ObserveRun(e.profile.Name, opts.Trigger, err, time.Since(started))
			return stats, err
		}
	}

	metrics.ObserveRun(e.profile.Name, opts.Trigger, nil, time.Since(started))
	logging.Info().
		Str("profile", e.profile.Name).
		Str("trigger", opts.Trigger).
		Int("items", stats.Items).
		Dur("elapsed", time.Since(started)).
		Msg("Reconciliation run complete")
	return stats, nil
}

func (e *Engine) sectionInScope(section provider.Section) bool {
	if len(e.profile.Sections) == 0 {
		return true
	}
	for _, name := range e.profile.Sections {
		if name == section.Key || name == section.Title {
			return true
		}
	}
	return false
}

// runSection walks one library section in listing order. In batching mode
// updates are queued and flushed once the section is fully walked.
func (e *Engine) runSection(ctx context.Context, section provider.Section, opts RunOptions, stats *RunStats) error {
	items, err := e.library.Items(ctx, section, provider.ListOptions{
		ModifiedSince: opts.ModifiedSince,
		Keys:          opts.Keys,
	})
	if err != nil {
		return fmt.Errorf("list section %s: %w", section.Key, err)
	}

	var queue *batchQueue
	if e.profile.BatchRequests {
		queue = newBatchQueue(e, e.batchSize)
	}

	for _, item := range items {
		// Cancellation is observed at each item boundary.
		if err := ctx.Err(); err != nil {
			if queue != nil {
				queue.abandon(ctx, stats)
			}
			return err
		}
		outcome := e.processItem(ctx, item, queue)
		if outcome != "" {
			stats.count(outcome)
			metrics.ObserveOutcome(e.profile.Name, string(outcome))
		}
	}

	if queue != nil {
		queue.flush(ctx, stats)
	}
	return nil
}

// processItem runs the full pipeline for one item and returns its terminal
// outcome. Queued batch updates return the empty outcome; the flush records
// them. Any failure is caught here, recorded, and never aborts siblings.
func (e *Engine) processItem(ctx context.Context, item provider.LibraryItem, queue *batchQueue) (outcome history.Outcome) {
	var id ItemIdentifier

	// Provider adapters and derivation run arbitrary code per item; a panic
	// in one item classifies as failed instead of taking down the run.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logging.Error().
			Str("profile", e.profile.Name).
			Str("item", id.String()).
			Interface("panic", r).
			Msg("Item reconciliation panicked")
		rec := e.newRecord(id, history.OutcomeFailed)
		rec.Error = fmt.Sprintf("panic: %v", r)
		e.saveRecord(ctx, rec)
		outcome = history.OutcomeFailed
	}()

	id = IdentifyItem(e.library.Namespace(), item)

	out, err := e.reconcile(ctx, item, id, queue)
	if err != nil {
		logging.Error().
			Str("profile", e.profile.Name).
			Str("item", id.String()).
			Err(err).
			Msg("Item reconciliation failed")
		rec := e.newRecord(id, history.OutcomeFailed)
		rec.Error = err.Error()
		e.saveRecord(ctx, rec)
		return history.OutcomeFailed
	}
	return out
}

// reconcile is the happy-path pipeline: match, derive, merge, act.
func (e *Engine) reconcile(ctx context.Context, item provider.LibraryItem, id ItemIdentifier, queue *batchQueue) (history.Outcome, error) {
	cand, err := e.matcher.Find(ctx, item, id)
	if err != nil {
		return "", err
	}
	if cand == nil {
		rec := e.newRecord(id, history.OutcomeNotFound)
		e.saveRecord(ctx, rec)
		return history.OutcomeNotFound, nil
	}

	entry, err := e.tracker.GetEntry(ctx, cand.MediaKey)
	if err != nil {
		return "", fmt.Errorf("get tracker entry %s: %w", cand.MediaKey, err)
	}

	trackerUnits := cand.TrackerUnits
	var before *provider.EntrySnapshot
	if entry != nil {
		if entry.Units > 0 {
			trackerUnits = entry.Units
		}
		snap := entry.Snapshot.Clone()
		before = &snap
	}

	derived := Derive(item, cand.Window, cand.DestWindow, trackerUnits)

	pinned, err := e.pins.PinnedFields(e.profile.Name, e.tracker.Namespace(), cand.MediaKey)
	if err != nil {
		return "", fmt.Errorf("read pins for %s: %w", cand.MediaKey, err)
	}

	merged := Merge(before, derived, e.profile.DestructiveSync, pinned)

	switch {
	// The delete condition is checked before equality: a no-opinion
	// derivation leaves the merge a no-op, which would otherwise classify
	// as skipped.
	case e.profile.DestructiveSync && before != nil && derived.Status == provider.StatusNone:
		if err := e.tracker.DeleteEntry(ctx, cand.MediaKey); err != nil {
			return "", fmt.Errorf("delete tracker entry %s: %w", cand.MediaKey, err)
		}
		rec := e.newRecordFor(id, cand.MediaKey, history.OutcomeDeleted, before, nil)
		e.saveRecord(ctx, rec)
		logging.Info().Str("profile", e.profile.Name).Str("item", id.String()).
			Str("media_key", cand.MediaKey).Msg("Tracker entry deleted")
		return history.OutcomeDeleted, nil

	case before != nil && merged.Equal(*before):
		rec := e.newRecordFor(id, cand.MediaKey, history.OutcomeSkipped, before, before)
		e.saveRecord(ctx, rec)
		return history.OutcomeSkipped, nil

	case merged.Status == provider.StatusNone:
		rec := e.newRecordFor(id, cand.MediaKey, history.OutcomeSkipped, before, before)
		e.saveRecord(ctx, rec)
		return history.OutcomeSkipped, nil
	}

	if queue != nil {
		queue.add(queuedUpdate{id: id, mediaKey: cand.MediaKey, before: before, after: merged})
		return "", nil
	}

	if err := e.tracker.UpdateEntry(ctx, cand.MediaKey, merged); err != nil {
		return "", fmt.Errorf("update tracker entry %s: %w", cand.MediaKey, err)
	}
	rec := e.newRecordFor(id, cand.MediaKey, history.OutcomeSynced, before, &merged)
	e.saveRecord(ctx, rec)
	logging.Debug().Str("profile", e.profile.Name).Str("item", id.String()).
		Str("media_key", cand.MediaKey).Str("status", string(merged.Status)).
		Msg("Tracker entry updated")
	return history.OutcomeSynced, nil
}

func (e *Engine) newRecord(id ItemIdentifier, outcome history.Outcome) *history.Record {
	rec := history.NewRecord(e.profile.Name, outcome)
	rec.LibraryNamespace = id.Namespace
	rec.SectionKey = id.SectionKey
	rec.MediaKey = id.MediaKey
	rec.TrackerNamespace = e.tracker.Namespace()
	rec.Kind = string(id.Kind)
	rec.Title = id.String()
	return rec
}

func (e *Engine) newRecordFor(id ItemIdentifier, trackerKey string, outcome history.Outcome, before, after *provider.EntrySnapshot) *history.Record {
	rec := e.newRecord(id, outcome)
	rec.TrackerKey = trackerKey
	if before != nil {
		snap := before.Clone()
		rec.Before = &snap
	}
	if after != nil {
		snap := after.Clone()
		rec.After = &snap
	}
	return rec
}

// saveRecord persists an audit record. A history write failure is logged
// but never fails the item: the tracker-side action already happened.
func (e *Engine) saveRecord(ctx context.Context, rec *history.Record) {
	if err := e.history.Save(ctx, rec); err != nil {
		logging.Error().Str("profile", e.profile.Name).Str("record", rec.ID).
			Err(err).Msg("Failed to persist history record")
	}
}
