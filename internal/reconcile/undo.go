// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"context"
	"fmt"

	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
)

// Undo re-applies the inverse of a recorded transition: an update reverts
// to the before snapshot, a delete recreates the entry from it, and a
// create deletes the entry. The record's outcome is rewritten to undone.
func (e *Engine) Undo(ctx context.Context, recordID string) error {
	rec, err := e.history.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if !rec.Undoable() {
		return fmt.Errorf("record %s with outcome %s cannot be undone", rec.ID, rec.Outcome)
	}
	if rec.TrackerNamespace != e.tracker.Namespace() {
		return fmt.Errorf("record %s targets tracker %s, not %s", rec.ID, rec.TrackerNamespace, e.tracker.Namespace())
	}

	switch {
	case rec.Before != nil:
		// Update or delete: restore the prior snapshot. Recreation after a
		// delete is the same tracker call as a revert.
		if err := e.tracker.UpdateEntry(ctx, rec.TrackerKey, *rec.Before); err != nil {
			return fmt.Errorf("restore tracker entry %s: %w", rec.TrackerKey, err)
		}
	case rec.After != nil:
		// Create: the inverse is deletion.
		if err := e.tracker.DeleteEntry(ctx, rec.TrackerKey); err != nil {
			return fmt.Errorf("delete tracker entry %s: %w", rec.TrackerKey, err)
		}
	default:
		return fmt.Errorf("record %s has no snapshots to undo", rec.ID)
	}

	if err := e.history.MarkUndone(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark record undone: %w", err)
	}
	metrics.ObserveOutcome(e.profile.Name, string(history.OutcomeUndone))
	logging.Info().Str("profile", e.profile.Name).Str("record", rec.ID).
		Str("media_key", rec.TrackerKey).Msg("Reconciliation undone")
	return nil
}
