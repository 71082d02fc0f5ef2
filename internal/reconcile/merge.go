// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"github.com/tomtom215/concordus/internal/provider"
)

// Merge combines an existing tracking-entry snapshot with a derived one,
// field by field. existing is nil when the item is untracked. Non-destructive
// merges are monotonic: status only advances in priority, progress and
// repeats only increase, dates only move earlier. Destructive mode applies
// any difference. Fields absent from the derived snapshot never overwrite an
// existing value, and pinned fields are never touched.
func Merge(existing *provider.EntrySnapshot, derived provider.EntrySnapshot, destructive bool, pinned map[string]struct{}) provider.EntrySnapshot {
	if existing == nil {
		out := derived.Clone()
		for field := range pinned {
			clearField(&out, field)
		}
		return out
	}

	out := existing.Clone()
	pin := func(field string) bool {
		_, ok := pinned[field]
		return ok
	}

	if !pin(provider.FieldStatus) && derived.Status != provider.StatusNone {
		if destructive || derived.Status.Priority() >= out.Status.Priority() {
			out.Status = derived.Status
		}
	}

	if !pin(provider.FieldProgress) && derived.Progress != nil {
		if destructive || out.Progress == nil || *derived.Progress > *out.Progress {
			out.Progress = provider.Int(*derived.Progress)
		}
	}

	if !pin(provider.FieldRepeats) && derived.Repeats != nil {
		if destructive || out.Repeats == nil || *derived.Repeats > *out.Repeats {
			out.Repeats = provider.Int(*derived.Repeats)
		}
	}

	if !pin(provider.FieldStartedAt) && derived.StartedAt != nil {
		if destructive || out.StartedAt == nil || derived.StartedAt.Before(*out.StartedAt) {
			out.StartedAt = provider.Time(*derived.StartedAt)
		}
	}

	if !pin(provider.FieldFinishedAt) && derived.FinishedAt != nil {
		if destructive || out.FinishedAt == nil || derived.FinishedAt.Before(*out.FinishedAt) {
			out.FinishedAt = provider.Time(*derived.FinishedAt)
		}
	}

	// Rating and review apply on any inequality.
	if !pin(provider.FieldScore) && derived.Score != nil {
		if out.Score == nil || *derived.Score != *out.Score {
			out.Score = provider.Int(*derived.Score)
		}
	}
	if !pin(provider.FieldNotes) && derived.Notes != nil {
		if out.Notes == nil || *derived.Notes != *out.Notes {
			out.Notes = provider.Str(*derived.Notes)
		}
	}

	return out
}

// clearField blanks one snapshot field by pin name.
func clearField(s *provider.EntrySnapshot, field string) {
	switch field {
	case provider.FieldStatus:
		s.Status = provider.StatusNone
	case provider.FieldProgress:
		s.Progress = nil
	case provider.FieldRepeats:
		s.Repeats = nil
	case provider.FieldScore:
		s.Score = nil
	case provider.FieldNotes:
		s.Notes = nil
	case provider.FieldStartedAt:
		s.StartedAt = nil
	case provider.FieldFinishedAt:
		s.FinishedAt = nil
	}
}
