// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"testing"
	"time"

	"github.com/tomtom215/concordus/internal/provider"
)

func TestMergeMonotonicity(t *testing.T) {
	existing := &provider.EntrySnapshot{
		Status:   provider.StatusCompleted,
		Progress: provider.Int(12),
		Repeats:  provider.Int(1),
	}
	derived := provider.EntrySnapshot{
		Status:   provider.StatusCurrent,
		Progress: provider.Int(5),
	}

	merged := Merge(existing, derived, false, nil)

	if merged.Status != provider.StatusCompleted {
		t.Errorf("status regressed to %s", merged.Status)
	}
	if *merged.Progress != 12 {
		t.Errorf("progress regressed to %d", *merged.Progress)
	}
	if *merged.Repeats != 1 {
		t.Errorf("repeats changed to %d", *merged.Repeats)
	}
}

func TestMergePlanningOutranksPaused(t *testing.T) {
	existing := &provider.EntrySnapshot{Status: provider.StatusPlanning}
	derived := provider.EntrySnapshot{Status: provider.StatusPaused}

	merged := Merge(existing, derived, false, nil)
	if merged.Status != provider.StatusPlanning {
		t.Errorf("status demoted to %s, want planning kept", merged.Status)
	}

	merged = Merge(&provider.EntrySnapshot{Status: provider.StatusPaused},
		provider.EntrySnapshot{Status: provider.StatusPlanning}, false, nil)
	if merged.Status != provider.StatusPlanning {
		t.Errorf("status = %s, want advance to planning", merged.Status)
	}
}

func TestMergeAdvances(t *testing.T) {
	existing := &provider.EntrySnapshot{
		Status:   provider.StatusCurrent,
		Progress: provider.Int(5),
	}
	derived := provider.EntrySnapshot{
		Status:   provider.StatusCompleted,
		Progress: provider.Int(12),
		Repeats:  provider.Int(1),
	}

	merged := Merge(existing, derived, false, nil)

	if merged.Status != provider.StatusCompleted {
		t.Errorf("status = %s, want completed", merged.Status)
	}
	if *merged.Progress != 12 {
		t.Errorf("progress = %d, want 12", *merged.Progress)
	}
	if merged.Repeats == nil || *merged.Repeats != 1 {
		t.Errorf("repeats = %v, want 1", merged.Repeats)
	}
}

func TestMergeDestructiveOverwrites(t *testing.T) {
	existing := &provider.EntrySnapshot{
		Status:   provider.StatusCompleted,
		Progress: provider.Int(12),
	}
	derived := provider.EntrySnapshot{
		Status:   provider.StatusDropped,
		Progress: provider.Int(3),
	}

	merged := Merge(existing, derived, true, nil)

	if merged.Status != provider.StatusDropped {
		t.Errorf("destructive status = %s, want dropped", merged.Status)
	}
	if *merged.Progress != 3 {
		t.Errorf("destructive progress = %d, want 3", *merged.Progress)
	}
}

func TestMergeAbsentFieldsNeverOverwrite(t *testing.T) {
	existing := &provider.EntrySnapshot{
		Status:  provider.StatusCompleted,
		Score:   provider.Int(90),
		Notes:   provider.Str("loved it"),
		Repeats: provider.Int(2),
	}

	// Derived snapshot with no values at all, destructive or not.
	for _, destructive := range []bool{false, true} {
		merged := Merge(existing, provider.EntrySnapshot{}, destructive, nil)
		if !merged.Equal(*existing) {
			t.Errorf("destructive=%v: absent fields overwrote existing values: %+v", destructive, merged)
		}
	}
}

func TestMergeDatesEarlierWins(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	existing := &provider.EntrySnapshot{
		StartedAt:  provider.Time(late),
		FinishedAt: provider.Time(late),
	}
	derived := provider.EntrySnapshot{
		StartedAt:  provider.Time(early),
		FinishedAt: provider.Time(early),
	}

	merged := Merge(existing, derived, false, nil)
	if !merged.StartedAt.Equal(early) || !merged.FinishedAt.Equal(early) {
		t.Errorf("dates did not move earlier: %+v", merged)
	}

	// The other direction must not move dates later.
	merged = Merge(&provider.EntrySnapshot{StartedAt: provider.Time(early)},
		provider.EntrySnapshot{StartedAt: provider.Time(late)}, false, nil)
	if !merged.StartedAt.Equal(early) {
		t.Errorf("start date moved later: %v", merged.StartedAt)
	}
}

func TestMergeScoreAppliesOnInequality(t *testing.T) {
	existing := &provider.EntrySnapshot{Score: provider.Int(90)}
	derived := provider.EntrySnapshot{Score: provider.Int(70)}

	merged := Merge(existing, derived, false, nil)
	if *merged.Score != 70 {
		t.Errorf("score = %d, want 70 (rating applies on any inequality)", *merged.Score)
	}
}

func TestMergePinnedFieldsUntouched(t *testing.T) {
	existing := &provider.EntrySnapshot{
		Status: provider.StatusPaused,
		Score:  provider.Int(50),
	}
	derived := provider.EntrySnapshot{
		Status:   provider.StatusCompleted,
		Score:    provider.Int(95),
		Progress: provider.Int(12),
	}
	pinned := map[string]struct{}{
		provider.FieldStatus: {},
		provider.FieldScore:  {},
	}

	merged := Merge(existing, derived, true, pinned)

	if merged.Status != provider.StatusPaused {
		t.Errorf("pinned status changed to %s", merged.Status)
	}
	if *merged.Score != 50 {
		t.Errorf("pinned score changed to %d", *merged.Score)
	}
	if merged.Progress == nil || *merged.Progress != 12 {
		t.Errorf("unpinned progress = %v, want 12", merged.Progress)
	}
}

func TestMergeUntrackedTakesDerived(t *testing.T) {
	derived := provider.EntrySnapshot{
		Status:   provider.StatusCurrent,
		Progress: provider.Int(4),
	}

	merged := Merge(nil, derived, false, nil)
	if !merged.Equal(derived) {
		t.Errorf("merge onto untracked = %+v, want the derived snapshot", merged)
	}

	// Pins still apply to creation.
	merged = Merge(nil, derived, false, map[string]struct{}{provider.FieldProgress: {}})
	if merged.Progress != nil {
		t.Errorf("pinned progress set on creation: %v", merged.Progress)
	}
}
