// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package provider

import (
	"testing"
	"time"
)

func TestStatusPriorityOrdering(t *testing.T) {
	// Least to most advanced. Planning outranks paused: an explicit plan to
	// watch is a stronger signal than a stalled partial watch.
	order := []Status{
		StatusNone, StatusPaused, StatusPlanning, StatusDropped,
		StatusCurrent, StatusCompleted, StatusRepeating,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Priority() <= order[i-1].Priority() {
			t.Errorf("%s priority %d not above %s priority %d",
				order[i], order[i].Priority(), order[i-1], order[i-1].Priority())
		}
	}
}

func TestSnapshotEqual(t *testing.T) {
	started := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	a := EntrySnapshot{
		Status:    StatusCurrent,
		Progress:  Int(2),
		StartedAt: Time(started),
	}
	b := a.Clone()

	if !a.Equal(b) {
		t.Error("clone should equal original")
	}

	b.Progress = Int(3)
	if a.Equal(b) {
		t.Error("snapshots with different progress should not be equal")
	}

	// Nil vs present field.
	c := a.Clone()
	c.StartedAt = nil
	if a.Equal(c) {
		t.Error("snapshot with absent start date should not equal one with it")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	started := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)
	finished := started.AddDate(0, 0, 12)
	orig := &EntrySnapshot{
		Status:     StatusCompleted,
		Progress:   Int(12),
		Repeats:    Int(1),
		Score:      Int(85),
		Notes:      Str("good season"),
		StartedAt:  Time(started),
		FinishedAt: Time(finished),
	}

	data, err := MarshalSnapshot(orig)
	if err != nil {
		t.Fatalf("MarshalSnapshot failed: %v", err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot failed: %v", err)
	}
	if got == nil || !got.Equal(*orig) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, orig)
	}
}

func TestSnapshotNilRoundTrip(t *testing.T) {
	data, err := MarshalSnapshot(nil)
	if err != nil {
		t.Fatalf("MarshalSnapshot(nil) failed: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil bytes for nil snapshot, got %q", data)
	}
	got, err := UnmarshalSnapshot(nil)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot(nil) failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil snapshot, got %+v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := EntrySnapshot{Progress: Int(1)}
	b := a.Clone()
	*b.Progress = 99
	if *a.Progress != 1 {
		t.Error("Clone shares pointer with original")
	}
}
