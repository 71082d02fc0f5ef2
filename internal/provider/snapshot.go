// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package provider

import (
	"time"

	"github.com/goccy/go-json"
)

// Status is a watch status on the tracking service.
//
// The empty status means "no opinion": the library shows no evidence for the
// item, and the entry is not touched unless destructive sync is enabled.
type Status string

const (
	StatusNone      Status = ""
	StatusPlanning  Status = "planning"
	StatusPaused    Status = "paused"
	StatusDropped   Status = "dropped"
	StatusCurrent   Status = "current"
	StatusCompleted Status = "completed"
	StatusRepeating Status = "repeating"
)

// statusPriority orders statuses from least to most advanced. Non-destructive
// merges only ever move a status to an equal-or-higher priority.
var statusPriority = map[Status]int{
	StatusNone:      0,
	StatusPaused:    1,
	StatusPlanning:  2,
	StatusDropped:   3,
	StatusCurrent:   4,
	StatusCompleted: 5,
	StatusRepeating: 6,
}

// Priority returns the status's rank in the precedence order. Unknown
// statuses rank lowest.
func (s Status) Priority() int {
	return statusPriority[s]
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// EntrySnapshot captures the mutable fields of a tracking-list entry at a
// point in time. Nil pointer fields mean "no value": during merge an absent
// field never overwrites an existing one. Snapshots are the unit persisted
// for audit history and undo.
type EntrySnapshot struct {
	Status     Status     `json:"status,omitempty"`
	Progress   *int       `json:"progress,omitempty"`
	Repeats    *int       `json:"repeats,omitempty"`
	Score      *int       `json:"score,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SnapshotFieldNames are the field identifiers used for pinning.
const (
	FieldStatus     = "status"
	FieldProgress   = "progress"
	FieldRepeats    = "repeats"
	FieldScore      = "score"
	FieldNotes      = "notes"
	FieldStartedAt  = "started_at"
	FieldFinishedAt = "finished_at"
)

// Equal compares two snapshots field by field.
func (s EntrySnapshot) Equal(o EntrySnapshot) bool {
	return s.Status == o.Status &&
		intPtrEqual(s.Progress, o.Progress) &&
		intPtrEqual(s.Repeats, o.Repeats) &&
		intPtrEqual(s.Score, o.Score) &&
		strPtrEqual(s.Notes, o.Notes) &&
		timePtrEqual(s.StartedAt, o.StartedAt) &&
		timePtrEqual(s.FinishedAt, o.FinishedAt)
}

// IsZero reports whether the snapshot carries no values at all.
func (s EntrySnapshot) IsZero() bool {
	return s.Equal(EntrySnapshot{})
}

// Clone returns a deep copy of the snapshot.
func (s EntrySnapshot) Clone() EntrySnapshot {
	out := EntrySnapshot{Status: s.Status}
	out.Progress = cloneInt(s.Progress)
	out.Repeats = cloneInt(s.Repeats)
	out.Score = cloneInt(s.Score)
	if s.Notes != nil {
		v := *s.Notes
		out.Notes = &v
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.FinishedAt = cloneTime(s.FinishedAt)
	return out
}

// MarshalSnapshot serializes a snapshot for persistence. A nil snapshot
// serializes to nil, preserving the distinction between "no entry" and an
// empty entry.
func MarshalSnapshot(s *EntrySnapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// UnmarshalSnapshot is the inverse of MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*EntrySnapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s EntrySnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Int returns a pointer to v, for building snapshots.
func Int(v int) *int { return &v }

// Str returns a pointer to v, for building snapshots.
func Str(v string) *string { return &v }

// Time returns a pointer to v, for building snapshots.
func Time(v time.Time) *time.Time { return &v }
