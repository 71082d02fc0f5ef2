// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package backup snapshots tracker lists to timestamped files so a
// destructive run can always be rolled back.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/provider"
)

// ErrNoBackups is returned by Restore when a profile has no backup files.
var ErrNoBackups = errors.New("no backups found for profile")

// timestampLayout orders lexicographically, so a filename sort is a time sort.
const timestampLayout = "20060102T150405Z"

// Manager writes and prunes tracker-list snapshots under a single directory.
// Files are named <profile>-<timestamp>.json.
type Manager struct {
	dir  string
	keep int
	now  func() time.Time
}

// New creates a manager rooted at cfg.Dir. Keep bounds the number of files
// retained per profile; zero disables pruning.
func New(cfg config.BackupConfig) *Manager {
	return &Manager{dir: cfg.Dir, keep: cfg.Keep, now: time.Now}
}

// Take serializes the tracker's list into a fresh snapshot file and prunes
// old snapshots past the retention count.
func (m *Manager) Take(ctx context.Context, profile string, tracker provider.Tracker) error {
	blob, err := tracker.BackupList(ctx)
	if err != nil {
		return fmt.Errorf("backup list for profile %s: %w", profile, err)
	}

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", profile, m.now().UTC().Format(timestampLayout))
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, blob, 0o640); err != nil {
		return fmt.Errorf("write backup file: %w", err)
	}

	logging.Info().
		Str("profile", profile).
		Str("path", path).
		Int("bytes", len(blob)).
		Msg("tracker list backed up")

	if err := m.prune(profile); err != nil {
		logging.Warn().Err(err).Str("profile", profile).Msg("backup pruning failed")
	}
	return nil
}

// Restore replays the newest snapshot for the profile into the tracker.
func (m *Manager) Restore(ctx context.Context, profile string, tracker provider.Tracker) error {
	files, err := m.list(profile)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrNoBackups, profile)
	}

	newest := files[len(files)-1]
	blob, err := os.ReadFile(newest)
	if err != nil {
		return fmt.Errorf("read backup file: %w", err)
	}

	if err := tracker.RestoreList(ctx, blob); err != nil {
		return fmt.Errorf("restore list for profile %s: %w", profile, err)
	}

	logging.Info().Str("profile", profile).Str("path", newest).Msg("tracker list restored")
	return nil
}

// list returns the profile's snapshot paths sorted oldest first.
func (m *Manager) list(profile string) ([]string, error) {
	pattern := filepath.Join(m.dir, profile+"-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (m *Manager) prune(profile string) error {
	if m.keep <= 0 {
		return nil
	}

	files, err := m.list(profile)
	if err != nil {
		return err
	}
	for len(files) > m.keep {
		if err := os.Remove(files[0]); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
		logging.Debug().Str("path", files[0]).Msg("pruned old backup")
		files = files[1:]
	}
	return nil
}
