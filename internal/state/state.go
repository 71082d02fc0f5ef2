// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package state persists small operational state in Badger: the mapping
// loader's content hash, per-profile run watermarks, and per-entry field pins.
//
// Watermarks are only advanced after a run reaches a terminal outcome for
// every item; a cancelled run leaves them untouched so the next tick
// reconsiders the same window.
package state

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
)

// Store is a Badger-backed key/value store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger store at the configured path.
func Open(cfg config.StateConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("State store opened")
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory store, for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// get returns the value for key, or ("", false) when absent.
func (s *Store) get(key string) (string, bool, error) {
	var val string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state get %s: %w", key, err)
	}
	return val, true, nil
}

// set writes key=value.
func (s *Store) set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("state set %s: %w", key, err)
	}
	return nil
}

// delete removes key; absent keys are not an error.
func (s *Store) delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("state delete %s: %w", key, err)
	}
	return nil
}

const contentHashKey = "mappings/hash"

// ContentHash returns the hash of the last successfully synced mapping
// document set, or ("", false) when no sync has completed yet.
func (s *Store) ContentHash() (string, bool, error) {
	return s.get(contentHashKey)
}

// SetContentHash commits the mapping content hash.
func (s *Store) SetContentHash(hash string) error {
	return s.set(contentHashKey, hash)
}

func lastSyncKey(profile string) string { return "run/" + profile + "/last_sync" }
func lastPollKey(profile string) string { return "run/" + profile + "/last_poll" }

// LastSync returns the completion time of the profile's last full run.
// The zero time means no run has completed.
func (s *Store) LastSync(profile string) (time.Time, error) {
	return s.getTime(lastSyncKey(profile))
}

// SetLastSync records the completion time of a full run.
func (s *Store) SetLastSync(profile string, t time.Time) error {
	return s.set(lastSyncKey(profile), t.UTC().Format(time.RFC3339Nano))
}

// LastPoll returns the completion time of the profile's last poll run.
func (s *Store) LastPoll(profile string) (time.Time, error) {
	return s.getTime(lastPollKey(profile))
}

// SetLastPoll records the completion time of a poll run.
func (s *Store) SetLastPoll(profile string, t time.Time) error {
	return s.set(lastPollKey(profile), t.UTC().Format(time.RFC3339Nano))
}

// LastRun returns the later of LastSync and LastPoll; poll runs narrow their
// scan to items modified since the last successful run of either loop.
func (s *Store) LastRun(profile string) (time.Time, error) {
	syncT, err := s.LastSync(profile)
	if err != nil {
		return time.Time{}, err
	}
	pollT, err := s.LastPoll(profile)
	if err != nil {
		return time.Time{}, err
	}
	if pollT.After(syncT) {
		return pollT, nil
	}
	return syncT, nil
}

func (s *Store) getTime(key string) (time.Time, error) {
	val, ok, err := s.get(key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s timestamp: %w", key, err)
	}
	return t, nil
}

func pinKey(profile, trackerNS, mediaKey, field string) string {
	return "pin/" + profile + "/" + trackerNS + "/" + mediaKey + "/" + field
}

func pinPrefix(profile, trackerNS, mediaKey string) string {
	return "pin/" + profile + "/" + trackerNS + "/" + mediaKey + "/"
}

// SetPin pins a tracking-entry field for a profile. Pinned fields are
// treated as always-equal during snapshot merge.
func (s *Store) SetPin(profile, trackerNS, mediaKey, field string) error {
	return s.set(pinKey(profile, trackerNS, mediaKey, field), "1")
}

// ClearPin removes a field pin.
func (s *Store) ClearPin(profile, trackerNS, mediaKey, field string) error {
	return s.delete(pinKey(profile, trackerNS, mediaKey, field))
}

// PinnedFields returns all pinned field names for one tracking entry.
func (s *Store) PinnedFields(profile, trackerNS, mediaKey string) (map[string]struct{}, error) {
	prefix := []byte(pinPrefix(profile, trackerNS, mediaKey))
	pins := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			pins[string(key[len(prefix):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state list pins: %w", err)
	}
	return pins, nil
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
