// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/concordus/internal/config"
)

// LibraryFactory constructs a library provider from configuration.
type LibraryFactory func(cfg config.LibraryConfig) (Library, error)

// TrackerFactory constructs a tracker provider from configuration.
type TrackerFactory func(cfg config.TrackerConfig) (Tracker, error)

var (
	registryMu       sync.RWMutex
	libraryFactories = make(map[string]LibraryFactory)
	trackerFactories = make(map[string]TrackerFactory)
)

// RegisterLibrary registers a library implementation under a provider name.
// Called from implementation packages' init functions, like sql drivers.
func RegisterLibrary(name string, factory LibraryFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := libraryFactories[name]; dup {
		panic(fmt.Sprintf("provider: RegisterLibrary called twice for %q", name))
	}
	libraryFactories[name] = factory
}

// RegisterTracker registers a tracker implementation under a provider name.
func RegisterTracker(name string, factory TrackerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := trackerFactories[name]; dup {
		panic(fmt.Sprintf("provider: RegisterTracker called twice for %q", name))
	}
	trackerFactories[name] = factory
}

// NewLibrary constructs the configured library provider.
func NewLibrary(cfg config.LibraryConfig) (Library, error) {
	registryMu.RLock()
	factory, ok := libraryFactories[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown library provider %q (registered: %v)",
			cfg.Provider, registeredLibraries())
	}
	return factory(cfg)
}

// NewTracker constructs the configured tracker provider.
func NewTracker(cfg config.TrackerConfig) (Tracker, error) {
	registryMu.RLock()
	factory, ok := trackerFactories[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tracker provider %q (registered: %v)",
			cfg.Provider, registeredTrackers())
	}
	return factory(cfg)
}

func registeredLibraries() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(libraryFactories))
	for name := range libraryFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registeredTrackers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(trackerFactories))
	for name := range trackerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
