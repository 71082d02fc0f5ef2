// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package config loads and validates the Concordus configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. Environment variables always win.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Library  LibraryConfig  `koanf:"library"`
	Tracker  TrackerConfig  `koanf:"tracker"`
	Profiles []ProfileConfig `koanf:"profiles"`
	Sync     SyncConfig     `koanf:"sync"`
	Mappings MappingsConfig `koanf:"mappings"`
	Database DatabaseConfig `koanf:"database"`
	State    StateConfig    `koanf:"state"`
	Server   ServerConfig   `koanf:"server"`
	Backup   BackupConfig   `koanf:"backup"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// LibraryConfig configures the playback-library provider.
type LibraryConfig struct {
	// Provider selects the library implementation from the registry.
	Provider string `koanf:"provider" validate:"required"`

	URL   string `koanf:"url" validate:"required,url"`
	Token string `koanf:"token" validate:"required"`

	// RequestsPerSecond caps outbound requests to the library server.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`

	Timeout time.Duration `koanf:"timeout"`
}

// TrackerConfig configures the watch-list tracking provider.
type TrackerConfig struct {
	// Provider selects the tracker implementation from the registry.
	Provider string `koanf:"provider" validate:"required"`

	URL   string `koanf:"url" validate:"required,url"`
	Token string `koanf:"token" validate:"required"`

	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Timeout           time.Duration `koanf:"timeout"`

	// EntryCacheTTL bounds the in-memory media-key -> list-entry cache.
	// The cache is cleared on every reinit cycle regardless.
	EntryCacheTTL time.Duration `koanf:"entry_cache_ttl"`
}

// ProfileConfig pairs a set of library sections with tracker-side behavior.
// Profiles run independently; runs for different profiles may overlap.
type ProfileConfig struct {
	Name string `koanf:"name" validate:"required"`

	// Sections limits the profile to the named library sections.
	// Empty means all sections.
	Sections []string `koanf:"sections"`

	// DestructiveSync permits entry deletion and non-monotonic overwrites.
	DestructiveSync bool `koanf:"destructive_sync"`

	// FuzzyThreshold gates the title-search fallback when no mapping edge
	// resolves. -1 disables the fallback; 0 accepts any search result.
	FuzzyThreshold float64 `koanf:"fuzzy_threshold" validate:"gte=-1,lte=1"`

	// BatchRequests queues tracker updates and flushes them per section.
	BatchRequests bool `koanf:"batch_requests"`
}

// SyncConfig configures the scheduling coordinator.
type SyncConfig struct {
	// Interval between full reconciliation runs. A negative value means
	// "run exactly once, then exit".
	Interval time.Duration `koanf:"interval"`

	// PollInterval between narrowed runs covering only items modified since
	// the last successful run. Zero disables polling.
	PollInterval time.Duration `koanf:"poll_interval"`

	// ReinitInterval between provider session/cache refreshes.
	// Zero disables the reinit loop.
	ReinitInterval time.Duration `koanf:"reinit_interval"`

	// BatchSize chunks batched tracker updates.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`
}

// MappingsConfig configures the identifier-mapping graph loader.
type MappingsConfig struct {
	// Sources are mapping documents, paths or URLs, merged in order.
	// Later sources take precedence key-by-key.
	Sources []string `koanf:"sources"`

	// CustomSource is an operator-supplied override document merged last.
	// Edges it contributes are flagged as custom in provenance.
	CustomSource string `koanf:"custom_source"`

	// RefreshInterval between loader sync passes. The pass is a no-op when
	// the merged document hash is unchanged.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB query execution. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// StateConfig configures the Badger key/value store.
type StateConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// BackupConfig configures tracker-list backups.
type BackupConfig struct {
	// Enabled takes a backup of the tracker list before destructive runs.
	Enabled bool `koanf:"enabled"`

	Dir string `koanf:"dir"`

	// Keep is the number of backup files retained per profile.
	Keep int `koanf:"keep" validate:"gte=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Provider:          "plex",
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
		},
		Tracker: TrackerConfig{
			Provider:          "anilist",
			URL:               "https://graphql.anilist.co",
			RequestsPerSecond: 1.5,
			Timeout:           30 * time.Second,
			EntryCacheTTL:     30 * time.Minute,
		},
		Profiles: nil, // a default profile is synthesized when empty
		Sync: SyncConfig{
			Interval:       6 * time.Hour,
			PollInterval:   5 * time.Minute,
			ReinitInterval: 24 * time.Hour,
			BatchSize:      25,
		},
		Mappings: MappingsConfig{
			Sources:         nil,
			CustomSource:    "",
			RefreshInterval: 12 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:      "/data/concordus.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		State: StateConfig{
			Path: "/data/state",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            4848,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Backup: BackupConfig{
			Enabled: true,
			Dir:     "/data/backups",
			Keep:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// DefaultProfile is the profile synthesized when none are configured.
func DefaultProfile() ProfileConfig {
	return ProfileConfig{
		Name:            "default",
		DestructiveSync: false,
		FuzzyThreshold:  0.9,
		BatchRequests:   false,
	}
}
