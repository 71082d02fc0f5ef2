// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a minimal configuration that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Library.URL = "http://plex.local:32400"
	cfg.Library.Token = "token"
	cfg.Tracker.Token = "token"
	cfg.Mappings.Sources = []string{"/etc/concordus/mappings.yaml"}
	cfg.Profiles = []ProfileConfig{DefaultProfile()}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsMissingLibraryURL(t *testing.T) {
	cfg := validConfig()
	cfg.Library.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing library URL")
	}
}

func TestValidateRejectsDuplicateProfiles(t *testing.T) {
	cfg := validConfig()
	cfg.Profiles = []ProfileConfig{
		{Name: "anime", FuzzyThreshold: 0.9},
		{Name: "anime", FuzzyThreshold: 0.8},
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate profile") {
		t.Fatalf("expected duplicate profile error, got %v", err)
	}
}

func TestValidateRejectsMissingMappingSources(t *testing.T) {
	cfg := validConfig()
	cfg.Mappings.Sources = nil
	cfg.Mappings.CustomSource = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty mapping sources")
	}
}

func TestValidateRejectsPollSlowerThanInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Interval = time.Minute
	cfg.Sync.PollInterval = time.Hour
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for poll_interval > interval")
	}
}

func TestValidateAllowsRunOnceInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.Interval = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with run-once interval = %v, want nil", err)
	}
}

func TestValidateFuzzyThresholdRange(t *testing.T) {
	cfg := validConfig()
	cfg.Profiles[0].FuzzyThreshold = 2.0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for fuzzy_threshold > 1")
	}

	cfg.Profiles[0].FuzzyThreshold = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with disabled fuzzy fallback = %v, want nil", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"LIBRARY_URL", "library.url"},
		{"TRACKER_TOKEN", "tracker.token"},
		{"SYNC_INTERVAL", "sync.interval"},
		{"DUCKDB_PATH", "database.path"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.key); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
