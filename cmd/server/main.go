// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package main is the entry point for the Concordus server.
//
// Concordus bridges a personal media-playback library with an external
// watch-list tracking service: it derives watch status, progress, and rating
// for each library item from playback evidence and reconciles the derived
// state against the tracking service's record, applying the minimal update.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (env > config file > defaults)
//  2. DuckDB: mapping graph and reconciliation history
//  3. Badger: watermarks, mapping content hash, field pins
//  4. Providers: library and tracker clients from the registry
//  5. Engines: one reconciliation engine per configured profile
//  6. Supervisor tree: scheduling coordinator and admin HTTP server
//
// Shutdown is graceful on SIGINT/SIGTERM: in-flight runs observe cancellation
// at item boundaries, queued batch updates are recorded as pending, and the
// HTTP server drains before the process exits.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/concordus/internal/backup"
	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/database"
	"github.com/tomtom215/concordus/internal/history"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/mappings"
	"github.com/tomtom215/concordus/internal/provider"
	"github.com/tomtom215/concordus/internal/reconcile"
	"github.com/tomtom215/concordus/internal/scheduler"
	"github.com/tomtom215/concordus/internal/server"
	"github.com/tomtom215/concordus/internal/state"
	"github.com/tomtom215/concordus/internal/supervisor"
	"github.com/tomtom215/concordus/internal/supervisor/services"

	// Provider implementations register themselves with the registry.
	_ "github.com/tomtom215/concordus/internal/provider/anilist"
	_ "github.com/tomtom215/concordus/internal/provider/plex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("library", cfg.Library.Provider).
		Str("tracker", cfg.Tracker.Provider).
		Str("db_path", cfg.Database.Path).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	mapStore := mappings.NewStore(db.Conn())
	if err := mapStore.CreateTables(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create mapping tables")
	}
	histStore := history.NewDuckDBStore(db.Conn())
	if err := histStore.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create history table")
	}

	st, err := state.Open(cfg.State)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	library, err := provider.NewLibrary(cfg.Library)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to construct library provider")
	}
	tracker, err := provider.NewTracker(cfg.Tracker)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to construct tracker provider")
	}

	loader := mappings.NewLoader(cfg.Mappings.Sources, cfg.Mappings.CustomSource)
	syncer := mappings.NewSyncer(loader, mapStore, st)
	resolver := mappings.NewResolver(db.Conn())

	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = []config.ProfileConfig{config.DefaultProfile()}
		logging.Info().Msg("No profiles configured, using default profile")
	}

	jobs := make([]*scheduler.Job, 0, len(profiles))
	undoers := make(map[string]server.Undoer, len(profiles))
	for _, p := range profiles {
		engine := reconcile.NewEngine(p, library, tracker, resolver, histStore, st, cfg.Sync.BatchSize)
		jobs = append(jobs, &scheduler.Job{
			Profile: p,
			Engine:  engine,
			Library: library,
			Tracker: tracker,
		})
		undoers[p.Name] = engine
		logging.Info().
			Str("profile", p.Name).
			Bool("destructive", p.DestructiveSync).
			Msg("Profile engine created")
	}

	var backupTaker scheduler.BackupTaker
	if cfg.Backup.Enabled {
		backupTaker = backup.New(cfg.Backup)
		logging.Info().Str("dir", cfg.Backup.Dir).Int("keep", cfg.Backup.Keep).
			Msg("Tracker list backups enabled")
	}

	coordinator := scheduler.New(cfg.Sync, jobs, st, syncer, backupTaker)

	srv := server.New(cfg.Server, coordinator, histStore, undoers, db)
	httpServer := srv.HTTPServer()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSchedulerService(coordinator))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))
	logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	logging.Info().Msg("Stopped")
}
