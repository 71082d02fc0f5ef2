// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package scheduler runs reconciliation across all configured profiles on
// three cadences: periodic full runs, narrowed poll runs, and provider
// reinit cycles. Runs for one profile never overlap; a trigger that fires
// while a run is in flight is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/provider"
	"github.com/tomtom215/concordus/internal/reconcile"
	"github.com/tomtom215/concordus/internal/state"
)

// ErrRunInProgress is returned by manual triggers when the profile's gate is
// already held.
var ErrRunInProgress = errors.New("reconciliation already running for profile")

// ErrUnknownProfile is returned by manual triggers for unconfigured names.
var ErrUnknownProfile = errors.New("unknown profile")

// Runner is the per-profile reconciliation entry point.
type Runner interface {
	Run(ctx context.Context, opts reconcile.RunOptions) (reconcile.RunStats, error)
}

// MappingSyncer refreshes the mapping graph before periodic runs.
type MappingSyncer interface {
	Sync(ctx context.Context) error
}

// BackupTaker snapshots a tracker list before destructive runs.
type BackupTaker interface {
	Take(ctx context.Context, profile string, tracker provider.Tracker) error
}

// Job binds one profile to its engine and providers.
type Job struct {
	Profile config.ProfileConfig
	Engine  Runner
	Library provider.Library
	Tracker provider.Tracker
}

// Coordinator drives the three scheduling loops. It implements suture's
// service contract: Serve blocks until the context is cancelled or, with a
// negative interval, until the single run completes.
type Coordinator struct {
	cfg      config.SyncConfig
	jobs     []*Job
	state    *state.Store
	mappings MappingSyncer
	backup   BackupTaker

	gates map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// New creates a coordinator. mappings and backup may be nil.
func New(cfg config.SyncConfig, jobs []*Job, st *state.Store, mappings MappingSyncer, backup BackupTaker) *Coordinator {
	gates := make(map[string]*sync.Mutex, len(jobs))
	for _, job := range jobs {
		gates[job.Profile.Name] = &sync.Mutex{}
	}
	return &Coordinator{
		cfg:      cfg,
		jobs:     jobs,
		state:    st,
		mappings: mappings,
		backup:   backup,
		gates:    gates,
	}
}

// RunOnce reports whether the coordinator is configured to run a single
// pass and exit.
func (c *Coordinator) RunOnce() bool {
	return c.cfg.Interval < 0
}

// Serve runs the scheduling loops until ctx is cancelled. With a negative
// interval it performs exactly one full pass and returns nil, signalling
// the supervisor to shut the process down.
func (c *Coordinator) Serve(ctx context.Context) error {
	if c.RunOnce() {
		c.syncMappings(ctx)
		c.runAll(ctx, "periodic")
		c.wg.Wait()
		logging.Info().Msg("Single reconciliation pass complete")
		return nil
	}

	// The first full pass runs at startup rather than one interval in.
	c.syncMappings(ctx)
	c.runAll(ctx, "periodic")

	periodic := newTicker(c.cfg.Interval)
	poll := newTicker(c.cfg.PollInterval)
	reinit := newTicker(c.cfg.ReinitInterval)
	defer periodic.Stop()
	defer poll.Stop()
	defer reinit.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		case <-periodic.C:
			c.syncMappings(ctx)
			c.runAll(ctx, "periodic")
		case <-poll.C:
			c.runAll(ctx, "poll")
		case <-reinit.C:
			c.reinitAll(ctx)
		}
	}
}

// newTicker returns a ticker that never fires for non-positive intervals.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}

// runAll launches one run per profile. Profiles run concurrently; each
// passes through its own serialization gate.
func (c *Coordinator) runAll(ctx context.Context, trigger string) {
	for _, job := range c.jobs {
		job := job
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			// A run is the containment boundary: a panic escaping one
			// profile's engine is logged, never propagated to the process.
			defer func() {
				if r := recover(); r != nil {
					logging.Error().Str("profile", job.Profile.Name).Str("trigger", trigger).
						Interface("panic", r).Msg("Reconciliation run panicked")
				}
			}()
			if _, err := c.runProfile(ctx, job, trigger); err != nil &&
				!errors.Is(err, ErrRunInProgress) && !errors.Is(err, context.Canceled) {
				logging.Error().Str("profile", job.Profile.Name).Str("trigger", trigger).
					Err(err).Msg("Reconciliation run failed")
			}
		}()
	}
}

// Trigger starts a manual run for one profile, returning ErrRunInProgress
// when its gate is held.
func (c *Coordinator) Trigger(ctx context.Context, profile string) (reconcile.RunStats, error) {
	for _, job := range c.jobs {
		if job.Profile.Name == profile {
			return c.runProfile(ctx, job, "manual")
		}
	}
	return reconcile.RunStats{}, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
}

// runProfile executes one gated run. Watermarks advance only when the run
// terminates fully: a cancelled run leaves them untouched so the next tick
// reconsiders the same window.
func (c *Coordinator) runProfile(ctx context.Context, job *Job, trigger string) (reconcile.RunStats, error) {
	gate := c.gates[job.Profile.Name]
	if !gate.TryLock() {
		logging.Debug().Str("profile", job.Profile.Name).Str("trigger", trigger).
			Msg("Run already in flight, skipping trigger")
		return reconcile.RunStats{}, ErrRunInProgress
	}
	defer gate.Unlock()

	opts := reconcile.RunOptions{Trigger: trigger}
	if trigger == "poll" {
		since, err := c.state.LastRun(job.Profile.Name)
		if err != nil {
			return reconcile.RunStats{}, fmt.Errorf("read last-run watermark: %w", err)
		}
		opts.ModifiedSince = since
	}

	if job.Profile.DestructiveSync && c.backup != nil {
		if err := c.backup.Take(ctx, job.Profile.Name, job.Tracker); err != nil {
			return reconcile.RunStats{}, fmt.Errorf("tracker backup before destructive run: %w", err)
		}
	}

	started := time.Now().UTC()
	stats, err := job.Engine.Run(ctx, opts)
	if err != nil {
		return stats, err
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	if trigger == "poll" {
		err = c.state.SetLastPoll(job.Profile.Name, started)
	} else {
		err = c.state.SetLastSync(job.Profile.Name, started)
	}
	if err != nil {
		return stats, fmt.Errorf("advance watermark: %w", err)
	}
	return stats, nil
}

// syncMappings refreshes the mapping graph. Failures are logged and the run
// proceeds against the last applied graph.
func (c *Coordinator) syncMappings(ctx context.Context) {
	if c.mappings == nil {
		return
	}
	if err := c.mappings.Sync(ctx); err != nil {
		logging.Error().Err(err).Msg("Mapping sync failed, using last applied graph")
	}
}

// reinitAll refreshes provider sessions and caches for every job.
func (c *Coordinator) reinitAll(ctx context.Context) {
	seen := make(map[string]struct{})
	for _, job := range c.jobs {
		for name, r := range map[string]interface {
			Reinit(context.Context) error
		}{
			"library:" + job.Library.Namespace(): job.Library,
			"tracker:" + job.Tracker.Namespace(): job.Tracker,
		} {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if err := r.Reinit(ctx); err != nil {
				logging.Warn().Str("provider", name).Err(err).Msg("Provider reinit failed")
			} else {
				logging.Debug().Str("provider", name).Msg("Provider reinitialized")
			}
		}
	}
}
