// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package services adapts Concordus components to suture's Serve contract.
package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// Scheduler matches the scheduling coordinator's lifecycle.
type Scheduler interface {
	Serve(ctx context.Context) error
	RunOnce() bool
}

// SchedulerService wraps the coordinator as a supervised service. In
// run-once mode a clean return terminates the whole tree so the process
// exits after the single pass.
type SchedulerService struct {
	coordinator Scheduler
}

// NewSchedulerService creates the wrapper.
func NewSchedulerService(coordinator Scheduler) *SchedulerService {
	return &SchedulerService{coordinator: coordinator}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	err := s.coordinator.Serve(ctx)
	if err == nil && s.coordinator.RunOnce() {
		return suture.ErrTerminateSupervisorTree
	}
	return err
}

// String implements fmt.Stringer for suture's event log.
func (s *SchedulerService) String() string {
	return "scheduler"
}
