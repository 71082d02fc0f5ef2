// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package metrics exposes Prometheus instrumentation for reconciliation
// runs, item outcomes, mapping ingestion, and provider request latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation run metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concordus_sync_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"profile", "trigger", "result"}, // trigger: "periodic", "poll", "manual"
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concordus_sync_run_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"profile"},
	)

	ItemOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concordus_item_outcomes_total",
			Help: "Total item reconciliation outcomes",
		},
		[]string{"profile", "outcome"},
	)

	// Mapping graph metrics
	MappingSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concordus_mapping_syncs_total",
			Help: "Total mapping ingestion passes",
		},
		[]string{"result"}, // "applied", "unchanged", "failed"
	)

	MappingEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "concordus_mapping_edges",
			Help: "Current number of edges in the mapping graph",
		},
	)

	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concordus_provider_requests_total",
			Help: "Total provider API requests",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concordus_provider_request_duration_seconds",
			Help:    "Duration of provider API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "concordus_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)

// ObserveRun records one reconciliation run.
func ObserveRun(profile, trigger string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SyncRuns.WithLabelValues(profile, trigger, result).Inc()
	SyncRunDuration.WithLabelValues(profile).Observe(elapsed.Seconds())
}

// ObserveOutcome records one item outcome.
func ObserveOutcome(profile, outcome string) {
	ItemOutcomes.WithLabelValues(profile, outcome).Inc()
}

// ObserveProviderRequest records one provider API request.
func ObserveProviderRequest(provider, operation, status string, elapsed time.Duration) {
	ProviderRequests.WithLabelValues(provider, operation, status).Inc()
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}
