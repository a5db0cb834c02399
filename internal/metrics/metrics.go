// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the service:
// API endpoint latency and throughput, catalog client calls, circuit
// breaker state, and recommendation pipeline counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API endpoint metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Catalog client metrics

	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of catalog API calls",
		},
		[]string{"operation", "result"},
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of catalog API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers by outcome",
		},
		[]string{"name", "outcome"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Recommendation pipeline metrics

	RecommendationsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_generated_total",
			Help: "Total tracks returned across recommendation requests",
		},
	)

	CandidatesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidates_fetched_total",
			Help: "Total candidate tracks fetched by source",
		},
		[]string{"source"}, // "seeded", "search_fallback"
	)

	FallbackActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_activations_total",
			Help: "Total activations of the liveness fallback tiers",
		},
		[]string{"tier"}, // "unfiltered", "search"
	)

	ExclusionFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exclusion_fail_open_total",
			Help: "Times exclusion checks were bypassed because the set exceeded its bound",
		},
	)

	ExclusionStoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exclusion_store_writes_total",
			Help: "Best-effort exclusion persistence writes by tier and result",
		},
		[]string{"tier", "result"}, // tier: "local", "remote"
	)

	ProfileBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_builds_total",
			Help: "Taste profile builds by outcome",
		},
		[]string{"outcome"}, // "ok", "empty", "cached"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_sessions_active",
			Help: "Current number of live engine sessions",
		},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCatalogRequest records a catalog API call.
func RecordCatalogRequest(operation, result string, duration time.Duration) {
	CatalogRequestsTotal.WithLabelValues(operation, result).Inc()
	CatalogRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
