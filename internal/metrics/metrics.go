// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package metrics defines the Prometheus instrumentation for the
// telemetry server. All collectors are registered with the default
// registry via promauto and exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	IngestFixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_ingest_fixes_total",
			Help: "Total GPS fixes processed by the ingestion endpoints",
		},
		[]string{"result"}, // inserted, failed, rejected
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gotruck_ingest_batch_size",
			Help:    "Number of fixes per batch insert",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	SuspiciousFixesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gotruck_ingest_suspicious_fixes_total",
			Help: "Fixes flagged by the advisory location-jump check",
		},
	)

	// Store metrics

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotruck_store_op_duration_seconds",
			Help:    "Fix store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_store_op_errors_total",
			Help: "Fix store operation failures",
		},
		[]string{"op"},
	)

	// Realtime hub metrics

	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotruck_hub_connections",
			Help: "Currently connected realtime clients",
		},
	)

	HubRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotruck_hub_rooms",
			Help: "Rooms with at least one member",
		},
	)

	HubEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_hub_events_total",
			Help: "Events received from realtime clients",
		},
		[]string{"event"},
	)

	HubBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_hub_broadcasts_total",
			Help: "Messages routed to room subscribers",
		},
		[]string{"event"},
	)

	HubDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gotruck_hub_dropped_total",
			Help: "Messages dropped because a client send buffer was full",
		},
	)

	HubAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gotruck_hub_auth_failures_total",
			Help: "Realtime connections refused for bad credentials",
		},
	)

	// Event bus metrics

	BusPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_bus_publishes_total",
			Help: "Fix events published to the internal bus",
		},
		[]string{"result"}, // ok, error, open (circuit breaker)
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotruck_api_requests_total",
			Help: "API requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gotruck_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotruck_api_active_requests",
			Help: "In-flight API requests",
		},
	)
)

// ObserveStoreOp records a store operation's latency and failure.
func ObserveStoreOp(op string, d time.Duration, err error) {
	StoreOpDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(op).Inc()
	}
}

// ObserveBatchSize records the element count of a batch insert.
func ObserveBatchSize(n int) {
	IngestBatchSize.Observe(float64(n))
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
