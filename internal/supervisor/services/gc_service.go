// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package services

import (
	"context"
	"time"
)

// Collector matches the store's value-log garbage collection entry point.
type Collector interface {
	RunGC()
}

// StoreGCService periodically runs Badger value-log garbage collection.
// Badger never reclaims value-log space on its own; without this loop a
// long-running server's store grows unboundedly even as TTL expiry
// removes keys.
type StoreGCService struct {
	store    Collector
	interval time.Duration
}

// NewStoreGCService creates a GC loop with the given interval.
func NewStoreGCService(store Collector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{store: store, interval: interval}
}

// Serve implements suture.Service. It runs one GC pass per interval
// until the context is canceled.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.store.RunGC()
		}
	}
}

// String identifies the service in supervisor logs.
func (s *StoreGCService) String() string {
	return "store-gc"
}
