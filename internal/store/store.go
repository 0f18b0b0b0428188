// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package store persists GPS fixes. The Store interface is the
// persistence contract for the ingestion endpoints; BadgerStore is the
// embedded document-store implementation backing it.
package store

import (
	"context"
	"errors"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// MaxBatchSize is the hard cap on fixes accepted by a single InsertBatch call.
const MaxBatchSize = 1000

var (
	// ErrUnavailable indicates the underlying persistence is unreachable or
	// failed a write. Maps to STORAGE_ERROR / HTTP 500 at the API layer.
	ErrUnavailable = errors.New("fix store unavailable")

	// ErrNotFound indicates no fix matched the query.
	ErrNotFound = errors.New("fix not found")

	// ErrBatchLimitExceeded indicates an InsertBatch call above MaxBatchSize.
	// Endpoints reject oversized batches before reaching the store; this
	// guards direct callers of the contract.
	ErrBatchLimitExceeded = errors.New("batch exceeds maximum size")
)

// Store is the persistence contract for GPS fixes.
//
// InsertBatch is unordered and partial-failure tolerant: an element
// failure never aborts the rest, and the result counts every element
// either as inserted or failed. Only total unreachability of the store
// surfaces as an error.
type Store interface {
	// InsertOne persists a single validated, normalized fix.
	InsertOne(ctx context.Context, fix *models.LocationFix) error

	// InsertBatch persists up to MaxBatchSize fixes, tolerating
	// per-element failures. The result reports inserted/failed counts.
	InsertBatch(ctx context.Context, fixes []*models.LocationFix) (*models.BatchResult, error)

	// LatestForVehicle returns the most recent fix for a vehicle by
	// creation time, or ErrNotFound.
	LatestForVehicle(ctx context.Context, truckID string) (*models.LocationFix, error)

	// HistoryForVehicle returns up to limit fixes for a vehicle,
	// descending by creation time.
	HistoryForVehicle(ctx context.Context, truckID string, limit int) ([]*models.LocationFix, error)

	// UnsyncedOfflineFixes returns up to limit offline-collected fixes
	// for a user that have no sync timestamp, ascending by creation time
	// so sync order matches capture order.
	UnsyncedOfflineFixes(ctx context.Context, userID string, limit int) ([]*models.LocationFix, error)

	// MarkSynced sets the sync timestamp on the given fix ids and returns
	// the number of fixes actually updated. Re-marking an already-synced
	// fix is not an error; it is simply not recounted.
	MarkSynced(ctx context.Context, ids []string) (int, error)

	// PurgeOlderThan deletes fixes created more than the given number of
	// days ago and returns the delete count. Redundant with automatic
	// TTL expiry; exists for immediate manual cleanup.
	PurgeOlderThan(ctx context.Context, days int) (int, error)

	// Close releases the store's resources.
	Close() error
}
