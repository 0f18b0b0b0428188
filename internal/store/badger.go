// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/metrics"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// Key prefixes for BadgerDB storage.
//
//	fix:<id>                          -> JSON LocationFix
//	veh:<truckID>:<ts>:<id>           -> fix id (time-ordered vehicle index)
//	off:<userID>:<ts>:<id>            -> fix id (unsynced offline index)
//
// <ts> is the zero-padded UnixNano of CreatedAt so lexicographic key
// order matches creation order. Every entry carries a TTL equal to the
// fix's remaining retention, which implements the ExpiresAt invariant.
const (
	fixKeyPrefix     = "fix:"
	vehicleKeyPrefix = "veh:"
	offlineKeyPrefix = "off:"
)

// BadgerStore implements Store on top of an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Options configures a BadgerStore.
type Options struct {
	// Path is the on-disk directory for the database. Ignored when
	// InMemory is set.
	Path string

	// InMemory runs the store without persistence. Used by tests and
	// ephemeral deployments.
	InMemory bool
}

// Open opens a Badger-backed fix store.
func Open(opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open fix store: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunGC runs Badger value-log garbage collection until there is nothing
// left to collect. Intended to be called periodically by a supervised
// maintenance loop.
func (s *BadgerStore) RunGC() {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func tsKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func fixKey(id string) []byte {
	return []byte(fixKeyPrefix + id)
}

func vehicleKey(fix *models.LocationFix) []byte {
	return []byte(vehicleKeyPrefix + fix.TruckID + ":" + tsKey(fix.CreatedAt) + ":" + fix.ID)
}

func offlineKey(fix *models.LocationFix) []byte {
	return []byte(offlineKeyPrefix + fix.UserID + ":" + tsKey(fix.CreatedAt) + ":" + fix.ID)
}

// setFix writes a fix and its index entries inside txn, with TTL set to
// the fix's remaining retention.
func setFix(txn *badger.Txn, fix *models.LocationFix) error {
	ttl := time.Until(fix.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("fix %s already expired", fix.ID)
	}

	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("marshal fix: %w", err)
	}

	if err := txn.SetEntry(badger.NewEntry(fixKey(fix.ID), data).WithTTL(ttl)); err != nil {
		return err
	}
	if err := txn.SetEntry(badger.NewEntry(vehicleKey(fix), []byte(fix.ID)).WithTTL(ttl)); err != nil {
		return err
	}
	if fix.IsOfflineData && fix.SyncedAt == nil {
		if err := txn.SetEntry(badger.NewEntry(offlineKey(fix), []byte(fix.ID)).WithTTL(ttl)); err != nil {
			return err
		}
	}
	return nil
}

// InsertOne persists a single fix. The fix must carry an ID, CreatedAt,
// and ExpiresAt assigned by the caller.
func (s *BadgerStore) InsertOne(ctx context.Context, fix *models.LocationFix) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return setFix(txn, fix)
	})
	metrics.ObserveStoreOp("insert_one", time.Since(start), err)

	if err != nil {
		return storageErr("insert fix", err)
	}
	return nil
}

// InsertBatch persists fixes one element at a time so that a failure on
// one element does not abort the others. The returned result counts
// every element as inserted or failed; an error is returned only when
// the store itself is unusable.
func (s *BadgerStore) InsertBatch(ctx context.Context, fixes []*models.LocationFix) (*models.BatchResult, error) {
	if len(fixes) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchLimitExceeded, len(fixes), MaxBatchSize)
	}
	if s.db.IsClosed() {
		return nil, storageErr("insert batch", errors.New("database closed"))
	}

	result := &models.BatchResult{TotalCount: len(fixes)}
	start := time.Now()

	for _, fix := range fixes {
		if err := ctx.Err(); err != nil {
			// A canceled batch leaves already-written fixes in place;
			// the counts reflect exactly what was made durable.
			result.FailedCount = result.TotalCount - result.InsertedCount
			return result, nil
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			return setFix(txn, fix)
		})
		if err != nil {
			result.FailedCount++
			logging.Warn().Err(err).Str("fix_id", fix.ID).Msg("batch element insert failed")
			continue
		}
		result.Inserted = append(result.Inserted, fix)
		result.InsertedCount++
	}

	metrics.ObserveStoreOp("insert_batch", time.Since(start), nil)
	metrics.ObserveBatchSize(len(fixes))

	return result, nil
}

// getFix loads a fix by id inside txn.
func getFix(txn *badger.Txn, id string) (*models.LocationFix, error) {
	item, err := txn.Get(fixKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var fix models.LocationFix
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &fix)
	}); err != nil {
		return nil, err
	}
	return &fix, nil
}

// LatestForVehicle returns the most recent fix for a vehicle.
func (s *BadgerStore) LatestForVehicle(ctx context.Context, truckID string) (*models.LocationFix, error) {
	fixes, err := s.HistoryForVehicle(ctx, truckID, 1)
	if err != nil {
		return nil, err
	}
	if len(fixes) == 0 {
		return nil, ErrNotFound
	}
	return fixes[0], nil
}

// HistoryForVehicle returns up to limit fixes, newest first.
func (s *BadgerStore) HistoryForVehicle(ctx context.Context, truckID string, limit int) ([]*models.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	prefix := []byte(vehicleKeyPrefix + truckID + ":")
	var fixes []*models.LocationFix

	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the end of the prefix
		// range; 0xFF sorts after any timestamp/id byte.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(fixes) < limit; it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			fix, err := getFix(txn, id)
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the fix (TTL race); skip.
				continue
			}
			if err != nil {
				return err
			}
			fixes = append(fixes, fix)
		}
		return nil
	})
	metrics.ObserveStoreOp("history", time.Since(start), err)

	if err != nil {
		return nil, storageErr("vehicle history", err)
	}
	return fixes, nil
}

// UnsyncedOfflineFixes returns offline fixes without a sync timestamp,
// oldest first.
func (s *BadgerStore) UnsyncedOfflineFixes(ctx context.Context, userID string, limit int) ([]*models.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	prefix := []byte(offlineKeyPrefix + userID + ":")
	var fixes []*models.LocationFix

	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(fixes) < limit; it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			fix, err := getFix(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if fix.SyncedAt != nil {
				continue
			}
			fixes = append(fixes, fix)
		}
		return nil
	})
	metrics.ObserveStoreOp("unsynced_offline", time.Since(start), err)

	if err != nil {
		return nil, storageErr("unsynced offline fixes", err)
	}
	return fixes, nil
}

// MarkSynced sets the sync timestamp on the given fix ids. Returns the
// number of fixes actually transitioned to synced. Unknown or
// already-synced ids are not errors and are not counted.
func (s *BadgerStore) MarkSynced(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	modified := 0
	now := time.Now().UTC()

	start := time.Now()
	for _, id := range ids {
		err := s.db.Update(func(txn *badger.Txn) error {
			fix, err := getFix(txn, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if fix.SyncedAt != nil {
				return nil
			}

			fix.SyncedAt = &now

			ttl := time.Until(fix.ExpiresAt)
			if ttl <= 0 {
				return nil
			}
			data, err := json.Marshal(fix)
			if err != nil {
				return err
			}
			if err := txn.SetEntry(badger.NewEntry(fixKey(fix.ID), data).WithTTL(ttl)); err != nil {
				return err
			}
			if err := txn.Delete(offlineKey(fix)); err != nil {
				return err
			}

			modified++
			return nil
		})
		if err != nil {
			metrics.ObserveStoreOp("mark_synced", time.Since(start), err)
			return modified, storageErr("mark synced", err)
		}
	}
	metrics.ObserveStoreOp("mark_synced", time.Since(start), nil)

	return modified, nil
}

// PurgeOlderThan deletes fixes created before now minus the given number
// of days. Returns the number of fixes deleted.
func (s *BadgerStore) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	prefix := []byte(fixKeyPrefix)

	// Collect victims under a read transaction first; deletes run in
	// follow-up write transactions to keep each one small.
	var victims []*models.LocationFix
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fix models.LocationFix
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fix)
			}); err != nil {
				return err
			}
			if fix.CreatedAt.Before(cutoff) {
				f := fix
				victims = append(victims, &f)
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("purge scan", err)
	}

	deleted := 0
	for _, fix := range victims {
		err := s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete(fixKey(fix.ID)); err != nil {
				return err
			}
			if err := txn.Delete(vehicleKey(fix)); err != nil {
				return err
			}
			if fix.IsOfflineData && fix.SyncedAt == nil {
				if err := txn.Delete(offlineKey(fix)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return deleted, storageErr("purge delete", err)
		}
		deleted++
	}

	logging.Info().Int("deleted", deleted).Int("days", days).Msg("purged expired fixes")
	return deleted, nil
}
