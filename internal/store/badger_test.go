// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeFix(truckID, userID string, createdAt time.Time) *models.LocationFix {
	return &models.LocationFix{
		ID:        uuid.NewString(),
		TruckID:   truckID,
		UserID:    userID,
		Latitude:  -1.2921,
		Longitude: 36.8219,
		Location:  models.NewGeoPoint(-1.2921, 36.8219),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(models.RetentionPeriod),
	}
}

func TestInsertOneAndLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	older := makeFix("truck-1", "driver-1", now.Add(-time.Minute))
	newer := makeFix("truck-1", "driver-1", now)

	for _, fix := range []*models.LocationFix{older, newer} {
		if err := s.InsertOne(ctx, fix); err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
	}

	latest, err := s.LatestForVehicle(ctx, "truck-1")
	if err != nil {
		t.Fatalf("LatestForVehicle: %v", err)
	}
	if latest.ID != newer.ID {
		t.Errorf("latest = %s, want the newer fix %s", latest.ID, newer.ID)
	}
}

func TestLatestForUnknownVehicle(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestForVehicle(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		fix := makeFix("truck-1", "driver-1", base.Add(time.Duration(i)*time.Minute))
		if err := s.InsertOne(ctx, fix); err != nil {
			t.Fatalf("InsertOne %d: %v", i, err)
		}
		ids = append(ids, fix.ID)
	}
	// A different vehicle must not leak into the history.
	if err := s.InsertOne(ctx, makeFix("truck-2", "driver-2", base)); err != nil {
		t.Fatalf("InsertOne other vehicle: %v", err)
	}

	fixes, err := s.HistoryForVehicle(ctx, "truck-1", 3)
	if err != nil {
		t.Fatalf("HistoryForVehicle: %v", err)
	}
	if len(fixes) != 3 {
		t.Fatalf("history length = %d, want 3", len(fixes))
	}
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if fixes[i].ID != want {
			t.Errorf("history[%d] = %s, want %s", i, fixes[i].ID, want)
		}
	}
}

func TestInsertBatchRejectsOversize(t *testing.T) {
	s := openTestStore(t)

	fixes := make([]*models.LocationFix, MaxBatchSize+1)
	now := time.Now().UTC()
	for i := range fixes {
		fixes[i] = makeFix("truck-1", "driver-1", now)
	}

	_, err := s.InsertBatch(context.Background(), fixes)
	if !errors.Is(err, ErrBatchLimitExceeded) {
		t.Errorf("err = %v, want ErrBatchLimitExceeded", err)
	}
}

func TestInsertBatchCountsPartialFailures(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	fixes := []*models.LocationFix{
		makeFix("truck-1", "driver-1", now),
		makeFix("truck-1", "driver-1", now.Add(time.Second)),
		makeFix("truck-1", "driver-1", now.Add(2*time.Second)),
	}
	// An already-expired fix fails its element insert without aborting
	// the batch.
	fixes[1].ExpiresAt = now.Add(-time.Hour)

	result, err := s.InsertBatch(ctx, fixes)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if result.TotalCount != 3 || result.InsertedCount != 2 || result.FailedCount != 1 {
		t.Errorf("result = %+v, want total 3 inserted 2 failed 1", result)
	}
	if len(result.Inserted) != 2 {
		t.Errorf("Inserted carries %d fixes, want 2", len(result.Inserted))
	}

	history, err := s.HistoryForVehicle(ctx, "truck-1", 10)
	if err != nil {
		t.Fatalf("HistoryForVehicle: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("stored %d fixes, want 2", len(history))
	}
}

func TestOfflineSyncLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	first := makeFix("truck-1", "driver-1", base)
	first.IsOfflineData = true
	second := makeFix("truck-1", "driver-1", base.Add(time.Second))
	second.IsOfflineData = true
	online := makeFix("truck-1", "driver-1", base.Add(2*time.Second))

	for _, fix := range []*models.LocationFix{first, second, online} {
		if err := s.InsertOne(ctx, fix); err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
	}

	// Unsynced fixes come back oldest first; online data is excluded.
	unsynced, err := s.UnsyncedOfflineFixes(ctx, "driver-1", 10)
	if err != nil {
		t.Fatalf("UnsyncedOfflineFixes: %v", err)
	}
	if len(unsynced) != 2 {
		t.Fatalf("unsynced = %d, want 2", len(unsynced))
	}
	if unsynced[0].ID != first.ID || unsynced[1].ID != second.ID {
		t.Errorf("unsynced order = [%s %s], want capture order", unsynced[0].ID, unsynced[1].ID)
	}

	modified, err := s.MarkSynced(ctx, []string{first.ID, "no-such-id"})
	if err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if modified != 1 {
		t.Errorf("modified = %d, want 1 (unknown ids are skipped)", modified)
	}

	// Re-marking the same id is idempotent.
	modified, err = s.MarkSynced(ctx, []string{first.ID})
	if err != nil {
		t.Fatalf("MarkSynced again: %v", err)
	}
	if modified != 0 {
		t.Errorf("re-sync modified = %d, want 0", modified)
	}

	unsynced, err = s.UnsyncedOfflineFixes(ctx, "driver-1", 10)
	if err != nil {
		t.Fatalf("UnsyncedOfflineFixes after sync: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != second.ID {
		t.Errorf("unsynced after sync = %v, want only the second fix", unsynced)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := makeFix("truck-1", "driver-1", now.Add(-40*24*time.Hour))
	// Backdated creation but still within TTL so the insert is accepted.
	old.ExpiresAt = now.Add(time.Hour)
	fresh := makeFix("truck-1", "driver-1", now)

	for _, fix := range []*models.LocationFix{old, fresh} {
		if err := s.InsertOne(ctx, fix); err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
	}

	deleted, err := s.PurgeOlderThan(ctx, 30)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	history, err := s.HistoryForVehicle(ctx, "truck-1", 10)
	if err != nil {
		t.Fatalf("HistoryForVehicle: %v", err)
	}
	if len(history) != 1 || history[0].ID != fresh.ID {
		t.Errorf("history after purge = %v, want only the fresh fix", history)
	}
}

func TestInsertRejectsExpiredFix(t *testing.T) {
	s := openTestStore(t)

	fix := makeFix("truck-1", "driver-1", time.Now().UTC().Add(-31*24*time.Hour))
	err := s.InsertOne(context.Background(), fix)
	if err == nil {
		t.Fatal("InsertOne accepted an already-expired fix")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want wrapped ErrUnavailable", err)
	}
}

func TestHistoryLimitZeroReturnsNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertOne(ctx, makeFix("truck-1", "driver-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	fixes, err := s.HistoryForVehicle(ctx, "truck-1", 0)
	if err != nil {
		t.Fatalf("HistoryForVehicle: %v", err)
	}
	if len(fixes) != 0 {
		t.Errorf("limit 0 returned %d fixes", len(fixes))
	}
}

func BenchmarkInsertOne(b *testing.B) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fix := makeFix(fmt.Sprintf("truck-%d", i%100), "driver-1", now)
		if err := s.InsertOne(ctx, fix); err != nil {
			b.Fatal(err)
		}
	}
}
