// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package models

import (
	"time"
)

// RetentionPeriod is how long a stored fix is kept before automatic expiry.
// ExpiresAt is always CreatedAt + RetentionPeriod.
const RetentionPeriod = 30 * 24 * time.Hour

// GeoPoint is a GeoJSON point derived from a fix's longitude/latitude pair.
// Coordinates are ordered [longitude, latitude] per the GeoJSON convention
// used by geospatial indexes.
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a latitude/longitude pair.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

// LocationFix is one stored GPS sample.
//
// UserID is always the authenticated submitter's identity, never a
// client-asserted value. Latitude/longitude are in range after
// normalization. A fix is never mutated after insert except to set
// SyncedAt when offline-collected data is confirmed synced.
type LocationFix struct {
	ID            string     `json:"id"`
	TruckID       string     `json:"truckId"`
	ShipmentID    string     `json:"shipmentId,omitempty"`
	FleetID       string     `json:"fleetId,omitempty"`
	UserID        string     `json:"userId"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	Location      GeoPoint   `json:"location"`
	Accuracy      *float64   `json:"accuracy,omitempty"`
	Heading       *float64   `json:"heading,omitempty"`
	Speed         *float64   `json:"speed,omitempty"`
	Altitude      *float64   `json:"altitude,omitempty"`
	BatteryLevel  *float64   `json:"batteryLevel,omitempty"`
	IsOfflineData bool       `json:"isOfflineData"`
	SyncedAt      *time.Time `json:"syncedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
}

// FixInput is the request body for a single GPS update. Latitude and
// longitude use pointers so that absent fields are distinguishable from
// zero values during validation. Latitude outside [-90, 90] is rejected
// at the schema gate; longitude carries no range tag because any value
// wraps into (-180, 180] during normalization. A client-supplied userId,
// if any, is ignored by the ingestion endpoints.
type FixInput struct {
	TruckID       string   `json:"truckId" validate:"required"`
	ShipmentID    string   `json:"shipmentId,omitempty"`
	FleetID       string   `json:"fleetId,omitempty"`
	Latitude      *float64 `json:"latitude" validate:"required,latitude"`
	Longitude     *float64 `json:"longitude" validate:"required"`
	Accuracy      *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Heading       *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed         *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Altitude      *float64 `json:"altitude,omitempty"`
	BatteryLevel  *float64 `json:"batteryLevel,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsOfflineData *bool    `json:"isOfflineData,omitempty"`
}

// BatchInput is the request body for a batch GPS update.
type BatchInput struct {
	Updates []FixInput `json:"updates"`
}

// ToFix materializes a LocationFix from a validated input. The caller
// supplies the authenticated user identity, the generated fix ID, and
// the creation time; coordinates are expected to be normalized already.
func (in *FixInput) ToFix(id, userID string, lat, lng float64, now time.Time) *LocationFix {
	fix := &LocationFix{
		ID:           id,
		TruckID:      in.TruckID,
		ShipmentID:   in.ShipmentID,
		FleetID:      in.FleetID,
		UserID:       userID,
		Latitude:     lat,
		Longitude:    lng,
		Location:     NewGeoPoint(lat, lng),
		Accuracy:     in.Accuracy,
		Heading:      in.Heading,
		Speed:        in.Speed,
		Altitude:     in.Altitude,
		BatteryLevel: in.BatteryLevel,
		CreatedAt:    now,
		ExpiresAt:    now.Add(RetentionPeriod),
	}
	if in.IsOfflineData != nil {
		fix.IsOfflineData = *in.IsOfflineData
	}
	return fix
}

// BatchResult reports the outcome of a batch insert. A partial failure is
// not an error: FailedCount is nonzero and the response still succeeds as
// long as the store itself stayed reachable.
type BatchResult struct {
	Inserted      []*LocationFix `json:"-"`
	InsertedCount int            `json:"insertedCount"`
	TotalCount    int            `json:"totalCount"`
	FailedCount   int            `json:"failedCount"`
}
