// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package geo provides pure coordinate normalization and plausibility
// functions for GPS fixes. Nothing here performs I/O or validation of
// request shape; schema validation happens first (internal/validation)
// and these functions are applied after it.
package geo

import (
	"math"
)

const earthRadiusKm = 6371.0

// NormalizeCoordinates clamps latitude into [-90, 90] and wraps longitude
// into (-180, 180]. It is a total function: every input produces an
// in-range output. Normalizing an already-normalized pair returns the
// same values.
func NormalizeCoordinates(lat, lng float64) (float64, float64) {
	if lat > 90 {
		lat = 90
	} else if lat < -90 {
		lat = -90
	}

	for lng > 180 {
		lng -= 360
	}
	for lng <= -180 {
		lng += 360
	}

	return lat, lng
}

// HaversineKm calculates the great-circle distance between two points
// on Earth using the haversine formula. Returns distance in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lng1Rad := lng1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lng2Rad := lng2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// IsLocationSuspicious reports whether the jump from the previous fix to
// the new fix exceeds maxDistanceKm of great-circle distance. This is an
// advisory anti-spoofing signal: callers decide whether to gate on it.
// The ingestion endpoints log and flag suspicious fixes but do not
// reject them.
func IsLocationSuspicious(prevLat, prevLng, newLat, newLng, maxDistanceKm float64) bool {
	return HaversineKm(prevLat, prevLng, newLat, newLng) > maxDistanceKm
}
