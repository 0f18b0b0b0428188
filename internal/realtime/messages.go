// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Client-to-server event names.
const (
	EventJoinShipment  = "join:shipment"
	EventLeaveShipment = "leave:shipment"
	EventJoinFleet     = "join:fleet"
	EventLeaveFleet    = "leave:fleet"
	EventGPSUpdate     = "gps:update"
	EventGPSBatch      = "gps:batch"
	EventGeofenceEnter = "geofence:entered"
	EventGeofenceExit  = "geofence:exited"
	EventAlertTrigger  = "alert:triggered"
)

// Server-to-client event names.
const (
	EventRoomJoined      = "room:joined"
	EventLocationChanged = "location:changed"
	EventTruckStatus     = "truck:status"
)

// Envelope is the wire format for every hub message in both
// directions: an event name plus an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals a payload into an envelope for the given event.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// GPSUpdatePayload is the gps:update / location:changed / truck:status
// payload shape.
type GPSUpdatePayload struct {
	TruckID    string    `json:"truckId"`
	ShipmentID string    `json:"shipmentId,omitempty"`
	FleetID    string    `json:"fleetId,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GPSBatchPayload is the gps:batch payload shape. It is rebroadcast
// verbatim to the shipment room.
type GPSBatchPayload struct {
	UserID     string             `json:"userId"`
	ShipmentID string             `json:"shipmentId,omitempty"`
	Updates    []GPSUpdatePayload `json:"updates"`
	Timestamp  time.Time          `json:"timestamp"`
}

// GeofencePayload is the geofence:entered / geofence:exited payload.
type GeofencePayload struct {
	TruckID    string    `json:"truckId"`
	ShipmentID string    `json:"shipmentId"`
	GeofenceID string    `json:"geofenceId"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertPayload is the alert:triggered payload, routed to the sender's
// own user room.
type AlertPayload struct {
	TruckID   string    `json:"truckId,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoinedPayload acknowledges a join with the resolved room name.
type RoomJoinedPayload struct {
	Room       string `json:"room"`
	ShipmentID string `json:"shipmentId,omitempty"`
	FleetID    string `json:"fleetId,omitempty"`
}

// Room name constructors. Rooms are plain strings; these helpers keep
// the naming scheme in one place.

func ShipmentRoom(id string) string { return "shipment:" + id }
func FleetRoom(id string) string    { return "fleet:" + id }
func UserRoom(id string) string     { return "user:" + id }
