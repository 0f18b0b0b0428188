// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package client

import (
	"time"

	"github.com/goccy/go-json"
)

// Event names sent to the server.
const (
	eventJoinShipment  = "join:shipment"
	eventLeaveShipment = "leave:shipment"
	eventJoinFleet     = "join:fleet"
	eventLeaveFleet    = "leave:fleet"
	eventGPSUpdate     = "gps:update"
	eventGPSBatch      = "gps:batch"
)

// Event names received from the server.
const (
	eventRoomJoined      = "room:joined"
	eventLocationChanged = "location:changed"
	eventTruckStatus     = "truck:status"
	eventGeofenceEnter   = "geofence:entered"
	eventGeofenceExit    = "geofence:exited"
	eventAlertTrigger    = "alert:triggered"
)

// envelope is the websocket wire frame: an event name and its payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newEnvelope(event string, payload interface{}) (envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Event: event, Data: data}, nil
}

// GPSUpdate is a single outbound position report. UserID and Timestamp
// are stamped by the bridge before sending.
type GPSUpdate struct {
	TruckID    string    `json:"truckId"`
	ShipmentID string    `json:"shipmentId,omitempty"`
	FleetID    string    `json:"fleetId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GPSBatch is a group of position reports forwarded together.
type GPSBatch struct {
	UserID     string      `json:"userId,omitempty"`
	ShipmentID string      `json:"shipmentId,omitempty"`
	Updates    []GPSUpdate `json:"updates"`
	Timestamp  time.Time   `json:"timestamp"`
}

// LocationChanged is delivered to shipment-room subscribers when a
// truck on that shipment reports a position.
type LocationChanged struct {
	TruckID    string    `json:"truckId"`
	ShipmentID string    `json:"shipmentId,omitempty"`
	FleetID    string    `json:"fleetId,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TruckStatus mirrors LocationChanged but is delivered to fleet-room
// subscribers.
type TruckStatus = LocationChanged

// GeofenceEvent is delivered when a truck crosses a geofence boundary.
type GeofenceEvent struct {
	TruckID    string    `json:"truckId"`
	ShipmentID string    `json:"shipmentId"`
	GeofenceID string    `json:"geofenceId"`
	Timestamp  time.Time `json:"timestamp"`
}

// Alert is delivered to the triggering user's other sessions.
type Alert struct {
	TruckID   string    `json:"truckId,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// roomJoined acknowledges a join request.
type roomJoined struct {
	Room       string `json:"room"`
	ShipmentID string `json:"shipmentId,omitempty"`
	FleetID    string `json:"fleetId,omitempty"`
}
