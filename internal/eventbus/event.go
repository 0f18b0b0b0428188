// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package eventbus

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// TopicFix is the bus topic carrying accepted GPS fixes.
const TopicFix = "gps.fix"

// FixEvent is published after fixes are durably stored. Batch is true
// when the fixes came in through the batch endpoint; subscribers use it
// to emit a single grouped message instead of one per fix.
type FixEvent struct {
	TruckID     string                `json:"truckId"`
	ShipmentID  string                `json:"shipmentId,omitempty"`
	FleetID     string                `json:"fleetId,omitempty"`
	Batch       bool                  `json:"batch"`
	Fixes       []*models.LocationFix `json:"fixes"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// NewFixEvent builds a FixEvent from stored fixes. The identifiers are
// taken from the first fix; all fixes in one event belong to the same
// truck.
func NewFixEvent(fixes []*models.LocationFix, batch bool) (*FixEvent, error) {
	if len(fixes) == 0 {
		return nil, fmt.Errorf("fix event requires at least one fix")
	}
	first := fixes[0]
	return &FixEvent{
		TruckID:     first.TruckID,
		ShipmentID:  first.ShipmentID,
		FleetID:     first.FleetID,
		Batch:       batch,
		Fixes:       fixes,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Marshal serializes the event for the bus.
func (e *FixEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal fix event: %w", err)
	}
	return data, nil
}

// UnmarshalFixEvent deserializes a bus payload back into a FixEvent.
func UnmarshalFixEvent(data []byte) (*FixEvent, error) {
	var event FixEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal fix event: %w", err)
	}
	if len(event.Fixes) == 0 {
		return nil, fmt.Errorf("fix event has no fixes")
	}
	return &event, nil
}
