// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/eventbus"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// FixSource is the subscription half of the event bus. Satisfied by
// *eventbus.Bus; the interface keeps the subscriber testable with a
// plain channel.
type FixSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// BusSubscriber bridges ingestion fix events to websocket rooms. Fixes
// accepted over HTTP flow through here so dashboard viewers see them
// without the device holding a websocket.
type BusSubscriber struct {
	hub    *Hub
	source FixSource
}

// NewBusSubscriber creates the bus-to-hub bridge.
func NewBusSubscriber(hub *Hub, source FixSource) *BusSubscriber {
	return &BusSubscriber{hub: hub, source: source}
}

// Run consumes fix events until ctx is cancelled. Designed for suture
// supervision.
func (s *BusSubscriber) Run(ctx context.Context) error {
	messages, err := s.source.Subscribe(ctx, eventbus.TopicFix)
	if err != nil {
		return err
	}

	logging.Info().Str("topic", eventbus.TopicFix).Msg("realtime fix subscriber started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("realtime fix subscriber stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				logging.Info().Msg("fix event stream closed")
				return nil
			}
			s.handleMessage(msg)
		}
	}
}

// handleMessage routes one fix event to the appropriate rooms. A
// malformed event is logged and acked; the bus must not redeliver it.
func (s *BusSubscriber) handleMessage(msg *message.Message) {
	defer msg.Ack()

	event, err := eventbus.UnmarshalFixEvent(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("failed to unmarshal fix event")
		return
	}

	if event.Batch {
		s.routeBatch(event)
		return
	}

	for _, fix := range event.Fixes {
		s.routeFix(fix)
	}
}

// routeFix publishes one stored fix as location:changed to its shipment
// room and truck:status to its fleet room.
func (s *BusSubscriber) routeFix(fix *models.LocationFix) {
	payload := fixToPayload(fix)

	if fix.ShipmentID != "" {
		env, err := NewEnvelope(EventLocationChanged, payload)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to build location:changed envelope")
			return
		}
		s.hub.Publish(ShipmentRoom(fix.ShipmentID), env)
	}

	if fix.FleetID != "" {
		env, err := NewEnvelope(EventTruckStatus, payload)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to build truck:status envelope")
			return
		}
		s.hub.Publish(FleetRoom(fix.FleetID), env)
	}
}

// routeBatch publishes a grouped gps:batch message to the shipment room.
func (s *BusSubscriber) routeBatch(event *eventbus.FixEvent) {
	if len(event.Fixes) == 0 {
		return
	}
	if event.ShipmentID == "" {
		// Batches without a shipment still update the fleet room fix
		// by fix so fleet dashboards stay current.
		for _, fix := range event.Fixes {
			s.routeFix(fix)
		}
		return
	}

	updates := make([]GPSUpdatePayload, 0, len(event.Fixes))
	for _, fix := range event.Fixes {
		updates = append(updates, fixToPayload(fix))
	}

	payload := GPSBatchPayload{
		UserID:     event.Fixes[0].UserID,
		ShipmentID: event.ShipmentID,
		Updates:    updates,
		Timestamp:  event.PublishedAt,
	}

	env, err := NewEnvelope(EventGPSBatch, payload)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to build gps:batch envelope")
		return
	}
	s.hub.Publish(ShipmentRoom(event.ShipmentID), env)
}

func fixToPayload(fix *models.LocationFix) GPSUpdatePayload {
	return GPSUpdatePayload{
		TruckID:    fix.TruckID,
		ShipmentID: fix.ShipmentID,
		FleetID:    fix.FleetID,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Heading:    fix.Heading,
		Speed:      fix.Speed,
		Timestamp:  fix.CreatedAt,
	}
}
