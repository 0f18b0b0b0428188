// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/eventbus"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// chanFixSource feeds the subscriber from a plain channel.
type chanFixSource struct {
	ch chan *message.Message
}

func newChanFixSource() *chanFixSource {
	return &chanFixSource{ch: make(chan *message.Message, 8)}
}

func (s *chanFixSource) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.ch, nil
}

func (s *chanFixSource) push(t *testing.T, event *eventbus.FixEvent) {
	t.Helper()
	payload, err := event.Marshal()
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	s.ch <- message.NewMessage(uuid.New().String(), payload)
}

// startSubscriber runs a BusSubscriber against the hub for the test's
// lifetime.
func startSubscriber(t *testing.T, hub *Hub, source FixSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sub := NewBusSubscriber(hub, source)
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func storedFix(truckID, shipmentID, fleetID string) *models.LocationFix {
	now := time.Now().UTC()
	return &models.LocationFix{
		ID:         uuid.New().String(),
		TruckID:    truckID,
		ShipmentID: shipmentID,
		FleetID:    fleetID,
		UserID:     "driver-1",
		Latitude:   -1.2921,
		Longitude:  36.8219,
		Location:   models.NewGeoPoint(-1.2921, 36.8219),
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.RetentionPeriod),
	}
}

func TestBusSubscriberRoutesFixToRooms(t *testing.T) {
	hub, srv := startTestHub(t)
	source := newChanFixSource()
	startSubscriber(t, hub, source)

	shipmentViewer := dialHub(t, srv, "bob")
	fleetViewer := dialHub(t, srv, "dave")

	joinShipment(t, shipmentViewer, "S1")
	sendEvent(t, fleetViewer, EventJoinFleet, "F9")
	if env, ok := readEvent(t, fleetViewer, 2*time.Second); !ok || env.Event != EventRoomJoined {
		t.Fatalf("fleet join ack = %+v ok=%v", env, ok)
	}

	event, err := eventbus.NewFixEvent([]*models.LocationFix{storedFix("truck-1", "S1", "F9")}, false)
	if err != nil {
		t.Fatalf("NewFixEvent() error = %v", err)
	}
	source.push(t, event)

	env, ok := readEvent(t, shipmentViewer, 2*time.Second)
	if !ok {
		t.Fatal("shipment viewer received no event")
	}
	if env.Event != EventLocationChanged {
		t.Fatalf("shipment viewer event = %q, want %s", env.Event, EventLocationChanged)
	}
	var payload GPSUpdatePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TruckID != "truck-1" {
		t.Errorf("TruckID = %q, want truck-1", payload.TruckID)
	}

	env, ok = readEvent(t, fleetViewer, 2*time.Second)
	if !ok {
		t.Fatal("fleet viewer received no event")
	}
	if env.Event != EventTruckStatus {
		t.Fatalf("fleet viewer event = %q, want %s", env.Event, EventTruckStatus)
	}
}

func TestBusSubscriberRoutesBatchGrouped(t *testing.T) {
	hub, srv := startTestHub(t)
	source := newChanFixSource()
	startSubscriber(t, hub, source)

	viewer := dialHub(t, srv, "bob")
	joinShipment(t, viewer, "S1")

	fixes := []*models.LocationFix{
		storedFix("truck-1", "S1", ""),
		storedFix("truck-1", "S1", ""),
		storedFix("truck-1", "S1", ""),
	}
	event, err := eventbus.NewFixEvent(fixes, true)
	if err != nil {
		t.Fatalf("NewFixEvent() error = %v", err)
	}
	source.push(t, event)

	env, ok := readEvent(t, viewer, 2*time.Second)
	if !ok {
		t.Fatal("viewer received no batch")
	}
	if env.Event != EventGPSBatch {
		t.Fatalf("event = %q, want %s", env.Event, EventGPSBatch)
	}
	var batch GPSBatchPayload
	if err := json.Unmarshal(env.Data, &batch); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(batch.Updates) != 3 {
		t.Errorf("len(Updates) = %d, want 3", len(batch.Updates))
	}
	if batch.UserID != "driver-1" {
		t.Errorf("UserID = %q, want driver-1", batch.UserID)
	}
}

func TestBusSubscriberIgnoresMalformedEvent(t *testing.T) {
	hub, srv := startTestHub(t)
	source := newChanFixSource()
	startSubscriber(t, hub, source)

	viewer := dialHub(t, srv, "bob")
	joinShipment(t, viewer, "S1")

	source.ch <- message.NewMessage(uuid.New().String(), []byte("not json"))

	// A good event after the bad one still flows.
	event, err := eventbus.NewFixEvent([]*models.LocationFix{storedFix("truck-1", "S1", "")}, false)
	if err != nil {
		t.Fatalf("NewFixEvent() error = %v", err)
	}
	source.push(t, event)

	env, ok := readEvent(t, viewer, 2*time.Second)
	if !ok {
		t.Fatal("viewer received no event after malformed message")
	}
	if env.Event != EventLocationChanged {
		t.Fatalf("event = %q, want %s", env.Event, EventLocationChanged)
	}
}
