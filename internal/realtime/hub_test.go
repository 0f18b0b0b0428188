// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
)

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		WriteWait:        5 * time.Second,
		PongWait:         30 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBufferSize:   32,
		ClientRatePerSec: 100,
		ClientRateBurst:  100,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

type hubVerifier struct{}

func (hubVerifier) Verify(token string) (*auth.Subject, error) {
	if strings.HasPrefix(token, "user:") {
		return &auth.Subject{UserID: strings.TrimPrefix(token, "user:"), Role: "driver"}, nil
	}
	return nil, errors.New("bad token")
}

// startTestHub runs a hub plus its HTTP entry point, tearing both down
// with the test.
func startTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(testRealtimeConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	handler := NewConnectHandler(hub, hubVerifier{}, config.SecurityConfig{CORSOrigins: []string{"*"}})
	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=user:" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("build %s envelope: %v", event, err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) (Envelope, bool) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

func joinShipment(t *testing.T, conn *websocket.Conn, id string) {
	t.Helper()
	sendEvent(t, conn, EventJoinShipment, id)

	env, ok := readEvent(t, conn, 2*time.Second)
	if !ok {
		t.Fatalf("no room:joined ack for shipment %s", id)
	}
	if env.Event != EventRoomJoined {
		t.Fatalf("ack event = %q, want %s", env.Event, EventRoomJoined)
	}
	var ack RoomJoinedPayload
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Room != ShipmentRoom(id) || ack.ShipmentID != id {
		t.Fatalf("ack = %+v, want room %s", ack, ShipmentRoom(id))
	}
}

func TestConnectRefusedWithoutToken(t *testing.T) {
	_, srv := startTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
}

func TestConnectRefusedWithBadToken(t *testing.T) {
	_, srv := startTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
}

func TestGPSUpdateBroadcastExcludesSender(t *testing.T) {
	_, srv := startTestHub(t)

	sender := dialHub(t, srv, "alice")
	viewer := dialHub(t, srv, "bob")
	outsider := dialHub(t, srv, "carol")

	joinShipment(t, sender, "S1")
	joinShipment(t, viewer, "S1")
	joinShipment(t, outsider, "S2")

	heading := 90.0
	sendEvent(t, sender, EventGPSUpdate, GPSUpdatePayload{
		TruckID:    "truck-1",
		ShipmentID: "S1",
		Latitude:   -1.2921,
		Longitude:  36.8219,
		Heading:    &heading,
		Timestamp:  time.Now().UTC(),
	})

	env, ok := readEvent(t, viewer, 2*time.Second)
	if !ok {
		t.Fatal("viewer received no event")
	}
	if env.Event != EventLocationChanged {
		t.Fatalf("viewer event = %q, want %s", env.Event, EventLocationChanged)
	}
	var got GPSUpdatePayload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.TruckID != "truck-1" || got.ShipmentID != "S1" {
		t.Errorf("payload = %+v, want truck-1/S1", got)
	}

	// The sender must not receive its own update back.
	if env, ok := readEvent(t, sender, 300*time.Millisecond); ok {
		t.Fatalf("sender received echo: %+v", env)
	}

	// A member of a different shipment room sees nothing.
	if env, ok := readEvent(t, outsider, 300*time.Millisecond); ok {
		t.Fatalf("outsider received event: %+v", env)
	}
}

func TestGPSUpdateReachesFleetRoom(t *testing.T) {
	_, srv := startTestHub(t)

	sender := dialHub(t, srv, "alice")
	dispatcher := dialHub(t, srv, "dave")

	sendEvent(t, dispatcher, EventJoinFleet, "F9")
	env, ok := readEvent(t, dispatcher, 2*time.Second)
	if !ok || env.Event != EventRoomJoined {
		t.Fatalf("fleet join ack = %+v ok=%v", env, ok)
	}

	sendEvent(t, sender, EventGPSUpdate, GPSUpdatePayload{
		TruckID:   "truck-2",
		FleetID:   "F9",
		Latitude:  6.5244,
		Longitude: 3.3792,
		Timestamp: time.Now().UTC(),
	})

	env, ok = readEvent(t, dispatcher, 2*time.Second)
	if !ok {
		t.Fatal("dispatcher received no event")
	}
	if env.Event != EventTruckStatus {
		t.Fatalf("dispatcher event = %q, want %s", env.Event, EventTruckStatus)
	}
}

func TestGPSBatchIncludesSender(t *testing.T) {
	_, srv := startTestHub(t)

	sender := dialHub(t, srv, "alice")
	viewer := dialHub(t, srv, "bob")

	joinShipment(t, sender, "S1")
	joinShipment(t, viewer, "S1")

	sendEvent(t, sender, EventGPSBatch, GPSBatchPayload{
		UserID:     "alice",
		ShipmentID: "S1",
		Updates: []GPSUpdatePayload{
			{TruckID: "truck-1", ShipmentID: "S1", Latitude: 1, Longitude: 2, Timestamp: time.Now().UTC()},
			{TruckID: "truck-1", ShipmentID: "S1", Latitude: 1.1, Longitude: 2.1, Timestamp: time.Now().UTC()},
		},
		Timestamp: time.Now().UTC(),
	})

	for _, tc := range []struct {
		name string
		conn *websocket.Conn
	}{
		{"viewer", viewer},
		{"sender", sender},
	} {
		env, ok := readEvent(t, tc.conn, 2*time.Second)
		if !ok {
			t.Fatalf("%s received no batch", tc.name)
		}
		if env.Event != EventGPSBatch {
			t.Fatalf("%s event = %q, want %s", tc.name, env.Event, EventGPSBatch)
		}
		var batch GPSBatchPayload
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			t.Fatalf("unmarshal batch: %v", err)
		}
		if len(batch.Updates) != 2 {
			t.Errorf("%s got %d updates, want 2", tc.name, len(batch.Updates))
		}
	}
}

func TestAlertRoutedToUserRoom(t *testing.T) {
	_, srv := startTestHub(t)

	// Two connections for the same user: phone and laptop.
	phone := dialHub(t, srv, "alice")
	laptop := dialHub(t, srv, "alice")
	stranger := dialHub(t, srv, "bob")

	// Registration is asynchronous; the user room must contain both
	// connections before the alert fires.
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, phone, EventAlertTrigger, AlertPayload{
		Kind:      "battery_low",
		Message:   "battery below 10%",
		Timestamp: time.Now().UTC(),
	})

	env, ok := readEvent(t, laptop, 2*time.Second)
	if !ok {
		t.Fatal("second device received no alert")
	}
	if env.Event != EventAlertTrigger {
		t.Fatalf("event = %q, want %s", env.Event, EventAlertTrigger)
	}

	if env, ok := readEvent(t, stranger, 300*time.Millisecond); ok {
		t.Fatalf("other user received alert: %+v", env)
	}
}

func TestLeaveShipmentStopsDelivery(t *testing.T) {
	_, srv := startTestHub(t)

	sender := dialHub(t, srv, "alice")
	viewer := dialHub(t, srv, "bob")

	joinShipment(t, sender, "S1")
	joinShipment(t, viewer, "S1")

	sendEvent(t, viewer, EventLeaveShipment, "S1")
	// leave has no ack; give the hub a moment to process it.
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, sender, EventGPSUpdate, GPSUpdatePayload{
		TruckID:    "truck-1",
		ShipmentID: "S1",
		Latitude:   1,
		Longitude:  2,
		Timestamp:  time.Now().UTC(),
	})

	if env, ok := readEvent(t, viewer, 300*time.Millisecond); ok {
		t.Fatalf("viewer received event after leaving: %+v", env)
	}
}

func TestStatsCountsConnectionsAndRooms(t *testing.T) {
	hub, srv := startTestHub(t)

	a := dialHub(t, srv, "alice")
	dialHub(t, srv, "bob")

	joinShipment(t, a, "S1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := hub.Stats()
		// Two connections; rooms are user:alice, user:bob, shipment:S1.
		if stats.Connections == 2 && stats.Rooms == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats = %+v, want 2 connections and 3 rooms", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMalformedEventDoesNotKillConnection(t *testing.T) {
	_, srv := startTestHub(t)

	conn := dialHub(t, srv, "alice")

	// join with a non-string payload is logged and dropped.
	if err := conn.WriteJSON(Envelope{Event: EventJoinShipment, Data: json.RawMessage(`{"bad":1}`)}); err != nil {
		t.Fatalf("write malformed event: %v", err)
	}

	// The connection still works afterwards.
	joinShipment(t, conn, "S1")
}
