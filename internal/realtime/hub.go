// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"context"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// inboundEvent is a client message awaiting dispatch on the hub loop.
type inboundEvent struct {
	client *Client
	env    Envelope
}

// outboundEvent is a message to fan out to one room. exclude is nil for
// server-originated publishes (the ingestion path has no connection).
type outboundEvent struct {
	room    string
	env     Envelope
	exclude *Client
}

// HubStats is a point-in-time snapshot for the stats endpoint.
type HubStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Hub owns all room membership state. Membership is mutated only on the
// Run goroutine, so the mutex exists solely for Stats readers.
type Hub struct {
	cfg config.RealtimeConfig

	Register   chan *Client
	Unregister chan *Client
	inbound    chan inboundEvent
	publish    chan outboundEvent
	done       chan struct{}

	// rooms maps room name -> members; members maps client -> joined rooms.
	rooms   map[string]map[*Client]bool
	members map[*Client]map[string]bool
	mu      sync.RWMutex
}

// NewHub creates a hub. Call Run to start routing.
func NewHub(cfg config.RealtimeConfig) *Hub {
	return &Hub{
		cfg:        cfg,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, 256),
		publish:    make(chan outboundEvent, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		members:    make(map[*Client]map[string]bool),
	}
}

// Run routes events until ctx is cancelled. Designed for suture
// supervision; it returns ctx.Err() after closing all clients.
//
// Selection is priority-based so behavior stays predictable when
// multiple channels are ready: shutdown first, then client lifecycle,
// then message traffic.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			h.dispatch(ev)

		case out := <-h.publish:
			h.broadcastToRoom(out)
		}
	}
}

// Publish queues a server-originated message for a room. Non-blocking:
// when the hub is saturated the message is dropped and counted, never
// allowed to stall the caller.
func (h *Hub) Publish(room string, env Envelope) {
	select {
	case h.publish <- outboundEvent{room: room, env: env}:
	default:
		metrics.HubDroppedTotal.Inc()
		logging.Warn().Str("room", room).Str("event", env.Event).Msg("hub publish queue full, dropping message")
	}
}

// Stats returns current connection and room counts.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Connections: len(h.members),
		Rooms:       len(h.rooms),
	}
}

// registerClient adds a connection and auto-joins its private user room.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.members[client] = make(map[string]bool)
	h.mu.Unlock()

	h.joinRoom(client, UserRoom(client.userID))

	metrics.HubConnections.Set(float64(h.clientCount()))
	logging.Info().
		Str("user_id", client.userID).
		Int("total_clients", h.clientCount()).
		Msg("realtime client connected")
}

// removeClient drops a connection and all its room memberships.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	rooms, ok := h.members[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range rooms {
		delete(h.rooms[room], client)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.members, client)
	h.mu.Unlock()

	close(client.send)

	metrics.HubConnections.Set(float64(h.clientCount()))
	metrics.HubRooms.Set(float64(h.roomCount()))
	logging.Info().
		Str("user_id", client.userID).
		Msg("realtime client disconnected")
}

// joinRoom adds the client to a room, creating it on first join.
func (h *Hub) joinRoom(client *Client, room string) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	if h.members[client] == nil {
		h.members[client] = make(map[string]bool)
	}
	h.members[client][room] = true
	h.mu.Unlock()

	metrics.HubRooms.Set(float64(h.roomCount()))
}

// leaveRoom removes the client from a room, deleting it when empty.
func (h *Hub) leaveRoom(client *Client, room string) {
	h.mu.Lock()
	delete(h.rooms[room], client)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	delete(h.members[client], room)
	h.mu.Unlock()

	metrics.HubRooms.Set(float64(h.roomCount()))
}

// dispatch handles one client event. A handler error affects only the
// sending connection's event: it is logged and dropped, other room
// members never see it.
func (h *Hub) dispatch(ev inboundEvent) {
	metrics.HubEventsTotal.WithLabelValues(ev.env.Event).Inc()

	if err := h.handleEvent(ev.client, ev.env); err != nil {
		logging.Warn().
			Err(err).
			Str("event", ev.env.Event).
			Str("user_id", ev.client.userID).
			Msg("realtime event handler failed")
	}
}

func (h *Hub) handleEvent(client *Client, env Envelope) error {
	switch env.Event {
	case EventJoinShipment:
		id, err := unmarshalID(env.Data)
		if err != nil {
			return err
		}
		room := ShipmentRoom(id)
		h.joinRoom(client, room)
		return h.ack(client, RoomJoinedPayload{Room: room, ShipmentID: id})

	case EventLeaveShipment:
		id, err := unmarshalID(env.Data)
		if err != nil {
			return err
		}
		h.leaveRoom(client, ShipmentRoom(id))
		return nil

	case EventJoinFleet:
		id, err := unmarshalID(env.Data)
		if err != nil {
			return err
		}
		room := FleetRoom(id)
		h.joinRoom(client, room)
		return h.ack(client, RoomJoinedPayload{Room: room, FleetID: id})

	case EventLeaveFleet:
		id, err := unmarshalID(env.Data)
		if err != nil {
			return err
		}
		h.leaveRoom(client, FleetRoom(id))
		return nil

	case EventGPSUpdate:
		return h.handleGPSUpdate(client, env.Data)

	case EventGPSBatch:
		return h.handleGPSBatch(client, env.Data)

	case EventGeofenceEnter, EventGeofenceExit:
		return h.handleGeofence(client, env)

	case EventAlertTrigger:
		h.broadcastToRoom(outboundEvent{
			room:    UserRoom(client.userID),
			env:     env,
			exclude: client,
		})
		return nil

	default:
		logging.Debug().Str("event", env.Event).Msg("ignoring unknown realtime event")
		return nil
	}
}

// handleGPSUpdate fans a device-pushed fix out to the shipment room as
// location:changed and to the fleet room as truck:status, excluding the
// sender in both.
func (h *Hub) handleGPSUpdate(client *Client, data json.RawMessage) error {
	var payload GPSUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	if payload.ShipmentID != "" {
		env, err := NewEnvelope(EventLocationChanged, payload)
		if err != nil {
			return err
		}
		h.broadcastToRoom(outboundEvent{
			room:    ShipmentRoom(payload.ShipmentID),
			env:     env,
			exclude: client,
		})
	}

	if payload.FleetID != "" {
		env, err := NewEnvelope(EventTruckStatus, payload)
		if err != nil {
			return err
		}
		h.broadcastToRoom(outboundEvent{
			room:    FleetRoom(payload.FleetID),
			env:     env,
			exclude: client,
		})
	}

	return nil
}

// handleGPSBatch rebroadcasts a batch verbatim to the shipment room,
// including the sender. That mirrors the single-update path's contract
// for batches: every room member sees the same grouped message.
func (h *Hub) handleGPSBatch(client *Client, data json.RawMessage) error {
	var payload GPSBatchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	shipmentID := payload.ShipmentID
	if shipmentID == "" && len(payload.Updates) > 0 {
		shipmentID = payload.Updates[0].ShipmentID
	}
	if shipmentID == "" {
		return nil
	}

	env, err := NewEnvelope(EventGPSBatch, payload)
	if err != nil {
		return err
	}
	h.broadcastToRoom(outboundEvent{
		room: ShipmentRoom(shipmentID),
		env:  env,
	})
	return nil
}

func (h *Hub) handleGeofence(client *Client, env Envelope) error {
	var payload GeofencePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return err
	}
	if payload.ShipmentID == "" {
		return nil
	}
	h.broadcastToRoom(outboundEvent{
		room:    ShipmentRoom(payload.ShipmentID),
		env:     env,
		exclude: client,
	})
	return nil
}

// ack sends a message directly to one client, bypassing rooms.
func (h *Hub) ack(client *Client, payload RoomJoinedPayload) error {
	env, err := NewEnvelope(EventRoomJoined, payload)
	if err != nil {
		return err
	}
	h.sendToClient(client, env)
	return nil
}

// broadcastToRoom fans a message out to every room member except the
// excluded sender. Members are sorted by connection ID so delivery
// order is reproducible.
func (h *Hub) broadcastToRoom(out outboundEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[out.room]))
	for client := range h.rooms[out.room] {
		if client == out.exclude {
			continue
		}
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		h.sendToClient(client, out.env)
	}

	metrics.HubBroadcastsTotal.WithLabelValues(out.env.Event).Inc()
}

// sendToClient delivers best-effort. A member whose buffer is full is
// disconnected; a stalled consumer must never back-pressure the hub.
func (h *Hub) sendToClient(client *Client, env Envelope) {
	select {
	case client.send <- env:
	default:
		metrics.HubDroppedTotal.Inc()
		logging.Warn().
			Str("user_id", client.userID).
			Msg("client send buffer full, disconnecting")
		h.removeClient(client)
	}
}

// shutdown closes all clients and logs the reason. Context
// cancellation is the expected stop path, not an error.
func (h *Hub) shutdown(ctx context.Context) {
	close(h.done)

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.members))
	for client := range h.members {
		clients = append(clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.members = make(map[*Client]map[string]bool)
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
	}

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}

	metrics.HubConnections.Set(0)
	metrics.HubRooms.Set(0)
	logging.Info().
		Str("component", "realtime-hub").
		Str("reason", string(reason)).
		Int("clients_closed", len(clients)).
		Msg("realtime hub stopped")
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Hub) roomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// unmarshalID decodes a join/leave payload, which is a bare JSON string.
func unmarshalID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", err
	}
	return id, nil
}
