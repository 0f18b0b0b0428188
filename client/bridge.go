// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package client is the realtime bridge used by dashboard and agent
// processes. It maintains one authenticated websocket session to the
// telemetry hub, tracks room membership, and fans received events out
// to typed subscribers.
//
// Outbound sends while disconnected are dropped silently; the bridge
// never buffers or retries outbound events. Room joins while
// disconnected are no-ops, but memberships established on a live
// connection are remembered and re-joined after a reconnect.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrMaxReconnects is returned from Run when the bounded reconnect
// budget is exhausted.
var ErrMaxReconnects = errors.New("reconnect attempts exhausted")

// Options configures a Bridge.
type Options struct {
	// URL is the hub websocket endpoint, e.g.
	// wss://host/api/v1/realtime/ws.
	URL string

	// Token is the bearer token presented during the handshake.
	Token string

	// UserID is stamped onto outbound GPS events. It should match the
	// identity inside Token; the server trusts only the token.
	UserID string

	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// the bridge gives up. Zero means 10.
	MaxReconnectAttempts int

	// InitialBackoff is the first reconnect delay. Zero means 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential reconnect delay. Zero means 32s.
	MaxBackoff time.Duration

	// HandshakeTimeout bounds the websocket dial. Zero means 10s.
	HandshakeTimeout time.Duration

	// PingInterval is the keep-alive cadence. Zero means 30s.
	PingInterval time.Duration

	// ReadTimeout is the per-read deadline. Zero means 60s.
	ReadTimeout time.Duration

	// Logger receives connection lifecycle and drop events. A zero
	// value discards them.
	Logger zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 10
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 32 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 60 * time.Second
	}
}

// handlerSet is a registration-ordered set of event callbacks.
type handlerSet map[uint64]func(json.RawMessage)

// Bridge is a hub connection manager. All methods are safe for
// concurrent use.
type Bridge struct {
	opts Options

	connMu     sync.RWMutex
	conn       *websocket.Conn
	connecting bool

	roomsMu sync.Mutex
	rooms   map[string]string // room event, e.g. "join:shipment" -> id

	handlersMu    sync.RWMutex
	handlers      map[string]handlerSet
	nextHandlerID uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a bridge. Call Run to establish and maintain the
// connection.
func New(opts Options) *Bridge {
	opts.applyDefaults()
	return &Bridge{
		opts:     opts,
		rooms:    make(map[string]string),
		handlers: make(map[string]handlerSet),
		stop:     make(chan struct{}),
	}
}

// Run connects and services the session until the context is canceled,
// Close is called, or the reconnect budget is exhausted. It blocks;
// run it in its own goroutine.
func (b *Bridge) Run(ctx context.Context) error {
	attempts := 0
	backoff := b.opts.InitialBackoff

	for {
		if err := b.connect(ctx); err != nil {
			attempts++
			if attempts >= b.opts.MaxReconnectAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrMaxReconnects, attempts, err)
			}
			b.opts.Logger.Warn().Err(err).Dur("backoff", backoff).Int("attempt", attempts).
				Msg("Hub connection failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			case <-b.stop:
				return nil
			}
			backoff *= 2
			if backoff > b.opts.MaxBackoff {
				backoff = b.opts.MaxBackoff
			}
			continue
		}

		attempts = 0
		backoff = b.opts.InitialBackoff
		b.rejoinRooms()

		// readLoop returns when the connection drops or Run should end.
		if done := b.readLoop(ctx); done {
			return ctxErrOrNil(ctx)
		}
	}
}

func ctxErrOrNil(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Close tears down the connection and stops Run. Safe to call more
// than once.
func (b *Bridge) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.closeConn()
	b.wg.Wait()
	return nil
}

// IsConnected reports whether a live session exists.
func (b *Bridge) IsConnected() bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.conn != nil
}

// IsConnecting reports whether a dial or reconnect is in progress.
func (b *Bridge) IsConnecting() bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.connecting
}

// connect dials the hub and installs the connection.
func (b *Bridge) connect(ctx context.Context) error {
	b.connMu.Lock()
	b.connecting = true
	b.connMu.Unlock()
	defer func() {
		b.connMu.Lock()
		b.connecting = false
		b.connMu.Unlock()
	}()

	dialer := websocket.Dialer{HandshakeTimeout: b.opts.HandshakeTimeout}
	header := http.Header{}
	if b.opts.Token != "" {
		header.Set("Authorization", "Bearer "+b.opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, b.opts.URL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return fmt.Errorf("hub dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("hub dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	b.opts.Logger.Info().Str("url", b.opts.URL).Msg("Hub connected")

	b.wg.Add(1)
	go b.pingLoop(conn)
	return nil
}

// readLoop consumes events until the connection drops. It returns true
// when Run should stop entirely.
func (b *Bridge) readLoop(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			b.closeConn()
			return true
		case <-b.stop:
			b.closeConn()
			return true
		default:
		}

		b.connMu.RLock()
		conn := b.conn
		b.connMu.RUnlock()
		if conn == nil {
			return false
		}

		if err := conn.SetReadDeadline(time.Now().Add(b.opts.ReadTimeout)); err != nil {
			b.opts.Logger.Debug().Err(err).Msg("Failed to set read deadline")
		}

		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.opts.Logger.Info().Msg("Hub closed the connection")
			} else if ctx.Err() == nil {
				b.opts.Logger.Warn().Err(err).Msg("Hub read error")
			}
			b.closeConn()
			return false
		}

		b.dispatch(env)
	}
}

// dispatch fans an event out to its subscribers. Handler panics would
// tear down the read loop, so each handler runs behind a recover.
func (b *Bridge) dispatch(env envelope) {
	b.handlersMu.RLock()
	set := b.handlers[env.Event]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(json.RawMessage), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, set[id])
	}
	b.handlersMu.RUnlock()

	for _, fn := range fns {
		b.invoke(env.Event, fn, env.Data)
	}
}

func (b *Bridge) invoke(event string, fn func(json.RawMessage), data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Error().Str("event", event).Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	fn(data)
}

// pingLoop keeps the connection alive while conn is current.
func (b *Bridge) pingLoop(conn *websocket.Conn) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.connMu.RLock()
			current := b.conn == conn
			b.connMu.RUnlock()
			if !current {
				return
			}
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				b.opts.Logger.Debug().Err(err).Msg("Keep-alive ping failed")
				return
			}
		}
	}
}

// closeConn drops the current connection, if any.
func (b *Bridge) closeConn() {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = b.conn.Close()
	b.conn = nil
}

// send emits an event, silently dropping it when disconnected.
func (b *Bridge) send(event string, payload interface{}) {
	env, err := newEnvelope(event, payload)
	if err != nil {
		b.opts.Logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil {
		b.opts.Logger.Debug().Str("event", event).Msg("Dropped event while disconnected")
		return
	}
	if err := b.conn.WriteJSON(env); err != nil {
		b.opts.Logger.Warn().Err(err).Str("event", event).Msg("Failed to send event")
	}
}

// JoinShipment subscribes this session to a shipment's location
// events. No-op while disconnected.
func (b *Bridge) JoinShipment(shipmentID string) {
	b.joinRoom(eventJoinShipment, shipmentID)
}

// LeaveShipment unsubscribes from a shipment room. No-op while
// disconnected.
func (b *Bridge) LeaveShipment(shipmentID string) {
	b.leaveRoom(eventJoinShipment, eventLeaveShipment, shipmentID)
}

// JoinFleet subscribes this session to a fleet's truck status events.
// No-op while disconnected.
func (b *Bridge) JoinFleet(fleetID string) {
	b.joinRoom(eventJoinFleet, fleetID)
}

// LeaveFleet unsubscribes from a fleet room. No-op while disconnected.
func (b *Bridge) LeaveFleet(fleetID string) {
	b.leaveRoom(eventJoinFleet, eventLeaveFleet, fleetID)
}

func (b *Bridge) joinRoom(joinEvent, id string) {
	if !b.IsConnected() {
		return
	}
	b.roomsMu.Lock()
	b.rooms[joinEvent+":"+id] = id
	b.roomsMu.Unlock()
	b.send(joinEvent, id)
}

func (b *Bridge) leaveRoom(joinEvent, leaveEvent, id string) {
	if !b.IsConnected() {
		return
	}
	b.roomsMu.Lock()
	delete(b.rooms, joinEvent+":"+id)
	b.roomsMu.Unlock()
	b.send(leaveEvent, id)
}

// rejoinRooms replays remembered memberships after a reconnect.
func (b *Bridge) rejoinRooms() {
	b.roomsMu.Lock()
	keys := make([]string, 0, len(b.rooms))
	for key := range b.rooms {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	type pending struct{ event, id string }
	replay := make([]pending, 0, len(keys))
	for _, key := range keys {
		id := b.rooms[key]
		event := key[:len(key)-len(id)-1]
		replay = append(replay, pending{event: event, id: id})
	}
	b.roomsMu.Unlock()

	for _, p := range replay {
		b.send(p.event, p.id)
	}
}

// SendGPSUpdate stamps identity and a client timestamp onto an update
// and emits it. Dropped silently while disconnected.
func (b *Bridge) SendGPSUpdate(update GPSUpdate) {
	update.UserID = b.opts.UserID
	update.Timestamp = time.Now().UTC()
	b.send(eventGPSUpdate, update)
}

// SendGPSBatch stamps identity and a client timestamp onto a batch and
// emits it. Dropped silently while disconnected.
func (b *Bridge) SendGPSBatch(batch GPSBatch) {
	batch.UserID = b.opts.UserID
	batch.Timestamp = time.Now().UTC()
	b.send(eventGPSBatch, batch)
}

// subscribe registers a raw handler and returns its unsubscribe func.
func (b *Bridge) subscribe(event string, fn func(json.RawMessage)) func() {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.nextHandlerID++
	id := b.nextHandlerID
	if b.handlers[event] == nil {
		b.handlers[event] = make(handlerSet)
	}
	b.handlers[event][id] = fn

	return func() {
		b.handlersMu.Lock()
		defer b.handlersMu.Unlock()
		delete(b.handlers[event], id)
	}
}

// OnLocationChanged subscribes to shipment-room position updates.
// Returns an unsubscribe function.
func (b *Bridge) OnLocationChanged(fn func(LocationChanged)) func() {
	return b.subscribe(eventLocationChanged, decodeInto(b, eventLocationChanged, fn))
}

// OnTruckStatus subscribes to fleet-room truck status updates.
func (b *Bridge) OnTruckStatus(fn func(TruckStatus)) func() {
	return b.subscribe(eventTruckStatus, decodeInto(b, eventTruckStatus, fn))
}

// OnGPSBatch subscribes to rebroadcast batches on joined shipment
// rooms.
func (b *Bridge) OnGPSBatch(fn func(GPSBatch)) func() {
	return b.subscribe(eventGPSBatch, decodeInto(b, eventGPSBatch, fn))
}

// OnGeofenceEntered subscribes to geofence entry events.
func (b *Bridge) OnGeofenceEntered(fn func(GeofenceEvent)) func() {
	return b.subscribe(eventGeofenceEnter, decodeInto(b, eventGeofenceEnter, fn))
}

// OnGeofenceExited subscribes to geofence exit events.
func (b *Bridge) OnGeofenceExited(fn func(GeofenceEvent)) func() {
	return b.subscribe(eventGeofenceExit, decodeInto(b, eventGeofenceExit, fn))
}

// OnAlertTriggered subscribes to alerts routed to this user's room.
func (b *Bridge) OnAlertTriggered(fn func(Alert)) func() {
	return b.subscribe(eventAlertTrigger, decodeInto(b, eventAlertTrigger, fn))
}

// OnRoomJoined subscribes to join acknowledgements.
func (b *Bridge) OnRoomJoined(fn func(room string)) func() {
	return b.subscribe(eventRoomJoined, func(data json.RawMessage) {
		var ack roomJoined
		if err := json.Unmarshal(data, &ack); err != nil {
			b.opts.Logger.Debug().Err(err).Msg("Malformed room:joined payload")
			return
		}
		fn(ack.Room)
	})
}

// decodeInto adapts a typed handler to the raw subscription shape.
// Malformed payloads are logged and dropped.
func decodeInto[T any](b *Bridge, event string, fn func(T)) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			b.opts.Logger.Debug().Err(err).Str("event", event).Msg("Malformed event payload")
			return
		}
		fn(payload)
	}
}
