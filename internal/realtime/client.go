// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
)

// clientIDCounter assigns monotonically increasing connection IDs so
// broadcasts iterate members in a stable order.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the
// hub. The user identity is bound at construction from verified
// credentials and never changes.
type Client struct {
	id      uint64
	userID  string
	hub     *Hub
	conn    *websocket.Conn
	send    chan Envelope
	limiter *rate.Limiter
	cfg     config.RealtimeConfig
}

// NewClient wraps an upgraded connection for the given authenticated user.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		userID:  userID,
		hub:     hub,
		conn:    conn,
		send:    make(chan Envelope, hub.cfg.SendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.ClientRatePerSec), hub.cfg.ClientRateBurst),
		cfg:     hub.cfg,
	}
}

// UserID returns the connection's bound identity.
func (c *Client) UserID() string {
	return c.userID
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump forwards client events to the hub. Events beyond the
// per-connection rate limit are dropped, not queued.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close error")
			}
			break
		}

		if !c.limiter.Allow() {
			logging.Warn().
				Str("user_id", c.userID).
				Str("event", env.Event).
				Msg("rate limit exceeded, dropping event")
			continue
		}

		select {
		case c.hub.inbound <- inboundEvent{client: c, env: env}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps hub messages to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(env); err != nil {
				logging.Error().Err(err).Str("user_id", c.userID).Msg("failed to write realtime message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
