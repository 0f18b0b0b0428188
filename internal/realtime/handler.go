// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package realtime

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/metrics"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// ConnectHandler upgrades HTTP requests to hub connections. The bearer
// token is verified before the upgrade: a bad credential gets a plain
// 401 and no websocket ever exists for it.
type ConnectHandler struct {
	hub         *Hub
	verifier    auth.TokenVerifier
	corsOrigins []string
}

// NewConnectHandler creates the websocket entry point.
func NewConnectHandler(hub *Hub, verifier auth.TokenVerifier, security config.SecurityConfig) *ConnectHandler {
	return &ConnectHandler{
		hub:         hub,
		verifier:    verifier,
		corsOrigins: security.CORSOrigins,
	}
}

// ServeHTTP authenticates and upgrades a connection. The token comes
// from the Authorization header, or the token query parameter for
// browser clients that cannot set headers on websocket handshakes.
func (h *ConnectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		metrics.HubAuthFailures.Inc()
		h.refuse(w, "missing bearer token")
		return
	}

	sub, err := h.verifier.Verify(token)
	if err != nil {
		metrics.HubAuthFailures.Inc()
		logging.Ctx(r.Context()).Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("realtime connection refused")
		h.refuse(w, "invalid or expired token")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:    h.hub.cfg.ReadBufferSize,
		WriteBufferSize:   h.hub.cfg.WriteBufferSize,
		EnableCompression: h.hub.cfg.EnableCompression,
		HandshakeTimeout:  10 * time.Second,
		CheckOrigin:       h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := NewClient(h.hub, conn, sub.UserID)
	h.hub.Register <- client
	client.Start()
}

// checkOrigin validates the Origin header against the configured CORS
// origins. Requests without an Origin header are allowed: devices and
// CLI clients omit it, and they already passed token verification.
func (h *ConnectHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

func (h *ConnectHandler) refuse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	resp := models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    models.ErrCodeUnauthorized,
			Message: message,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
