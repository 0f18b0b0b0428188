// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/store"
)

// HealthLive handles GET /health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// HealthReady handles GET /health/ready: the server is ready when the
// fix store answers a read. A vehicle lookup miss still proves the
// store is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	_, err := h.store.LatestForVehicle(ctx, "health-probe")
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusServiceUnavailable, models.ErrCodeStorage, "fix store unavailable", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}

// HubStats handles GET /realtime/stats with current hub occupancy.
func (h *Handler) HubStats(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrCodeInternal, "realtime hub unavailable", nil)
		return
	}
	respondSuccess(w, http.StatusOK, h.hub.Stats())
}
