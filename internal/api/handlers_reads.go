// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// VehicleLatest handles GET /vehicles/{vehicleID}/latest.
func (h *Handler) VehicleLatest(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	if vehicleID == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "vehicleID is required", nil)
		return
	}

	fix, err := h.store.LatestForVehicle(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, models.ErrCodeNotFound, "no fixes recorded for vehicle", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to read latest fix", err)
		return
	}

	respondSuccess(w, http.StatusOK, fix)
}

// VehicleHistory handles GET /vehicles/{vehicleID}/history. Fixes come
// back newest first, capped at maxHistoryLimit per request.
func (h *Handler) VehicleHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	if vehicleID == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "vehicleID is required", nil)
		return
	}

	limit := getIntParam(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	fixes, err := h.store.HistoryForVehicle(r.Context(), vehicleID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to read vehicle history", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"vehicleId": vehicleID,
		"count":     len(fixes),
		"fixes":     fixes,
	})
}

// OfflineFixes handles GET /gps/offline: the caller's own
// offline-collected fixes that have not been confirmed synced, oldest
// first so sync order matches capture order.
func (h *Handler) OfflineFixes(w http.ResponseWriter, r *http.Request) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == nil {
		respondError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "authentication required", nil)
		return
	}

	limit := getIntParam(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	fixes, err := h.store.UnsyncedOfflineFixes(r.Context(), sub.UserID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to read offline fixes", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"count": len(fixes),
		"fixes": fixes,
	})
}

// syncRequest is the body for POST /gps/offline/sync.
type syncRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// SyncOffline handles POST /gps/offline/sync: marks offline fixes as
// synced. Idempotent; already-synced or unknown ids are skipped, not
// errors.
func (h *Handler) SyncOffline(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	modified, err := h.store.MarkSynced(r.Context(), req.IDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to mark fixes synced", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"requested": len(req.IDs),
		"modified":  modified,
	})
}

// PurgeFixes handles DELETE /gps/purge, an admin-only immediate
// cleanup. TTL expiry removes fixes automatically; this exists for
// operators who need retention enforced right now.
func (h *Handler) PurgeFixes(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", h.cfg.Ingest.RetentionDays)
	if days < 1 {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "days must be a positive integer", nil)
		return
	}

	deleted, err := h.store.PurgeOlderThan(r.Context(), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to purge fixes", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
		"days":    days,
	})
}
