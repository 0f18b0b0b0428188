// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/eventbus"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/geo"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/metrics"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/store"
)

// gpsUpdateResponse is the body returned for a stored single fix.
type gpsUpdateResponse struct {
	ID         string    `json:"id"`
	TruckID    string    `json:"truckId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
	Suspicious bool      `json:"suspicious,omitempty"`
}

// UpdateGPS handles POST /gps/update: validate, normalize, persist one
// fix, then publish it for realtime distribution. The stored userId is
// always the authenticated identity; a client-supplied user id is
// ignored.
func (h *Handler) UpdateGPS(w http.ResponseWriter, r *http.Request) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == nil {
		respondError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "authentication required", nil)
		return
	}

	var in models.FixInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		metrics.IngestFixesTotal.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "invalid request body", err)
		return
	}

	if apiErr := validateRequest(&in); apiErr != nil {
		metrics.IngestFixesTotal.WithLabelValues("rejected").Inc()
		respondValidationError(w, apiErr)
		return
	}

	lat, lng := geo.NormalizeCoordinates(*in.Latitude, *in.Longitude)
	suspicious := h.checkSuspicious(r, in.TruckID, lat, lng)

	fix := in.ToFix(uuid.New().String(), sub.UserID, lat, lng, time.Now().UTC())

	if err := h.store.InsertOne(r.Context(), fix); err != nil {
		metrics.IngestFixesTotal.WithLabelValues("failed").Inc()
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to store GPS fix", err)
		return
	}
	metrics.IngestFixesTotal.WithLabelValues("inserted").Inc()

	h.publishFixes(r, []*models.LocationFix{fix}, false)

	respondSuccess(w, http.StatusCreated, gpsUpdateResponse{
		ID:         fix.ID,
		TruckID:    fix.TruckID,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Timestamp:  fix.CreatedAt,
		Suspicious: suspicious,
	})
}

// UpdateGPSReady handles GET /gps/update, a health probe behind the
// auth gate.
func (h *Handler) UpdateGPSReady(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

// BatchGPS handles POST /gps/batch. The schema gate is all-or-nothing:
// an oversized batch or any element failing validation rejects the
// whole request before a single store call. Storage failures after the
// gate are partial-failure tolerant and reported in the counts.
func (h *Handler) BatchGPS(w http.ResponseWriter, r *http.Request) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == nil {
		respondError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "authentication required", nil)
		return
	}

	var in models.BatchInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "invalid request body", err)
		return
	}

	if len(in.Updates) == 0 {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "updates must be a non-empty array", nil)
		return
	}

	if len(in.Updates) > h.cfg.Ingest.MaxBatchSize {
		respondError(w, http.StatusBadRequest, models.ErrCodeBatchTooLarge,
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(in.Updates), h.cfg.Ingest.MaxBatchSize), nil)
		return
	}

	for i := range in.Updates {
		if apiErr := validateRequest(&in.Updates[i]); apiErr != nil {
			if apiErr.Details == nil {
				apiErr.Details = map[string]interface{}{}
			}
			apiErr.Details["index"] = i
			respondValidationError(w, apiErr)
			return
		}
	}

	now := time.Now().UTC()
	fixes := make([]*models.LocationFix, 0, len(in.Updates))
	for i := range in.Updates {
		lat, lng := geo.NormalizeCoordinates(*in.Updates[i].Latitude, *in.Updates[i].Longitude)
		fixes = append(fixes, in.Updates[i].ToFix(uuid.New().String(), sub.UserID, lat, lng, now))
	}

	result, err := h.store.InsertBatch(r.Context(), fixes)
	if err != nil {
		metrics.IngestFixesTotal.WithLabelValues("failed").Add(float64(len(fixes)))
		respondError(w, http.StatusInternalServerError, models.ErrCodeStorage, "failed to store GPS batch", err)
		return
	}

	metrics.IngestFixesTotal.WithLabelValues("inserted").Add(float64(result.InsertedCount))
	metrics.IngestFixesTotal.WithLabelValues("failed").Add(float64(result.FailedCount))

	if result.FailedCount > 0 {
		logging.Ctx(r.Context()).Warn().
			Int("inserted", result.InsertedCount).
			Int("failed", result.FailedCount).
			Msg("batch insert completed with partial failures")
	}

	if len(result.Inserted) > 0 {
		h.publishFixes(r, result.Inserted, true)
	}

	respondSuccess(w, http.StatusCreated, result)
}

// BatchGPSInfo handles GET /gps/batch with the batch sizing contract.
func (h *Handler) BatchGPSInfo(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status":               "ready",
		"maxBatchSize":         h.cfg.Ingest.MaxBatchSize,
		"recommendedBatchSize": h.cfg.Ingest.RecommendedBatchSize,
	})
}

// checkSuspicious runs the advisory location-jump check against the
// vehicle's latest stored fix. The result never blocks ingestion; it is
// logged, counted, and surfaced to the caller as a flag.
func (h *Handler) checkSuspicious(r *http.Request, truckID string, lat, lng float64) bool {
	prev, err := h.store.LatestForVehicle(r.Context(), truckID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("suspicion check skipped, latest fix unavailable")
		}
		return false
	}

	if !geo.IsLocationSuspicious(prev.Latitude, prev.Longitude, lat, lng, h.cfg.Ingest.SuspiciousJumpKm) {
		return false
	}

	metrics.SuspiciousFixesTotal.Inc()
	logging.Ctx(r.Context()).Warn().
		Str("truck_id", sanitizeLogValue(truckID)).
		Float64("distance_threshold_km", h.cfg.Ingest.SuspiciousJumpKm).
		Msg("suspicious location jump detected")
	return true
}

// publishFixes hands stored fixes to the realtime path. Distribution is
// best-effort: a publish failure is logged and the HTTP request still
// succeeds, because the fixes are already durable.
func (h *Handler) publishFixes(r *http.Request, fixes []*models.LocationFix, batch bool) {
	if h.publisher == nil {
		return
	}

	event, err := eventbus.NewFixEvent(fixes, batch)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to build fix event")
		return
	}

	if err := h.publisher.PublishFixEvent(r.Context(), event); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to publish fix event")
	}
}
