// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package api implements the HTTP surface of the telemetry server:
// GPS ingestion, vehicle reads, offline sync, retention admin, health,
// and the websocket entry point.
package api

import (
	"context"
	"time"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/eventbus"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/realtime"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/store"
)

// FixPublisher is the ingestion-side bus dependency. Satisfied by
// *eventbus.Publisher.
type FixPublisher interface {
	PublishFixEvent(ctx context.Context, event *eventbus.FixEvent) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	store     store.Store
	publisher FixPublisher
	hub       *realtime.Hub
	startTime time.Time
}

// NewHandler creates the API handler. hub and publisher may be nil in
// tests that exercise only the storage path.
func NewHandler(cfg *config.Config, st store.Store, publisher FixPublisher, hub *realtime.Hub) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		publisher: publisher,
		hub:       hub,
		startTime: time.Now(),
	}
}
