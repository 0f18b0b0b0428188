// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package logging provides centralized zerolog-based logging for the
// telemetry server.
//
// All packages log through this wrapper instead of the standard library
// logger so that output is structured, leveled, and consistent:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("truck_id", id).Msg("fix ingested")
//	logging.Error().Err(err).Msg("store write failed")
//
// Handlers should prefer the context-aware form, which carries the
// request and correlation IDs installed by the RequestID middleware:
//
//	logging.Ctx(ctx).Info().Msg("batch persisted")
//
// Configuration is controlled at startup via the Log section of the
// application config (LOG_LEVEL, LOG_FORMAT environment variables).
package logging
