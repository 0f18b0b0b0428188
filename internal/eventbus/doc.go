// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

/*
Package eventbus decouples GPS ingestion from realtime distribution.

The HTTP handlers publish accepted fixes to an in-process Watermill
pub/sub (topic "gps.fix"); the realtime subscriber consumes them and
fans out to websocket rooms. The publisher is wrapped in a circuit
breaker so a wedged consumer never blocks the ingestion path.
*/
package eventbus
