// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

/*
Package realtime implements the websocket hub that distributes GPS
fixes to dashboard viewers.

Connections authenticate with a bearer token before the upgrade
completes; a failed verification refuses the connection with 401 and no
handlers ever attach. Each authenticated connection is bound to its
user identity for its whole lifetime and auto-joined to its private
user:<id> room.

Rooms are ephemeral named topics (shipment:<id>, fleet:<id>,
user:<id>). Membership is created implicitly on join and vanishes when
the last member leaves. Any authenticated user may join any room; there
is no per-room tenancy check. See DESIGN.md for why that decision was
kept rather than silently tightened.

Routing:

  - gps:update from a connection goes to the shipment room as
    location:changed and to the fleet room as truck:status, both
    excluding the sender.
  - gps:batch is rebroadcast verbatim to the shipment room including
    the sender.
  - geofence:entered / geofence:exited go to the shipment room;
    alert:triggered goes to the sender's own user room.
  - Fix events arriving from the internal bus (the HTTP ingestion
    path) are routed the same way with no sender to exclude.

Delivery is best-effort, at-most-once per subscriber. A slow consumer
whose send buffer fills is disconnected rather than allowed to stall
the hub.
*/
package realtime
