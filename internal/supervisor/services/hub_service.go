// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package services

import (
	"context"
)

// Runner matches the Run method shared by the realtime hub and the bus
// subscriber. Both already follow the suture.Service shape; the wrappers
// exist to give each a stable name in supervisor logs.
type Runner interface {
	Run(ctx context.Context) error
}

// HubService wraps the realtime hub as a supervised service.
type HubService struct {
	hub Runner
}

// NewHubService wraps a hub for supervision.
func NewHubService(hub Runner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service by delegating to the hub's event
// loop, which returns ctx.Err() on shutdown after closing all clients.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// String identifies the service in supervisor logs.
func (s *HubService) String() string {
	return "realtime-hub"
}

// SubscriberService wraps the bus subscriber that feeds stored fixes
// into hub rooms.
type SubscriberService struct {
	subscriber Runner
}

// NewSubscriberService wraps a bus subscriber for supervision.
func NewSubscriberService(subscriber Runner) *SubscriberService {
	return &SubscriberService{subscriber: subscriber}
}

// Serve implements suture.Service.
func (s *SubscriberService) Serve(ctx context.Context) error {
	return s.subscriber.Run(ctx)
}

// String identifies the service in supervisor logs.
func (s *SubscriberService) String() string {
	return "bus-subscriber"
}
