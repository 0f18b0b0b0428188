// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

// Package main is the entry point for the GoTruck telemetry server.
//
// The server ingests GPS fixes from trucks over authenticated HTTP,
// persists them in an embedded Badger store with 30-day TTL expiry,
// and distributes them in real time to dashboard sessions over
// room-scoped websocket subscriptions.
//
// # Application Architecture
//
// Components are initialized in the following order:
//
//  1. Configuration: layered defaults, config.yaml, environment (Koanf v2)
//  2. Fix Store: embedded BadgerDB with TTL-based retention
//  3. Event Bus: in-process Watermill pub/sub linking ingestion to realtime
//  4. Realtime Hub: room membership and event routing for websocket clients
//  5. Authentication: JWT (HS256) token verification
//  6. HTTP Server: Chi router with ingestion, read, and health endpoints
//
// Everything long-running is placed under a Suture supervisor tree so
// that a crashing component restarts without taking the process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (JWT_SECRET, HTTP_PORT, STORE_PATH, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// JWT_SECRET (32+ characters) is the only setting without a usable
// default.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the hub closes all websocket sessions, and the
// store flushes and closes.
//
// # Example Usage
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export STORE_PATH=/var/lib/gotruck/fixes
//	./gotruck-server
//
// Ephemeral development mode:
//
//	export JWT_SECRET=0123456789abcdef0123456789abcdef
//	export STORE_IN_MEMORY=true
//	export LOG_FORMAT=console
//	./gotruck-server
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/api"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/eventbus"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/realtime"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/store"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/supervisor"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("store_in_memory", cfg.Store.InMemory).
		Int("max_batch_size", cfg.Ingest.MaxBatchSize).
		Msg("Configuration loaded")

	fixStore, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open fix store")
	}
	defer func() {
		if err := fixStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing fix store")
		}
	}()
	logging.Info().Str("path", cfg.Store.Path).Msg("Fix store opened")

	// Event bus links ingestion to the realtime hub out of band.
	bus := eventbus.NewBus(cfg.Bus, nil)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	publisher := eventbus.NewPublisher(bus, cfg.Bus)
	defer publisher.Close()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	hub := realtime.NewHub(cfg.Realtime)
	subscriber := realtime.NewBusSubscriber(hub, bus)
	wsHandler := realtime.NewConnectHandler(hub, jwtManager, cfg.Security)

	handler := api.NewHandler(cfg, fixStore, publisher, hub)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), api.NewChiMiddleware(cfg.Security), wsHandler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewStoreGCService(fixStore, cfg.Store.GCInterval))
	tree.AddRealtimeService(services.NewHubService(hub))
	tree.AddRealtimeService(services.NewSubscriberService(subscriber))
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel; it closes once every service stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
