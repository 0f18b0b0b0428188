// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/middleware"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/realtime"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler shape.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router assembles the full HTTP surface.
type Router struct {
	handler   *Handler
	authMw    *auth.Middleware
	chiMw     *ChiMiddleware
	wsHandler *realtime.ConnectHandler
	adminRole string
}

// NewRouter creates the router. wsHandler may be nil when the realtime
// hub is disabled.
func NewRouter(handler *Handler, authMw *auth.Middleware, chiMw *ChiMiddleware, wsHandler *realtime.ConnectHandler) *Router {
	return &Router{
		handler:   handler,
		authMw:    authMw,
		chiMw:     chiMw,
		wsHandler: wsHandler,
		adminRole: handler.cfg.Security.AdminRole,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMw.CORS())

	// Health endpoints: unauthenticated, permissively rate limited.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMw.RateLimitHealth())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Prometheus metrics for scrapers.
	r.Handle("/metrics", promhttp.Handler())

	// GPS ingestion and telemetry reads: authenticated, IP rate limited.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMw.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.authMw.Authenticate))

		r.Post("/gps/update", router.handler.UpdateGPS)
		r.Get("/gps/update", router.handler.UpdateGPSReady)
		r.Post("/gps/batch", router.handler.BatchGPS)
		r.Get("/gps/batch", router.handler.BatchGPSInfo)

		r.Get("/gps/offline", router.handler.OfflineFixes)
		r.Post("/gps/offline/sync", router.handler.SyncOffline)
		r.Delete("/gps/purge", router.authMw.RequireRole(router.adminRole, router.handler.PurgeFixes))

		r.Get("/vehicles/{vehicleID}/latest", router.handler.VehicleLatest)
		r.Get("/vehicles/{vehicleID}/history", router.handler.VehicleHistory)

		r.Get("/realtime/stats", router.handler.HubStats)
	})

	// Websocket entry point. Token verification happens inside the
	// handler before the upgrade, so it sits outside the HTTP auth
	// middleware chain.
	if router.wsHandler != nil {
		r.Handle("/api/v1/realtime/ws", router.wsHandler)
	}

	return r
}
