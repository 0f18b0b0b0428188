// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Bus      BusConfig      `koanf:"bus"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds authentication, rate limiting, and CORS settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenExpiry       time.Duration `koanf:"token_expiry"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	AdminRole         string        `koanf:"admin_role"`
}

// StoreConfig holds fix store settings.
type StoreConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// IngestConfig holds GPS ingestion settings.
type IngestConfig struct {
	MaxBatchSize         int     `koanf:"max_batch_size"`
	RecommendedBatchSize int     `koanf:"recommended_batch_size"`
	RetentionDays        int     `koanf:"retention_days"`
	SuspiciousJumpKm     float64 `koanf:"suspicious_jump_km"`
}

// RealtimeConfig holds websocket hub settings.
type RealtimeConfig struct {
	WriteWait         time.Duration `koanf:"write_wait"`
	PongWait          time.Duration `koanf:"pong_wait"`
	MaxMessageSize    int64         `koanf:"max_message_size"`
	SendBufferSize    int           `koanf:"send_buffer_size"`
	ClientRatePerSec  float64       `koanf:"client_rate_per_sec"`
	ClientRateBurst   int           `koanf:"client_rate_burst"`
	ReadBufferSize    int           `koanf:"read_buffer_size"`
	WriteBufferSize   int           `koanf:"write_buffer_size"`
	EnableCompression bool          `koanf:"enable_compression"`
}

// PingPeriod derives the ping interval from PongWait. Pings must be
// sent more often than the pong deadline or healthy connections drop.
func (r RealtimeConfig) PingPeriod() time.Duration {
	return (r.PongWait * 9) / 10
}

// BusConfig holds internal event bus settings.
type BusConfig struct {
	OutputBufferSize   int64         `koanf:"output_buffer_size"`
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for missing or malformed values.
// Called by LoadWithKoanf after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required (set JWT_SECRET)")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when store.in_memory is false")
	}
	if c.Ingest.MaxBatchSize < 1 {
		return fmt.Errorf("ingest.max_batch_size must be positive, got %d", c.Ingest.MaxBatchSize)
	}
	if c.Ingest.RecommendedBatchSize > c.Ingest.MaxBatchSize {
		return fmt.Errorf("ingest.recommended_batch_size (%d) cannot exceed ingest.max_batch_size (%d)",
			c.Ingest.RecommendedBatchSize, c.Ingest.MaxBatchSize)
	}
	if c.Ingest.RetentionDays < 1 {
		return fmt.Errorf("ingest.retention_days must be positive, got %d", c.Ingest.RetentionDays)
	}
	if c.Ingest.SuspiciousJumpKm <= 0 {
		return fmt.Errorf("ingest.suspicious_jump_km must be positive, got %f", c.Ingest.SuspiciousJumpKm)
	}
	if c.Realtime.PongWait <= 0 {
		return fmt.Errorf("realtime.pong_wait must be positive, got %s", c.Realtime.PongWait)
	}
	if c.Realtime.WriteWait <= 0 {
		return fmt.Errorf("realtime.write_wait must be positive, got %s", c.Realtime.WriteWait)
	}
	if c.Realtime.SendBufferSize < 1 {
		return fmt.Errorf("realtime.send_buffer_size must be positive, got %d", c.Realtime.SendBufferSize)
	}
	return nil
}
