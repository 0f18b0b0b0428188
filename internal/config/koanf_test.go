// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadWithKoanfDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_IN_MEMORY", "true")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Ingest.MaxBatchSize != 1000 {
		t.Errorf("Ingest.MaxBatchSize = %d, want 1000", cfg.Ingest.MaxBatchSize)
	}
	if cfg.Ingest.RetentionDays != 30 {
		t.Errorf("Ingest.RetentionDays = %d, want 30", cfg.Ingest.RetentionDays)
	}
	if cfg.Realtime.PongWait != 60*time.Second {
		t.Errorf("Realtime.PongWait = %s, want 60s", cfg.Realtime.PongWait)
	}
	if got := cfg.Realtime.PingPeriod(); got != 54*time.Second {
		t.Errorf("Realtime.PingPeriod() = %s, want 54s", got)
	}
}

func TestLoadWithKoanfEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_IN_MEMORY", "true")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("INGEST_MAX_BATCH_SIZE", "500")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Ingest.MaxBatchSize != 500 {
		t.Errorf("Ingest.MaxBatchSize = %d, want 500", cfg.Ingest.MaxBatchSize)
	}
	want := []string{"https://app.example.com", "https://admin.example.com"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Security.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 3000
ingest:
  suspicious_jump_km: 250
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_IN_MEMORY", "true")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 from config file", cfg.Server.Port)
	}
	if cfg.Ingest.SuspiciousJumpKm != 250 {
		t.Errorf("Ingest.SuspiciousJumpKm = %f, want 250", cfg.Ingest.SuspiciousJumpKm)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "" },
			wantSub: "jwt_secret",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantSub: "at least 32",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantSub: "server.port",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Ingest.MaxBatchSize = 0 },
			wantSub: "max_batch_size",
		},
		{
			name: "recommended exceeds max",
			mutate: func(c *Config) {
				c.Ingest.MaxBatchSize = 10
				c.Ingest.RecommendedBatchSize = 100
			},
			wantSub: "recommended_batch_size",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Ingest.RetentionDays = 0 },
			wantSub: "retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWTSecret = testSecret
			cfg.Store.InMemory = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}
