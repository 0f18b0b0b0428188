// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/config"
)

func testManager(t *testing.T, expiry time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		TokenExpiry: expiry,
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	return m
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := testManager(t, time.Hour)

	token, err := m.GenerateToken("driver-42", "driver")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "driver-42" {
		t.Errorf("UserID = %q, want driver-42", claims.UserID)
	}
	if claims.Role != "driver" {
		t.Errorf("Role = %q, want driver", claims.Role)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := testManager(t, -time.Minute)

	token, err := m.GenerateToken("driver-42", "driver")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := m.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() = nil error for expired token")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := testManager(t, time.Hour)
	other, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:   "ffffffffffffffffffffffffffffffff",
		TokenExpiry: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	token, err := other.GenerateToken("driver-42", "driver")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := m.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() accepted token signed with a different secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := testManager(t, time.Hour)

	for _, tok := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := m.ValidateToken(tok); err == nil {
			t.Errorf("ValidateToken(%q) = nil error", tok)
		}
	}
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	_, err := NewJWTManager(&config.SecurityConfig{JWTSecret: ""})
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("NewJWTManager() error = %v, want JWT_SECRET error", err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer   abc123  ", "abc123"},
		{"Basic abc123", ""},
		{"", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		if got := ExtractBearerToken(tt.header); got != tt.want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
