// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

// stubVerifier maps raw token strings to subjects.
type stubVerifier struct {
	subjects map[string]*Subject
}

func (s *stubVerifier) Verify(token string) (*Subject, error) {
	if sub, ok := s.subjects[token]; ok {
		return sub, nil
	}
	return nil, errors.New("unknown token")
}

func newTestMiddleware() *Middleware {
	return NewMiddleware(&stubVerifier{subjects: map[string]*Subject{
		"driver-token": {UserID: "driver-1", Role: "driver"},
		"admin-token":  {UserID: "ops-1", Role: "admin"},
	}})
}

func TestAuthenticateInjectsSubject(t *testing.T) {
	mw := newTestMiddleware()

	var got *Subject
	handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		got = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gps/update", nil)
	req.Header.Set("Authorization", "Bearer driver-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.UserID != "driver-1" {
		t.Fatalf("subject = %+v, want UserID driver-1", got)
	}
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	mw := newTestMiddleware()

	called := false
	handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gps/update", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if called {
		t.Error("handler was called without credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeUnauthorized {
		t.Errorf("error = %+v, want code %s", resp.Error, models.ErrCodeUnauthorized)
	}
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	mw := newTestMiddleware()

	handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gps/update", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	mw := newTestMiddleware()

	handler := mw.Authenticate(mw.RequireRole("admin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Driver is refused.
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/gps/purge", nil)
	req.Header.Set("Authorization", "Bearer driver-token")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("driver status = %d, want 403", rec.Code)
	}

	// Admin passes through.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/gps/purge", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", rec.Code)
	}
}
