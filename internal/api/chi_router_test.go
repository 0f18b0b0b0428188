// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/auth"
)

// stubVerifier resolves fixed tokens to subjects.
type stubVerifier struct {
	subjects map[string]*auth.Subject
}

func (v *stubVerifier) Verify(token string) (*auth.Subject, error) {
	if sub, ok := v.subjects[token]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("token not recognized")
}

func newTestRouter(t *testing.T) (http.Handler, *mockStore) {
	t.Helper()

	st := newMockStore()
	cfg := testConfig()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.RateLimitReqs = 300
	cfg.Security.RateLimitWindow = time.Minute

	verifier := &stubVerifier{subjects: map[string]*auth.Subject{
		"driver-token": {UserID: "driver-1", Role: "driver"},
		"admin-token":  {UserID: "ops-1", Role: "admin"},
	}}

	handler := NewHandler(cfg, st, &recordingPublisher{}, nil)
	router := NewRouter(handler, auth.NewMiddleware(verifier), NewChiMiddleware(cfg.Security), nil)
	return router.Setup(), st
}

func doRequest(router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiresAuth(t *testing.T) {
	router, st := newTestRouter(t)

	for _, tc := range []struct {
		method, target string
	}{
		{http.MethodPost, "/api/v1/gps/update"},
		{http.MethodGet, "/api/v1/gps/update"},
		{http.MethodPost, "/api/v1/gps/batch"},
		{http.MethodGet, "/api/v1/gps/batch"},
		{http.MethodGet, "/api/v1/gps/offline"},
		{http.MethodGet, "/api/v1/vehicles/truck-1/latest"},
	} {
		rec := doRequest(router, tc.method, tc.target, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", tc.method, tc.target, rec.Code)
		}
	}
	if st.insertOneCalls+st.insertBatchCalls != 0 {
		t.Errorf("store was reached without authentication")
	}
}

func TestRouterEndToEndUpdate(t *testing.T) {
	router, st := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/gps/update", "driver-token",
		`{"truckId":"truck-1","latitude":-1.29,"longitude":36.82}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(st.inserted) != 1 || st.inserted[0].UserID != "driver-1" {
		t.Fatalf("stored fixes = %+v, want one owned by driver-1", st.inserted)
	}

	// Readiness probe on the same path.
	rec = doRequest(router, http.MethodGet, "/api/v1/gps/update", "driver-token", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /gps/update status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ready"`) {
		t.Errorf("probe body = %s, want ready status", rec.Body.String())
	}
}

func TestRouterPurgeIsAdminOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodDelete, "/api/v1/gps/purge", "driver-token", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("driver purge status = %d, want 403", rec.Code)
	}

	rec = doRequest(router, http.MethodDelete, "/api/v1/gps/purge", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Errorf("admin purge status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterHealthUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/health/live", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health live status = %d, want 200", rec.Code)
	}

	// Readiness probes the store; the mock answers ErrNotFound which
	// counts as healthy.
	rec = doRequest(router, http.MethodGet, "/api/v1/health/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health ready status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterHubStatsUnavailableWithoutHub(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/realtime/stats", "driver-token", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stats without hub status = %d, want 503", rec.Code)
	}
}

func TestRouterUnknownTokenRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/gps/batch", "bogus", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouterBatchInfoReportsConfiguredLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/gps/batch", "driver-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"maxBatchSize":1000`) {
		t.Errorf("body = %s, missing maxBatchSize", rec.Body.String())
	}
}
