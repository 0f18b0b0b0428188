// GoTruck Telemetry - Real-time GPS Ingestion and Distribution
// Copyright 2026 Chris Mmbohe
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ChrisMmbohe/gotruck-telemetry

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ChrisMmbohe/gotruck-telemetry/internal/logging"
	"github.com/ChrisMmbohe/gotruck-telemetry/internal/models"
)

type contextKey string

const subjectKey contextKey = "auth_subject"

// ContextWithSubject returns a context carrying the authenticated subject.
func ContextWithSubject(ctx context.Context, sub *Subject) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromContext extracts the authenticated subject from context.
// Returns nil when the request was not authenticated.
func SubjectFromContext(ctx context.Context) *Subject {
	if sub, ok := ctx.Value(subjectKey).(*Subject); ok {
		return sub
	}
	return nil
}

// ExtractBearerToken pulls the token out of an Authorization header
// value. Returns empty string when the header is missing or not a
// Bearer scheme.
func ExtractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Middleware authenticates HTTP requests with a bearer token.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates authentication middleware backed by the given
// token verifier.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Authenticate verifies the Authorization header and injects the
// subject into the request context. Requests without a valid token get
// 401 with an UNAUTHORIZED error envelope.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			unauthorized(w, r, "missing bearer token")
			return
		}

		sub, err := m.verifier.Verify(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().
				Err(err).
				Str("remote_addr", r.RemoteAddr).
				Msg("Token verification failed")
			unauthorized(w, r, "invalid or expired token")
			return
		}

		next(w, r.WithContext(ContextWithSubject(r.Context(), sub)))
	}
}

// RequireRole wraps a handler so only subjects with the given role may
// reach it. Must run after Authenticate.
func (m *Middleware) RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := SubjectFromContext(r.Context())
		if sub == nil {
			unauthorized(w, r, "missing bearer token")
			return
		}
		if sub.Role != role {
			forbidden(w, r)
			return
		}
		next(w, r)
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeAuthError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, message)
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	writeAuthError(w, http.StatusForbidden, models.ErrCodeForbidden, "insufficient permissions")
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
