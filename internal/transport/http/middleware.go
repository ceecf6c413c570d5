// Copyright 2026 The OpenGRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opengrc/opengrc/internal/observability/logger"
)

// Tenant Context Principles:
// 1. Tenant context is derived EXCLUSIVELY from the authenticated token.
// 2. No magic tenant IDs (e.g., "default", "system", "platform").
// 3. A path tenantID that differs from the token tenant is rejected, never
//    silently substituted.

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Log request start
			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(getIPAddress(r)),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware validates the bearer token and injects principal, session and
// tenant context. Tokens are HS256, with sub/sid/tid claims issued by the
// platform's identity provider.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if h.jwtIssuer != "" {
			opts = append(opts, jwt.WithIssuer(h.jwtIssuer))
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return h.jwtSecret, nil
		}, opts...)
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		principalID, _ := claims["sub"].(string)
		sessionID, _ := claims["sid"].(string)
		tenantID, _ := claims["tid"].(string)
		if principalID == "" || sessionID == "" {
			respondError(w, http.StatusUnauthorized, "token missing subject or session")
			return
		}

		// X-Tenant-ID spoofing is rejected outright: tenant context comes
		// from the token only.
		if r.Header.Get("X-Tenant-ID") != "" {
			slog.WarnContext(r.Context(), "tenant header spoofing attempt detected on authenticated route",
				logger.PrincipalID(principalID),
			)
			respondError(w, http.StatusBadRequest, "X-Tenant-ID header is not allowed; tenant is derived from the token")
			return
		}

		ctx := context.WithValue(r.Context(), principalIDKey, principalID)
		ctx = context.WithValue(ctx, sessionIDKey, sessionID)
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantScope enforces that the path tenantID matches the token tenant.
func TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathTenant := chi.URLParam(r, "tenantID")
		tokenTenant := GetTenantID(r.Context())
		if pathTenant == "" || tokenTenant == "" || pathTenant != tokenTenant {
			respondError(w, http.StatusForbidden, "tenant scope mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStepUp gates an operation behind a fresh step-up proof. Callers
// without a valid proof get 403 with step_up_required so clients know to run
// the MFA challenge first.
func (h *Handler) RequireStepUp(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.gate.RequiresStepUp(action) {
				next.ServeHTTP(w, r)
				return
			}
			principalID := GetPrincipalID(r.Context())
			sessionID := GetSessionID(r.Context())
			if !h.gate.HasValidProof(r.Context(), principalID, sessionID, action) {
				h.metrics.RecordStepUpChallenge(r.Context(), action)
				respondJSON(w, http.StatusForbidden, map[string]any{
					"error":  "step_up_required",
					"action": action,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
