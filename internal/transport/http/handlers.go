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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opengrc/opengrc/internal/audit"
	"github.com/opengrc/opengrc/internal/mfa"
	"github.com/opengrc/opengrc/internal/observability/logger"
	"github.com/opengrc/opengrc/internal/observability/metrics"
	"github.com/opengrc/opengrc/internal/rbac"
	"github.com/opengrc/opengrc/internal/stepup"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	engine    *rbac.Engine
	gate      *stepup.Gate
	verifier  *mfa.Verifier
	enroller  *mfa.Enroller
	auditLog  audit.Log
	metrics   *metrics.AuthzMetrics
	jwtSecret []byte
	jwtIssuer string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	engine *rbac.Engine,
	gate *stepup.Gate,
	verifier *mfa.Verifier,
	enroller *mfa.Enroller,
	auditLog audit.Log,
	authzMetrics *metrics.AuthzMetrics,
	jwtSecret []byte,
	jwtIssuer string,
) *Handler {
	return &Handler{
		engine:    engine,
		gate:      gate,
		verifier:  verifier,
		enroller:  enroller,
		auditLog:  auditLog,
		metrics:   authzMetrics,
		jwtSecret: jwtSecret,
		jwtIssuer: jwtIssuer,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, mfaLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// Role assignment (tenant-scoped, FAIL-CLOSED)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Use(TenantScope)

			r.Post("/role-assignments/validate", h.ValidateAssignment)
			r.Get("/assignable-roles", h.GetAssignableRoles)
			r.Get("/principals/{principalID}/audit-events", h.ListAuditEvents)

			r.Route("/principals/{principalID}/role", func(r chi.Router) {
				r.Use(h.RequireStepUp(stepup.ActionRoleChange))
				r.Post("/", h.AssignRole)
				r.Put("/", h.ChangeRole)
				r.Delete("/", h.RemoveRole)
				r.Post("/approve", h.ApproveAssignment)
			})
		})

		// Step-up authentication gate
		r.Route("/stepup", func(r chi.Router) {
			r.Delete("/", h.InvalidateStepUp)
			r.Get("/{action}", h.StepUpStatus)
			r.Post("/{action}", h.CompleteStepUp)
		})

		// MFA verification is an attack surface for code brute-forcing;
		// throttled separately from the global limiter.
		r.With(RateLimitMiddleware(mfaLimiter)).Post("/mfa/verify", h.VerifyMfa)
		r.Post("/mfa/enroll", h.EnrollMfa)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "opengrc-authz",
	})
}

// RoleRequest carries the role payload for assignment operations
type RoleRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason,omitempty"`
}

// ValidateAssignment performs a dry-run authorization check without writing
// anything. Escalation denials are still audited.
func (h *Handler) ValidateAssignment(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignerID := GetPrincipalID(r.Context())
	targetID := r.URL.Query().Get("principal_id")
	tenantID := GetTenantID(r.Context())

	decision, err := h.engine.ValidateAssignment(r.Context(), assignerID, targetID, tenantID, req.Role)
	if err != nil {
		if errors.Is(err, rbac.ErrUnknownRole) {
			respondError(w, http.StatusBadRequest, "unknown role")
			return
		}
		slog.ErrorContext(r.Context(), "validation failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "validation failed")
		return
	}

	if !decision.Allowed && decision.Reason == rbac.ReasonPrivilegeEscalation {
		h.metrics.RecordEscalationBlocked(r.Context())
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"allowed":                decision.Allowed,
		"requires_dual_approval": decision.RequiresDualApproval,
		"reason":                 string(decision.Reason),
	})
}

// AssignRole grants a role to a principal in the tenant
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	h.writeAssignment(w, r, h.engine.AssignRole)
}

// ChangeRole replaces the principal's existing role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	h.writeAssignment(w, r, h.engine.ChangeRole)
}

func (h *Handler) writeAssignment(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, assignerID, targetID, tenantID, role, reason string) (*rbac.AssignResult, error),
) {
	var req RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignerID := GetPrincipalID(r.Context())
	targetID := chi.URLParam(r, "principalID")
	tenantID := GetTenantID(r.Context())

	result, err := op(r.Context(), assignerID, targetID, tenantID, req.Role, req.Reason)
	if err != nil {
		h.respondAssignmentError(w, r, err)
		return
	}

	h.metrics.RecordRoleAssignment(r.Context(), "allowed")
	status := http.StatusOK
	if result.Status == rbac.StatusPendingApproval {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]any{
		"role":             result.Role,
		"previous_role":    result.PreviousRole,
		"status":           string(result.Status),
		"already_assigned": result.AlreadyAssigned,
	})
}

// ApproveAssignment completes a pending dual-approval assignment
func (h *Handler) ApproveAssignment(w http.ResponseWriter, r *http.Request) {
	approverID := GetPrincipalID(r.Context())
	targetID := chi.URLParam(r, "principalID")
	tenantID := GetTenantID(r.Context())

	if err := h.engine.ApproveAssignment(r.Context(), approverID, targetID, tenantID); err != nil {
		h.respondAssignmentError(w, r, err)
		return
	}

	h.metrics.RecordRoleAssignment(r.Context(), "approved")
	respondJSON(w, http.StatusOK, map[string]string{
		"status": string(rbac.StatusApproved),
	})
}

// RemoveRole revokes the principal's role in the tenant
func (h *Handler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	removerID := GetPrincipalID(r.Context())
	targetID := chi.URLParam(r, "principalID")
	tenantID := GetTenantID(r.Context())

	reason := r.URL.Query().Get("reason")
	if err := h.engine.RemoveRole(r.Context(), removerID, targetID, tenantID, reason); err != nil {
		h.respondAssignmentError(w, r, err)
		return
	}

	h.metrics.RecordRoleAssignment(r.Context(), "removed")
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "role removed",
	})
}

// GetAssignableRoles lists the roles the caller may grant in the tenant
func (h *Handler) GetAssignableRoles(w http.ResponseWriter, r *http.Request) {
	principalID := GetPrincipalID(r.Context())
	tenantID := GetTenantID(r.Context())

	roles, err := h.engine.GetAssignableRoles(r.Context(), principalID, tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list assignable roles", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list assignable roles")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
	})
}

// ListAuditEvents returns the recent audit trail for a principal, newest
// first.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	targetID := chi.URLParam(r, "principalID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	events, err := h.auditLog.ListByTarget(r.Context(), tenantID, targetID, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list audit events", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

// StepUpStatus reports whether the action needs step-up and whether the
// caller's session already holds a valid proof.
func (h *Handler) StepUpStatus(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	principalID := GetPrincipalID(r.Context())
	sessionID := GetSessionID(r.Context())

	required := h.gate.RequiresStepUp(action)
	resp := map[string]any{
		"action":   action,
		"required": required,
		"valid":    false,
	}
	if required {
		if remaining, ok := h.gate.ProofValidity(r.Context(), principalID, sessionID, action); ok {
			resp["valid"] = true
			resp["expires_in_seconds"] = int(remaining.Seconds())
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// MfaRequest carries a TOTP code
type MfaRequest struct {
	Code string `json:"code"`
}

// CompleteStepUp verifies the caller's TOTP code and, on success, records a
// step-up proof for (session, action).
func (h *Handler) CompleteStepUp(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if !h.gate.RequiresStepUp(action) {
		respondError(w, http.StatusBadRequest, "action does not require step-up")
		return
	}

	var req MfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principalID := GetPrincipalID(r.Context())
	sessionID := GetSessionID(r.Context())

	if result := h.verifyCode(w, r, principalID, req.Code); result == nil {
		return
	}

	proof, err := h.gate.RecordProof(r.Context(), principalID, sessionID, action, stepup.MethodTOTP)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to record step-up proof", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to record step-up proof")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"action":             proof.Action,
		"method":             proof.Method,
		"expires_in_seconds": int(time.Until(proof.ExpiresAt).Seconds()),
	})
}

// InvalidateStepUp drops every step-up proof for the caller's session
func (h *Handler) InvalidateStepUp(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())
	if err := h.gate.InvalidateSession(r.Context(), sessionID); err != nil {
		slog.ErrorContext(r.Context(), "failed to invalidate step-up proofs", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to invalidate step-up proofs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "step-up proofs invalidated",
	})
}

// VerifyMfa verifies a TOTP code without recording a step-up proof
func (h *Handler) VerifyMfa(w http.ResponseWriter, r *http.Request) {
	var req MfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principalID := GetPrincipalID(r.Context())
	if result := h.verifyCode(w, r, principalID, req.Code); result == nil {
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": string(mfa.StatusVerified),
	})
}

// EnrollMfa provisions a fresh TOTP secret for the caller. Re-enrolling
// replaces the previous secret, so a caller that lost their authenticator can
// start over.
func (h *Handler) EnrollMfa(w http.ResponseWriter, r *http.Request) {
	principalID := GetPrincipalID(r.Context())

	enrollment, err := h.enroller.Enroll(r.Context(), principalID)
	if err != nil {
		slog.ErrorContext(r.Context(), "mfa enrollment failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "mfa enrollment failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"secret": enrollment.Secret,
		"url":    enrollment.URL,
	})
}

// verifyCode runs MFA verification and writes the failure responses itself.
// Returns a non-nil result only on a verified code.
func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request, principalID, code string) *mfa.Result {
	result, err := h.verifier.VerifyCode(r.Context(), principalID, code)
	if err != nil {
		if errors.Is(err, mfa.ErrSecretNotFound) {
			respondError(w, http.StatusBadRequest, "mfa is not enrolled")
			return nil
		}
		slog.ErrorContext(r.Context(), "mfa verification failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "mfa verification failed")
		return nil
	}

	switch result.Status {
	case mfa.StatusVerified:
		h.metrics.RecordMfaVerification(r.Context(), "verified")
		return result
	case mfa.StatusLockedOut:
		h.metrics.RecordMfaVerification(r.Context(), "locked_out")
		respondJSON(w, http.StatusLocked, map[string]any{
			"error":        "mfa_locked_out",
			"locked_until": result.LockedUntil.UTC().Format(time.RFC3339),
		})
		return nil
	default:
		h.metrics.RecordMfaVerification(r.Context(), "failed")
		respondJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "invalid_code",
			"attempts_remaining": result.AttemptsRemaining,
		})
		return nil
	}
}

func (h *Handler) respondAssignmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrUnknownRole):
		respondError(w, http.StatusBadRequest, "unknown role")
	case errors.Is(err, rbac.ErrSelfAssignment):
		h.metrics.RecordRoleAssignment(r.Context(), "self_assignment")
		respondError(w, http.StatusForbidden, "self-assignment is not permitted")
	case errors.Is(err, rbac.ErrPrivilegeEscalation):
		h.metrics.RecordRoleAssignment(r.Context(), "privilege_escalation")
		h.metrics.RecordEscalationBlocked(r.Context())
		respondError(w, http.StatusForbidden, "insufficient privileges for this role")
	case errors.Is(err, rbac.ErrUnauthorized):
		h.metrics.RecordRoleAssignment(r.Context(), "unauthorized")
		respondError(w, http.StatusForbidden, "no roles in this tenant")
	case errors.Is(err, rbac.ErrAssignmentNotFound):
		respondError(w, http.StatusNotFound, "assignment not found")
	case errors.Is(err, rbac.ErrNotPending):
		respondError(w, http.StatusConflict, "assignment is not pending approval")
	case errors.Is(err, rbac.ErrApproverConflict):
		respondError(w, http.StatusConflict, "approver must be independent of assigner and target")
	case errors.Is(err, rbac.ErrConflict):
		respondError(w, http.StatusConflict, "assignment was modified concurrently")
	default:
		slog.ErrorContext(r.Context(), "role assignment failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "role assignment failed")
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
