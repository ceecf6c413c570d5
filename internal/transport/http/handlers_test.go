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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengrc/opengrc/internal/audit"
	"github.com/opengrc/opengrc/internal/mfa"
	"github.com/opengrc/opengrc/internal/observability/metrics"
	"github.com/opengrc/opengrc/internal/rbac"
	"github.com/opengrc/opengrc/internal/stepup"
)

const testJWTSecret = "test-secret"

// =============================================================================
// In-memory stores
// =============================================================================

type memAssignments struct {
	m map[string]*rbac.Assignment
}

func newMemAssignments() *memAssignments {
	return &memAssignments{m: make(map[string]*rbac.Assignment)}
}

func akey(tenantID, principalID string) string {
	return tenantID + "/" + principalID
}

func (s *memAssignments) seed(tenantID, principalID, role string) {
	s.m[akey(tenantID, principalID)] = &rbac.Assignment{
		TenantID:    tenantID,
		PrincipalID: principalID,
		Role:        role,
		AssignedBy:  "seed",
		AssignedAt:  time.Now(),
		Status:      rbac.StatusApproved,
		Version:     1,
	}
}

func (s *memAssignments) GetRoles(_ context.Context, tenantID, principalID string) ([]string, error) {
	a, ok := s.m[akey(tenantID, principalID)]
	if !ok || !a.Effective() {
		return nil, nil
	}
	return []string{a.Role}, nil
}

func (s *memAssignments) Get(_ context.Context, tenantID, principalID string) (*rbac.Assignment, error) {
	a, ok := s.m[akey(tenantID, principalID)]
	if !ok {
		return nil, rbac.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAssignments) Upsert(_ context.Context, a *rbac.Assignment, expectedVersion int64) error {
	k := akey(a.TenantID, a.PrincipalID)
	existing, ok := s.m[k]
	if expectedVersion == 0 {
		if ok {
			return rbac.ErrConflict
		}
		a.Version = 1
	} else {
		if !ok || existing.Version != expectedVersion {
			return rbac.ErrConflict
		}
		a.Version = expectedVersion + 1
	}
	cp := *a
	s.m[k] = &cp
	return nil
}

func (s *memAssignments) Remove(_ context.Context, tenantID, principalID string) error {
	k := akey(tenantID, principalID)
	if _, ok := s.m[k]; !ok {
		return rbac.ErrAssignmentNotFound
	}
	delete(s.m, k)
	return nil
}

type memProofs struct {
	m map[string]*stepup.Proof
}

func newMemProofs() *memProofs {
	return &memProofs{m: make(map[string]*stepup.Proof)}
}

func pkey(sessionID, action string) string {
	return sessionID + "/" + action
}

func (s *memProofs) Get(_ context.Context, sessionID, action string) (*stepup.Proof, error) {
	p, ok := s.m[pkey(sessionID, action)]
	if !ok {
		return nil, stepup.ErrProofNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memProofs) Put(_ context.Context, p *stepup.Proof) error {
	cp := *p
	s.m[pkey(p.SessionID, p.Action)] = &cp
	return nil
}

func (s *memProofs) Delete(_ context.Context, sessionID, action string) error {
	delete(s.m, pkey(sessionID, action))
	return nil
}

type memSecrets struct {
	m map[string]string
}

func newMemSecrets() *memSecrets {
	return &memSecrets{m: make(map[string]string)}
}

func (s *memSecrets) HasTotpSecret(_ context.Context, principalID string) (bool, error) {
	_, ok := s.m[principalID]
	return ok, nil
}

func (s *memSecrets) TotpSecret(_ context.Context, principalID string) (string, error) {
	secret, ok := s.m[principalID]
	if !ok {
		return "", mfa.ErrSecretNotFound
	}
	return secret, nil
}

func (s *memSecrets) SaveTotpSecret(_ context.Context, principalID, secret string) error {
	s.m[principalID] = secret
	return nil
}

// memAuditLog is both the sink and the read side of the audit trail.
type memAuditLog struct {
	events []audit.Event
}

func (s *memAuditLog) Record(_ context.Context, e audit.Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memAuditLog) ListByTarget(_ context.Context, tenantID, targetID string, limit int) ([]*audit.Event, error) {
	var out []*audit.Event
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[i]
		if e.TenantID == tenantID && e.TargetID == targetID {
			out = append(out, &e)
		}
	}
	return out, nil
}

type memLockouts struct {
	counts map[string]int
	until  map[string]time.Time
}

func newMemLockouts() *memLockouts {
	return &memLockouts{counts: make(map[string]int), until: make(map[string]time.Time)}
}

func (s *memLockouts) Get(_ context.Context, principalID string) (*mfa.Lockout, error) {
	state := &mfa.Lockout{PrincipalID: principalID, FailureCount: s.counts[principalID]}
	if until, ok := s.until[principalID]; ok {
		state.LockedUntil = &until
	}
	return state, nil
}

func (s *memLockouts) RecordFailure(_ context.Context, principalID string, _ time.Duration) (int, error) {
	s.counts[principalID]++
	return s.counts[principalID], nil
}

func (s *memLockouts) Lock(_ context.Context, principalID string, until time.Time) error {
	s.until[principalID] = until
	return nil
}

func (s *memLockouts) Reset(_ context.Context, principalID string) error {
	delete(s.counts, principalID)
	delete(s.until, principalID)
	return nil
}

// =============================================================================
// Test fixture
// =============================================================================

type fixture struct {
	router      http.Handler
	assignments *memAssignments
	proofs      *memProofs
	secrets     *memSecrets
	auditLog    *memAuditLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	assignments := newMemAssignments()
	proofs := newMemProofs()
	secrets := newMemSecrets()
	lockouts := newMemLockouts()
	auditLog := &memAuditLog{}
	sink := audit.Tee(audit.NewSlogSink(), auditLog)

	engine := rbac.NewEngine(rbac.DefaultHierarchy(), assignments, sink)
	gate := stepup.NewGate(proofs, sink, nil, 15*time.Minute)
	verifier := mfa.NewVerifier(secrets, lockouts, sink, 5, 15*time.Minute)
	enroller := mfa.NewEnroller(secrets, "OpenGRC")

	meter, err := metrics.New(context.Background(), metrics.Config{Enabled: false}, "test")
	require.NoError(t, err)
	authzMetrics, err := metrics.NewAuthzMetrics(meter)
	require.NoError(t, err)

	h := NewHandler(engine, gate, verifier, enroller, auditLog, authzMetrics, []byte(testJWTSecret), "")
	router := NewRouter(h, NewRateLimiter(1000, 1000), NewRateLimiter(1000, 1000))

	return &fixture{
		router:      router,
		assignments: assignments,
		proofs:      proofs,
		secrets:     secrets,
		auditLog:    auditLog,
	}
}

func signToken(t *testing.T, secret, sub, sid, tid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"sid": sid,
		"tid": tid,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// grantProof seeds a valid step-up proof directly into the cache.
func (f *fixture) grantProof(principalID, sessionID, action string) {
	f.proofs.m[pkey(sessionID, action)] = &stepup.Proof{
		PrincipalID: principalID,
		SessionID:   sessionID,
		Action:      action,
		Method:      stepup.MethodTOTP,
		IssuedAt:    time.Now(),
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
}

// =============================================================================
// AUTHENTICATION & TENANT SCOPE
// Category: Transport - Authentication and Tenant Isolation
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that API routes reject requests without a bearer token.
// Scope: Unit Test
// Security: Authentication boundary (CWE-306)
// Expected: Returns HTTP 401 Unauthorized.
// Test Case ID: AUTHN-01
func TestAuth_MissingToken_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/tenants/t1/assignable-roles", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code,
		"AUTHN-01: missing bearer token should return 401")
}

// TestPurpose: Validates that tokens signed with the wrong key are rejected.
// Scope: Unit Test
// Security: Token forgery protection (CWE-347)
// Expected: Returns HTTP 401 Unauthorized.
// Test Case ID: AUTHN-02
func TestAuth_ForgedToken_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, "wrong-secret", "alice", "sid-1", "t1")

	w := f.do(t, http.MethodGet, "/api/v1/tenants/t1/assignable-roles", token, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code,
		"AUTHN-02: token signed with the wrong key should return 401")
}

// TestPurpose: Validates that an X-Tenant-ID header on an authenticated route is
// rejected outright instead of being silently ignored.
// Scope: Unit Test
// Security: Tenant spoofing prevention (CWE-284)
// Expected: Returns HTTP 400 Bad Request.
// Test Case ID: AUTHN-03
func TestAuth_TenantHeaderSpoofing_ReturnsBadRequest(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/t1/assignable-roles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tenant-ID", "t2")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code,
		"AUTHN-03: X-Tenant-ID header must be rejected on authenticated routes")
}

// TestPurpose: Validates that a path tenant differing from the token tenant is
// rejected, never silently substituted.
// Scope: Unit Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: Returns HTTP 403 Forbidden.
// Test Case ID: TEN-01
func TestTenantScope_PathTokenMismatch_ReturnsForbidden(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodGet, "/api/v1/tenants/t2/assignable-roles", token, nil)

	assert.Equal(t, http.StatusForbidden, w.Code,
		"TEN-01: path tenant differing from token tenant should return 403")
}

// =============================================================================
// STEP-UP GATE
// Category: Transport - Step-Up Authentication
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that role mutations without a fresh step-up proof are
// blocked with a machine-readable step_up_required error.
// Scope: Unit Test
// Security: Step-up authentication enforcement
// Expected: Returns HTTP 403 with error step_up_required.
// Test Case ID: STP-01
func TestStepUp_RoleChangeWithoutProof_ReturnsStepUpRequired(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleTaskOwner})

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "step_up_required", resp["error"],
		"STP-01: clients need a machine-readable signal to run the MFA challenge")
	assert.Equal(t, stepup.ActionRoleChange, resp["action"])
}

// TestPurpose: Validates the complete step-up flow: a valid TOTP code through
// the step-up endpoint unlocks a subsequent role assignment in the same session.
// Scope: Unit Test
// Security: Step-up authentication enforcement
// Expected: Step-up completion returns 200 and the follow-up assignment succeeds.
// Test Case ID: STP-02
func TestStepUp_CompleteThenAssign_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	f.secrets.m["alice"] = "JBSWY3DPEHPK3PXP"
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/v1/stepup/role.change", token, MfaRequest{Code: code})
	require.Equal(t, http.StatusOK, w.Code, "step-up completion failed: %s", w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleTaskOwner})
	require.Equal(t, http.StatusOK, w.Code, "assignment after step-up failed: %s", w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, rbac.RoleTaskOwner, resp["role"])
	assert.Equal(t, string(rbac.StatusApproved), resp["status"])
}

// TestPurpose: Validates that completing step-up for an unprotected action is
// rejected instead of minting a useless proof.
// Scope: Unit Test
// Expected: Returns HTTP 400 Bad Request.
// Test Case ID: STP-03
func TestStepUp_UnprotectedAction_ReturnsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.secrets.m["alice"] = "JBSWY3DPEHPK3PXP"
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	code, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/v1/stepup/report.export", token, MfaRequest{Code: code})

	assert.Equal(t, http.StatusBadRequest, w.Code,
		"STP-03: unprotected actions must not mint proofs")
}

// TestPurpose: Validates that invalidating a session drops its step-up proofs
// so subsequent protected operations are challenged again.
// Scope: Unit Test
// Security: Session teardown hygiene
// Expected: DELETE /stepup returns 200 and the proof no longer unlocks the gate.
// Test Case ID: STP-04
func TestStepUp_InvalidateSession_DropsProofs(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	f.grantProof("alice", "sid-1", stepup.ActionRoleChange)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodDelete, "/api/v1/stepup", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleTaskOwner})
	assert.Equal(t, http.StatusForbidden, w.Code,
		"STP-04: invalidated session must be challenged again")
}

// =============================================================================
// ROLE ASSIGNMENT
// Category: Transport - Role Hierarchy Enforcement
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that a manager cannot grant a role outside their
// explicit assignable set, closing the lateral-escalation path.
// Scope: Unit Test
// Security: Privilege escalation prevention (CWE-269)
// Expected: Returns HTTP 403 Forbidden.
// Test Case ID: RBAC-01
func TestAssignRole_LateralEscalation_ReturnsForbidden(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "carol", rbac.RoleComplianceManager)
	f.grantProof("carol", "sid-2", stepup.ActionRoleChange)
	token := signToken(t, testJWTSecret, "carol", "sid-2", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleSecurityManager})

	assert.Equal(t, http.StatusForbidden, w.Code,
		"RBAC-01: ComplianceManager must not grant SecurityManager")
}

// TestPurpose: Validates that granting a protected role is accepted but parks
// the assignment as pending until a second approver confirms it.
// Scope: Unit Test
// Security: Dual approval for privileged roles
// Expected: Returns HTTP 202 Accepted with status PendingApproval.
// Test Case ID: RBAC-02
func TestAssignRole_ProtectedRole_ReturnsAcceptedPending(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	f.grantProof("alice", "sid-1", stepup.ActionRoleChange)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleComplianceManager})

	require.Equal(t, http.StatusAccepted, w.Code, "body: %s", w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(rbac.StatusPendingApproval), resp["status"])
}

// TestPurpose: Validates that the dry-run validation endpoint reports an
// escalation denial without writing anything.
// Scope: Unit Test
// Expected: Returns HTTP 200 with allowed=false and reason privilege_escalation.
// Test Case ID: RBAC-03
func TestValidateAssignment_Escalation_ReportsDenial(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "carol", rbac.RoleComplianceManager)
	token := signToken(t, testJWTSecret, "carol", "sid-2", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/role-assignments/validate?principal_id=bob",
		token, RoleRequest{Role: rbac.RoleTenantAdmin})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["allowed"])
	assert.Equal(t, string(rbac.ReasonPrivilegeEscalation), resp["reason"])
	_, written := f.assignments.m[akey("t1", "bob")]
	assert.False(t, written, "RBAC-03: validation must not write assignments")
}

// TestPurpose: Validates that unknown role codes are rejected with 400 before
// any authorization logic runs.
// Scope: Unit Test
// Security: Input validation boundary
// Expected: Returns HTTP 400 Bad Request.
// Test Case ID: RBAC-04
func TestAssignRole_UnknownRole_ReturnsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	f.grantProof("alice", "sid-1", stepup.ActionRoleChange)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: "Wizard"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates that the assignable-roles listing reflects the
// caller's explicit grant set.
// Scope: Unit Test
// Expected: Returns HTTP 200 with the SecurityManager grant set.
// Test Case ID: RBAC-05
func TestGetAssignableRoles_ReturnsExplicitSet(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "dave", rbac.RoleSecurityManager)
	token := signToken(t, testJWTSecret, "dave", "sid-3", "t1")

	w := f.do(t, http.MethodGet, "/api/v1/tenants/t1/assignable-roles", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Roles []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{rbac.RoleSecurityAnalyst, rbac.RoleReadOnlyUser}, resp.Roles)
}

// TestPurpose: Validates that the audit-trail endpoint returns the target
// principal's recent events newest first, scoped to the caller's tenant.
// Scope: Unit Test
// Expected: Returns HTTP 200 with the role_assigned event emitted by a grant.
// Test Case ID: RBAC-06
func TestListAuditEvents_ReturnsGrantTrail(t *testing.T) {
	f := newFixture(t)
	f.assignments.seed("t1", "alice", rbac.RoleTenantAdmin)
	f.grantProof("alice", "sid-1", stepup.ActionRoleChange)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/tenants/t1/principals/bob/role", token,
		RoleRequest{Role: rbac.RoleTaskOwner})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/tenants/t1/principals/bob/audit-events", token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, audit.KindRoleAssigned, resp.Events[0].Kind)
	assert.Equal(t, "alice", resp.Events[0].ActorID)
	assert.Equal(t, rbac.RoleTaskOwner, resp.Events[0].Resource)
}

// =============================================================================
// MFA ENDPOINTS
// Category: Transport - MFA Verification and Enrollment
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that a wrong TOTP code returns 401 with the remaining
// attempt budget so clients can warn the user.
// Scope: Unit Test
// Security: Brute-force feedback control
// Expected: Returns HTTP 401 with attempts_remaining.
// Test Case ID: MFA-01
func TestVerifyMfa_WrongCode_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.secrets.m["alice"] = "JBSWY3DPEHPK3PXP"
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/mfa/verify", token, MfaRequest{Code: "000000"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_code", resp["error"])
	assert.Equal(t, float64(4), resp["attempts_remaining"])
}

// TestPurpose: Validates that verification for an unenrolled principal fails
// with 400 rather than consuming lockout budget.
// Scope: Unit Test
// Expected: Returns HTTP 400 Bad Request.
// Test Case ID: MFA-02
func TestVerifyMfa_Unenrolled_ReturnsBadRequest(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/mfa/verify", token, MfaRequest{Code: "123456"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates that enrollment provisions a TOTP secret, persists it,
// and hands back the otpauth provisioning URI.
// Scope: Unit Test
// Expected: Returns HTTP 201 with secret and url; the secret verifies codes.
// Test Case ID: MFA-03
func TestEnrollMfa_ProvisionsWorkingSecret(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, testJWTSecret, "alice", "sid-1", "t1")

	w := f.do(t, http.MethodPost, "/api/v1/mfa/enroll", token, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["secret"])
	assert.Contains(t, resp["url"], "otpauth://totp/")
	assert.Equal(t, resp["secret"], f.secrets.m["alice"], "secret must be persisted")

	code, err := totp.GenerateCode(resp["secret"], time.Now())
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/api/v1/mfa/verify", token, MfaRequest{Code: code})
	assert.Equal(t, http.StatusOK, w.Code, "enrolled secret must verify codes")
}
