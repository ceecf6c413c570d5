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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthzMetrics holds the authorization engine counters
type AuthzMetrics struct {
	roleAssignments    metric.Int64Counter
	escalationsBlocked metric.Int64Counter
	stepUpChallenges   metric.Int64Counter
	mfaVerifications   metric.Int64Counter
}

// NewAuthzMetrics creates the counters on the given meter
func NewAuthzMetrics(m *Meter) (*AuthzMetrics, error) {
	roleAssignments, err := m.CreateCounter("authz_role_assignments_total", "Role assignment operations by result")
	if err != nil {
		return nil, err
	}
	escalationsBlocked, err := m.CreateCounter("authz_escalations_blocked_total", "Privilege escalation attempts denied")
	if err != nil {
		return nil, err
	}
	stepUpChallenges, err := m.CreateCounter("stepup_challenges_total", "Step-up challenges issued for protected actions")
	if err != nil {
		return nil, err
	}
	mfaVerifications, err := m.CreateCounter("mfa_verifications_total", "MFA verification attempts by result")
	if err != nil {
		return nil, err
	}
	return &AuthzMetrics{
		roleAssignments:    roleAssignments,
		escalationsBlocked: escalationsBlocked,
		stepUpChallenges:   stepUpChallenges,
		mfaVerifications:   mfaVerifications,
	}, nil
}

func (a *AuthzMetrics) RecordRoleAssignment(ctx context.Context, result string) {
	a.roleAssignments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (a *AuthzMetrics) RecordEscalationBlocked(ctx context.Context) {
	a.escalationsBlocked.Add(ctx, 1)
}

func (a *AuthzMetrics) RecordStepUpChallenge(ctx context.Context, action string) {
	a.stepUpChallenges.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (a *AuthzMetrics) RecordMfaVerification(ctx context.Context, result string) {
	a.mfaVerifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
