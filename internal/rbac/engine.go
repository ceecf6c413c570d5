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

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opengrc/opengrc/internal/audit"
	"github.com/opengrc/opengrc/internal/observability/logger"
)

// Engine orchestrates role assignment: validate, persist, audit. Audit writes
// for privilege-affecting events are part of the operation; a failed audit
// write fails (and compensates) the operation.
type Engine struct {
	hierarchy *Hierarchy
	validator *Validator
	store     AssignmentStore
	sink      audit.Sink
}

// NewEngine creates a role assignment engine.
func NewEngine(h *Hierarchy, store AssignmentStore, sink audit.Sink) *Engine {
	return &Engine{
		hierarchy: h,
		validator: NewValidator(h),
		store:     store,
		sink:      sink,
	}
}

// AssignResult reports the outcome of a successful grant operation.
type AssignResult struct {
	Role string

	// PreviousRole is empty for a first assignment.
	PreviousRole string

	// Status is StatusPendingApproval when the role needs a second approver.
	Status ApprovalStatus

	// AlreadyAssigned is set when the target already held exactly this role;
	// nothing was written and no audit event was emitted.
	AlreadyAssigned bool
}

// ValidateAssignment decides whether assigner may grant role to target in the
// tenant, without writing anything. A privilege-escalation denial still emits
// its audit event: escalation attempts must be visible to audit, not just
// successes.
func (e *Engine) ValidateAssignment(ctx context.Context, assignerID, targetID, tenantID, role string) (Decision, error) {
	normalized, ok := NormalizeRoleCode(role)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	assignerRoles, err := e.store.GetRoles(ctx, tenantID, assignerID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load assigner roles: %w", err)
	}

	decision := e.validator.Validate(assignerRoles, normalized, assignerID == targetID)
	if !decision.Allowed && decision.Reason == ReasonPrivilegeEscalation {
		if err := e.auditEscalationBlocked(ctx, assignerID, targetID, tenantID, normalized, assignerRoles); err != nil {
			return Decision{}, err
		}
	}
	return decision, nil
}

// AssignRole grants a role to a principal in a tenant. Protected roles are
// persisted as PendingApproval until ApproveAssignment confirms them.
func (e *Engine) AssignRole(ctx context.Context, assignerID, targetID, tenantID, role, reason string) (*AssignResult, error) {
	return e.assign(ctx, assignerID, targetID, tenantID, role, reason, false)
}

// ChangeRole replaces an existing assignment with a new role. Unlike
// AssignRole it requires the target to already hold a role in the tenant.
func (e *Engine) ChangeRole(ctx context.Context, assignerID, targetID, tenantID, role, reason string) (*AssignResult, error) {
	return e.assign(ctx, assignerID, targetID, tenantID, role, reason, true)
}

func (e *Engine) assign(ctx context.Context, assignerID, targetID, tenantID, role, reason string, requireExisting bool) (*AssignResult, error) {
	normalized, ok := NormalizeRoleCode(role)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	assignerRoles, err := e.store.GetRoles(ctx, tenantID, assignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigner roles: %w", err)
	}

	decision := e.validator.Validate(assignerRoles, normalized, assignerID == targetID)
	if !decision.Allowed {
		if decision.Reason == ReasonPrivilegeEscalation {
			if err := e.auditEscalationBlocked(ctx, assignerID, targetID, tenantID, normalized, assignerRoles); err != nil {
				return nil, err
			}
		}
		return nil, denyError(decision.Reason)
	}

	current, err := e.store.Get(ctx, tenantID, targetID)
	if err != nil && !errors.Is(err, ErrAssignmentNotFound) {
		return nil, fmt.Errorf("failed to load current assignment: %w", err)
	}
	if current == nil && requireExisting {
		return nil, ErrAssignmentNotFound
	}

	if current != nil && current.Role == normalized {
		return &AssignResult{
			Role:            normalized,
			PreviousRole:    normalized,
			Status:          current.Status,
			AlreadyAssigned: true,
		}, nil
	}

	status := StatusApproved
	if decision.RequiresDualApproval {
		status = StatusPendingApproval
	}

	previousRole := ""
	var expectedVersion int64
	if current != nil {
		previousRole = current.Role
		expectedVersion = current.Version
	}

	assignment := &Assignment{
		TenantID:    tenantID,
		PrincipalID: targetID,
		Role:        normalized,
		AssignedBy:  assignerID,
		AssignedAt:  time.Now(),
		Status:      status,
	}
	if err := e.store.Upsert(ctx, assignment, expectedVersion); err != nil {
		return nil, err
	}

	if status == StatusPendingApproval {
		slog.InfoContext(ctx, "role assignment pending dual approval",
			logger.Component("rbac"),
			logger.Role(normalized),
			logger.TenantID(tenantID),
			logger.PrincipalID(targetID),
		)
		return &AssignResult{Role: normalized, PreviousRole: previousRole, Status: status}, nil
	}

	kind := audit.KindRoleAssigned
	metadata := map[string]any{audit.AttrAssignerRole: decision.AuthorizedBy}
	if previousRole != "" {
		kind = audit.KindRoleChanged
		metadata[audit.AttrPreviousRole] = previousRole
	}
	if reason != "" {
		metadata[audit.AttrReason] = reason
	}
	err = e.sink.Record(ctx, audit.Event{
		Kind:     kind,
		TenantID: tenantID,
		ActorID:  assignerID,
		TargetID: targetID,
		Resource: normalized,
		Metadata: metadata,
	})
	if err != nil {
		e.compensateWrite(ctx, current, assignment)
		return nil, fmt.Errorf("audit write failed, assignment rolled back: %w", err)
	}

	return &AssignResult{Role: normalized, PreviousRole: previousRole, Status: status}, nil
}

// ApproveAssignment completes the dual-approval flow. The approver must be
// independent of both the original assigner and the target, and must itself be
// authorized to grant the pending role.
func (e *Engine) ApproveAssignment(ctx context.Context, approverID, targetID, tenantID string) error {
	current, err := e.store.Get(ctx, tenantID, targetID)
	if err != nil {
		return err
	}
	if current.Status != StatusPendingApproval {
		return ErrNotPending
	}
	if approverID == current.AssignedBy || approverID == targetID {
		return ErrApproverConflict
	}

	approverRoles, err := e.store.GetRoles(ctx, tenantID, approverID)
	if err != nil {
		return fmt.Errorf("failed to load approver roles: %w", err)
	}
	decision := e.validator.Validate(approverRoles, current.Role, false)
	if !decision.Allowed {
		if decision.Reason == ReasonPrivilegeEscalation {
			if err := e.auditEscalationBlocked(ctx, approverID, targetID, tenantID, current.Role, approverRoles); err != nil {
				return err
			}
		}
		return denyError(decision.Reason)
	}

	approved := *current
	approved.Status = StatusApproved
	if err := e.store.Upsert(ctx, &approved, current.Version); err != nil {
		return err
	}

	err = e.sink.Record(ctx, audit.Event{
		Kind:     audit.KindRoleAssigned,
		TenantID: tenantID,
		ActorID:  current.AssignedBy,
		TargetID: targetID,
		Resource: current.Role,
		Metadata: map[string]any{
			audit.AttrApprovedBy:   approverID,
			audit.AttrAssignerRole: decision.AuthorizedBy,
		},
	})
	if err != nil {
		e.compensateWrite(ctx, current, &approved)
		return fmt.Errorf("audit write failed, approval rolled back: %w", err)
	}
	return nil
}

// RemoveRole revokes the target's assignment. The remover must pass the same
// validation as granting the role being removed: you may only revoke what you
// could grant.
func (e *Engine) RemoveRole(ctx context.Context, removerID, targetID, tenantID, reason string) error {
	current, err := e.store.Get(ctx, tenantID, targetID)
	if err != nil {
		return err
	}

	removerRoles, err := e.store.GetRoles(ctx, tenantID, removerID)
	if err != nil {
		return fmt.Errorf("failed to load remover roles: %w", err)
	}
	decision := e.validator.Validate(removerRoles, current.Role, removerID == targetID)
	if !decision.Allowed {
		if decision.Reason == ReasonPrivilegeEscalation {
			if err := e.auditEscalationBlocked(ctx, removerID, targetID, tenantID, current.Role, removerRoles); err != nil {
				return err
			}
		}
		return denyError(decision.Reason)
	}

	if err := e.store.Remove(ctx, tenantID, targetID); err != nil {
		return err
	}

	metadata := map[string]any{audit.AttrAssignerRole: decision.AuthorizedBy}
	if reason != "" {
		metadata[audit.AttrReason] = reason
	}
	err = e.sink.Record(ctx, audit.Event{
		Kind:     audit.KindRoleRemoved,
		TenantID: tenantID,
		ActorID:  removerID,
		TargetID: targetID,
		Resource: current.Role,
		Metadata: metadata,
	})
	if err != nil {
		// Restore the removed assignment as a fresh row.
		restore := *current
		if restoreErr := e.store.Upsert(ctx, &restore, 0); restoreErr != nil {
			slog.ErrorContext(ctx, "failed to restore assignment after audit failure",
				logger.Error(restoreErr),
				logger.TenantID(tenantID),
				logger.PrincipalID(targetID),
			)
		}
		return fmt.Errorf("audit write failed, removal rolled back: %w", err)
	}
	return nil
}

// GetAssignableRoles returns the roles the principal may grant in the tenant,
// from explicit assignable-roles entries, sorted by descending rank.
func (e *Engine) GetAssignableRoles(ctx context.Context, principalID, tenantID string) ([]string, error) {
	roles, err := e.store.GetRoles(ctx, tenantID, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	return e.hierarchy.AssignableTo(roles), nil
}

func (e *Engine) auditEscalationBlocked(ctx context.Context, actorID, targetID, tenantID, role string, actorRoles []string) error {
	assignerRole := "none"
	if len(actorRoles) > 0 {
		assignerRole = actorRoles[0]
	}
	err := e.sink.Record(ctx, audit.Event{
		Kind:     audit.KindPrivilegeEscalationBlocked,
		TenantID: tenantID,
		ActorID:  actorID,
		TargetID: targetID,
		Resource: role,
		Metadata: map[string]any{audit.AttrAssignerRole: assignerRole},
	})
	if err != nil {
		return fmt.Errorf("audit write failed: %w", err)
	}
	slog.WarnContext(ctx, "privilege escalation blocked",
		logger.Component("rbac"),
		logger.PrincipalID(actorID),
		logger.TenantID(tenantID),
		logger.Role(role),
	)
	return nil
}

// compensateWrite restores the pre-operation state after a failed audit write.
// Best effort: a failed compensation is logged, the operation still fails.
func (e *Engine) compensateWrite(ctx context.Context, previous, written *Assignment) {
	var err error
	if previous != nil {
		restore := *previous
		err = e.store.Upsert(ctx, &restore, written.Version)
	} else {
		err = e.store.Remove(ctx, written.TenantID, written.PrincipalID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to compensate assignment after audit failure",
			logger.Error(err),
			logger.TenantID(written.TenantID),
			logger.PrincipalID(written.PrincipalID),
		)
	}
}

func denyError(reason DenyReason) error {
	switch reason {
	case ReasonUnauthorized:
		return ErrUnauthorized
	case ReasonSelfAssignment:
		return ErrSelfAssignment
	default:
		return ErrPrivilegeEscalation
	}
}
