package rbac

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUnauthorized        = errors.New("assigner holds no roles in this tenant")
	ErrSelfAssignment      = errors.New("roles cannot be self-assigned")
	ErrPrivilegeEscalation = errors.New("assignment would escalate privileges")
	ErrUnknownRole         = errors.New("unknown role code")
	ErrAssignmentNotFound  = errors.New("role assignment not found")
	ErrConflict            = errors.New("concurrent modification, retry")
	ErrNotPending          = errors.New("assignment is not pending approval")
	ErrApproverConflict    = errors.New("approver must be independent of assigner and target")
)

// ApprovalStatus tracks the dual-approval lifecycle of an assignment.
type ApprovalStatus string

const (
	// StatusApproved assignments are effective for authorization checks.
	StatusApproved ApprovalStatus = "Approved"

	// StatusPendingApproval assignments await a second approver and are not
	// yet effective.
	StatusPendingApproval ApprovalStatus = "PendingApproval"
)

// Assignment is a principal's current role in a tenant. The model holds one
// active assignment per (tenant, principal); Version guards concurrent writes.
type Assignment struct {
	TenantID    string
	PrincipalID string
	Role        string
	AssignedBy  string
	AssignedAt  time.Time
	Status      ApprovalStatus
	Version     int64
}

// Effective reports whether the assignment counts for authorization checks.
func (a *Assignment) Effective() bool {
	return a.Status == StatusApproved
}

// AssignmentStore persists role assignments with optimistic concurrency.
type AssignmentStore interface {
	// GetRoles returns the principal's effective (approved) roles in the
	// tenant. Pending assignments are excluded.
	GetRoles(ctx context.Context, tenantID, principalID string) ([]string, error)

	// Get returns the principal's current assignment regardless of approval
	// status, or ErrAssignmentNotFound.
	Get(ctx context.Context, tenantID, principalID string) (*Assignment, error)

	// Upsert writes the assignment. expectedVersion 0 demands an insert; a
	// non-zero value demands the stored row still carry that version. A lost
	// race returns ErrConflict, never a silent overwrite. On success the
	// assignment's Version is advanced.
	Upsert(ctx context.Context, assignment *Assignment, expectedVersion int64) error

	// Remove deletes the principal's assignment, or ErrAssignmentNotFound.
	Remove(ctx context.Context, tenantID, principalID string) error
}
