package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opengrc/opengrc/internal/rbac"
)

// RoleAssignmentRepository implements rbac.AssignmentStore
type RoleAssignmentRepository struct {
	db *DB
}

// NewRoleAssignmentRepository creates a new role assignment repository
func NewRoleAssignmentRepository(db *DB) *RoleAssignmentRepository {
	return &RoleAssignmentRepository{db: db}
}

// GetRoles retrieves the approved roles a principal holds in a tenant
func (r *RoleAssignmentRepository) GetRoles(ctx context.Context, tenantID, principalID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role
		FROM role_assignments
		WHERE tenant_id = $1 AND principal_id = $2 AND approval_status = $3
	`, tenantID, principalID, string(rbac.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// Get retrieves a principal's assignment regardless of approval status
func (r *RoleAssignmentRepository) Get(ctx context.Context, tenantID, principalID string) (*rbac.Assignment, error) {
	var a rbac.Assignment
	var status string
	err := r.db.pool.QueryRow(ctx, `
		SELECT tenant_id, principal_id, role, assigned_by, assigned_at, approval_status, version
		FROM role_assignments
		WHERE tenant_id = $1 AND principal_id = $2
	`, tenantID, principalID).Scan(
		&a.TenantID, &a.PrincipalID, &a.Role, &a.AssignedBy, &a.AssignedAt, &status, &a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.Status = rbac.ApprovalStatus(status)
	return &a, nil
}

// Upsert writes an assignment guarded by its expected version. A zero
// expected version inserts; anything else updates the matching row.
func (r *RoleAssignmentRepository) Upsert(ctx context.Context, a *rbac.Assignment, expectedVersion int64) error {
	if expectedVersion == 0 {
		result, err := r.db.pool.Exec(ctx, `
			INSERT INTO role_assignments (tenant_id, principal_id, role, assigned_by, assigned_at, approval_status, version)
			VALUES ($1, $2, $3, $4, $5, $6, 1)
			ON CONFLICT (tenant_id, principal_id) DO NOTHING
		`, a.TenantID, a.PrincipalID, a.Role, a.AssignedBy, a.AssignedAt, string(a.Status))
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
		if result.RowsAffected() == 0 {
			return rbac.ErrConflict
		}
		a.Version = 1
		return nil
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE role_assignments
		SET role = $1, assigned_by = $2, assigned_at = $3, approval_status = $4, version = version + 1
		WHERE tenant_id = $5 AND principal_id = $6 AND version = $7
	`, a.Role, a.AssignedBy, a.AssignedAt, string(a.Status), a.TenantID, a.PrincipalID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return rbac.ErrConflict
	}
	a.Version = expectedVersion + 1
	return nil
}

// Remove deletes a principal's assignment in a tenant
func (r *RoleAssignmentRepository) Remove(ctx context.Context, tenantID, principalID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM role_assignments
		WHERE tenant_id = $1 AND principal_id = $2
	`, tenantID, principalID)
	if err != nil {
		return fmt.Errorf("failed to remove assignment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return rbac.ErrAssignmentNotFound
	}
	return nil
}
