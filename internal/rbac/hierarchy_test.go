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

package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengrc/opengrc/internal/rbac"
)

func TestHierarchy_Ranks(t *testing.T) {
	h := rbac.DefaultHierarchy()

	assert.Equal(t, 100, h.Rank(rbac.RolePlatformAdmin))
	assert.Equal(t, 90, h.Rank(rbac.RoleTenantAdmin))
	assert.Equal(t, 80, h.Rank(rbac.RoleComplianceManager))
	assert.Equal(t, 10, h.Rank(rbac.RoleReadOnlyUser))
	assert.Equal(t, 0, h.Rank("NoSuchRole"), "unknown roles rank below everything")

	assert.True(t, h.IsKnown(rbac.RoleTaskOwner))
	assert.False(t, h.IsKnown("NoSuchRole"))
}

func TestHierarchy_ProtectedRoles(t *testing.T) {
	h := rbac.DefaultHierarchy()

	for _, role := range []string{
		rbac.RolePlatformAdmin,
		rbac.RoleTenantAdmin,
		rbac.RoleComplianceManager,
		rbac.RoleAuditManager,
	} {
		assert.True(t, h.IsProtected(role), "%s should require dual approval", role)
	}
	assert.False(t, h.IsProtected(rbac.RoleSecurityManager))
	assert.False(t, h.IsProtected(rbac.RoleReadOnlyUser))
}

func TestHierarchy_AssignableTo(t *testing.T) {
	h := rbac.DefaultHierarchy()

	roles := h.AssignableTo([]string{rbac.RoleSecurityManager})
	assert.Equal(t, []string{rbac.RoleSecurityAnalyst, rbac.RoleReadOnlyUser}, roles,
		"sorted by descending rank")

	// Union across held roles, no duplicates.
	roles = h.AssignableTo([]string{rbac.RoleSecurityManager, rbac.RoleRiskManager})
	assert.Equal(t, []string{
		rbac.RoleRiskAnalyst, rbac.RoleSecurityAnalyst, rbac.RoleReadOnlyUser,
	}, roles)

	// Roles with no explicit entry contribute nothing here.
	assert.Empty(t, h.AssignableTo([]string{rbac.RolePolicyManager}))
	assert.Empty(t, h.AssignableTo(nil))
}

func TestNewHierarchy_RejectsUnrankedReferences(t *testing.T) {
	_, err := rbac.NewHierarchy(rbac.HierarchyConfig{
		Ranks:      map[string]int{"A": 10},
		Assignable: map[string][]string{"A": {"B"}},
	})
	require.Error(t, err)

	_, err = rbac.NewHierarchy(rbac.HierarchyConfig{
		Ranks:     map[string]int{"A": 10},
		Protected: []string{"B"},
	})
	require.Error(t, err)
}

func TestNormalizeRoleCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"TenantAdmin", rbac.RoleTenantAdmin, true},
		{"tenant_admin", rbac.RoleTenantAdmin, true},
		{"TENANT-ADMIN", rbac.RoleTenantAdmin, true},
		{"  compliance manager ", rbac.RoleComplianceManager, true},
		{"admin", rbac.RoleTenantAdmin, true},
		{"owner", rbac.RoleTenantAdmin, true},
		{"superadmin", rbac.RolePlatformAdmin, true},
		{"viewer", rbac.RoleSystemObserver, true},
		{"readonly", rbac.RoleReadOnlyUser, true},
		{"Employee", "", false},
		{"", "", false},
		{"   ", "", false},
	}

	for _, tt := range tests {
		got, ok := rbac.NormalizeRoleCode(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
