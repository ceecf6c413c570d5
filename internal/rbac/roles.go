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

import "strings"

// -----------------------------------------------------------------------------
// Role Code Constants
// Canonical format is PascalCase. All external input must pass through
// NormalizeRoleCode before it reaches the hierarchy or the stores.
// -----------------------------------------------------------------------------

const (
	// RolePlatformAdmin is the platform-wide administrator role.
	RolePlatformAdmin = "PlatformAdmin"

	// RoleTenantAdmin administers a single tenant.
	RoleTenantAdmin = "TenantAdmin"

	// Management layer roles.
	RoleComplianceManager = "ComplianceManager"
	RoleAuditManager      = "AuditManager"
	RoleSecurityManager   = "SecurityManager"
	RoleRiskManager       = "RiskManager"
	RolePolicyManager     = "PolicyManager"
	RoleAssetManager      = "AssetManager"
	RoleVendorManager     = "VendorManager"
	RoleIncidentManager   = "IncidentManager"

	// Operational layer roles.
	RoleComplianceOfficer = "ComplianceOfficer"
	RoleRiskAnalyst       = "RiskAnalyst"
	RoleAuditAnalyst      = "AuditAnalyst"
	RoleSecurityAnalyst   = "SecurityAnalyst"

	// Support layer roles.
	RoleTaskOwner           = "TaskOwner"
	RoleEvidenceContributor = "EvidenceContributor"
	RoleSystemObserver      = "SystemObserver"
	RoleTeamMember          = "TeamMember"
	RoleReadOnlyUser        = "ReadOnlyUser"
)

// AllRoles lists every role known to the default hierarchy.
var AllRoles = []string{
	RolePlatformAdmin,
	RoleTenantAdmin,
	RoleComplianceManager,
	RoleAuditManager,
	RoleSecurityManager,
	RoleRiskManager,
	RolePolicyManager,
	RoleAssetManager,
	RoleVendorManager,
	RoleIncidentManager,
	RoleComplianceOfficer,
	RoleRiskAnalyst,
	RoleAuditAnalyst,
	RoleSecurityAnalyst,
	RoleTaskOwner,
	RoleEvidenceContributor,
	RoleSystemObserver,
	RoleTeamMember,
	RoleReadOnlyUser,
}

// aliases maps common legacy spellings to canonical role codes. Keys are
// lowercase with separators stripped, which also covers snake_case and
// kebab-case variants of the canonical names.
var aliases = map[string]string{
	"admin":         RoleTenantAdmin,
	"administrator": RoleTenantAdmin,
	"owner":         RoleTenantAdmin,
	"sysadmin":      RolePlatformAdmin,
	"superadmin":    RolePlatformAdmin,
	"observer":      RoleSystemObserver,
	"viewer":        RoleSystemObserver,
	"member":        RoleTeamMember,
	"readonly":      RoleReadOnlyUser,
}

var canonical = func() map[string]string {
	m := make(map[string]string, len(AllRoles))
	for _, r := range AllRoles {
		m[strings.ToLower(r)] = r
	}
	return m
}()

// NormalizeRoleCode maps any accepted spelling of a role code (PascalCase,
// SNAKE_CASE, kebab-case, known aliases) to its canonical form. It returns
// false for inputs that do not name a known role; callers must treat that as
// a validation failure rather than guessing a default.
func NormalizeRoleCode(code string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(code))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	if key == "" {
		return "", false
	}
	if r, ok := canonical[key]; ok {
		return r, true
	}
	if r, ok := aliases[key]; ok {
		return r, true
	}
	return "", false
}

// IsValidRole reports whether the input names a known role after normalization.
func IsValidRole(code string) bool {
	_, ok := NormalizeRoleCode(code)
	return ok
}
