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
	"fmt"
	"sort"
)

// HierarchyConfig is the declarative input for building a Hierarchy.
type HierarchyConfig struct {
	// Ranks assigns each role an authority rank. Higher outranks lower.
	Ranks map[string]int

	// Assignable maps a role to the set of roles it may grant. Entries here
	// are authoritative and take priority over rank comparison, so a role can
	// be configured to grant a narrow set of peers without implying blanket
	// escalation rights.
	Assignable map[string][]string

	// Protected lists roles whose assignment requires dual approval.
	Protected []string
}

// Hierarchy is the immutable role-hierarchy configuration consulted by the
// validator. It is built once at startup; nothing mutates it afterwards.
type Hierarchy struct {
	ranks      map[string]int
	assignable map[string]map[string]struct{}
	protected  map[string]struct{}
}

// NewHierarchy builds a Hierarchy from config. Every role referenced by the
// assignable map or the protected set must carry a rank.
func NewHierarchy(cfg HierarchyConfig) (*Hierarchy, error) {
	h := &Hierarchy{
		ranks:      make(map[string]int, len(cfg.Ranks)),
		assignable: make(map[string]map[string]struct{}, len(cfg.Assignable)),
		protected:  make(map[string]struct{}, len(cfg.Protected)),
	}
	for role, rank := range cfg.Ranks {
		h.ranks[role] = rank
	}
	for assigner, targets := range cfg.Assignable {
		if _, ok := h.ranks[assigner]; !ok {
			return nil, fmt.Errorf("assignable map references unranked role %q", assigner)
		}
		set := make(map[string]struct{}, len(targets))
		for _, t := range targets {
			if _, ok := h.ranks[t]; !ok {
				return nil, fmt.Errorf("assignable map for %q references unranked role %q", assigner, t)
			}
			set[t] = struct{}{}
		}
		h.assignable[assigner] = set
	}
	for _, role := range cfg.Protected {
		if _, ok := h.ranks[role]; !ok {
			return nil, fmt.Errorf("protected set references unranked role %q", role)
		}
		h.protected[role] = struct{}{}
	}
	return h, nil
}

// Rank returns a role's authority rank. Unknown roles rank 0, below every
// configured role.
func (h *Hierarchy) Rank(role string) int {
	return h.ranks[role]
}

// IsKnown reports whether the role carries a rank in this hierarchy.
func (h *Hierarchy) IsKnown(role string) bool {
	_, ok := h.ranks[role]
	return ok
}

// IsProtected reports whether assigning the role requires dual approval.
func (h *Hierarchy) IsProtected(role string) bool {
	_, ok := h.protected[role]
	return ok
}

// CanGrant reports whether assigner may grant target via an explicit
// assignable-roles entry, and whether such an entry exists at all.
func (h *Hierarchy) CanGrant(assigner, target string) (allowed, explicit bool) {
	set, ok := h.assignable[assigner]
	if !ok {
		return false, false
	}
	_, allowed = set[target]
	return allowed, true
}

// AssignableTo returns the union of roles the given role set may grant, sorted
// by descending rank.
func (h *Hierarchy) AssignableTo(roles []string) []string {
	union := make(map[string]struct{})
	for _, r := range roles {
		for target := range h.assignable[r] {
			union[target] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for r := range union {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if h.ranks[out[i]] != h.ranks[out[j]] {
			return h.ranks[out[i]] > h.ranks[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// DefaultHierarchy returns the built-in compliance-platform hierarchy.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(HierarchyConfig{
		Ranks: map[string]int{
			RolePlatformAdmin:       100,
			RoleTenantAdmin:         90,
			RoleComplianceManager:   80,
			RoleAuditManager:        80,
			RoleSecurityManager:     80,
			RoleRiskManager:         70,
			RolePolicyManager:       70,
			RoleAssetManager:        70,
			RoleVendorManager:       70,
			RoleIncidentManager:     70,
			RoleComplianceOfficer:   60,
			RoleRiskAnalyst:         60,
			RoleAuditAnalyst:        60,
			RoleSecurityAnalyst:     60,
			RoleTaskOwner:           50,
			RoleEvidenceContributor: 40,
			RoleSystemObserver:      30,
			RoleTeamMember:          20,
			RoleReadOnlyUser:        10,
		},
		Assignable: map[string][]string{
			RolePlatformAdmin: AllRoles,
			RoleTenantAdmin: {
				RoleComplianceManager, RoleAuditManager, RoleSecurityManager,
				RoleRiskManager, RolePolicyManager, RoleAssetManager,
				RoleVendorManager, RoleIncidentManager,
				RoleComplianceOfficer, RoleRiskAnalyst, RoleAuditAnalyst,
				RoleSecurityAnalyst, RoleTaskOwner, RoleEvidenceContributor,
				RoleSystemObserver, RoleTeamMember, RoleReadOnlyUser,
			},
			RoleComplianceManager: {
				RoleComplianceOfficer, RoleRiskAnalyst,
				RoleEvidenceContributor, RoleReadOnlyUser,
			},
			RoleAuditManager: {
				RoleAuditAnalyst, RoleSystemObserver, RoleReadOnlyUser,
			},
			RoleSecurityManager: {
				RoleSecurityAnalyst, RoleReadOnlyUser,
			},
			RoleRiskManager: {
				RoleRiskAnalyst, RoleReadOnlyUser,
			},
		},
		Protected: []string{
			RolePlatformAdmin,
			RoleTenantAdmin,
			RoleComplianceManager,
			RoleAuditManager,
		},
	})
	if err != nil {
		// The built-in tables are internally consistent; reaching this is a bug.
		panic(err)
	}
	return h
}
