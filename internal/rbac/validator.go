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

// Validator decides whether a set of assigner roles may grant a target role.
// It is pure: no I/O, no side effects. Escalation audit events are the
// responsibility of the orchestrating engine.
type Validator struct {
	hierarchy *Hierarchy
}

// NewValidator creates a validator over the given hierarchy.
func NewValidator(h *Hierarchy) *Validator {
	return &Validator{hierarchy: h}
}

// Validate evaluates an assignment request. targetRole must already be
// normalized. Explicit assignable-roles entries take priority; rank comparison
// applies only when no held role has an explicit entry covering the target.
func (v *Validator) Validate(assignerRoles []string, targetRole string, isSelfAssignment bool) Decision {
	if len(assignerRoles) == 0 {
		return Deny(ReasonUnauthorized)
	}

	// Self-assignment is never permitted, even for the top rank.
	if isSelfAssignment {
		return Deny(ReasonSelfAssignment)
	}

	// A role with an explicit assignable-roles entry is limited to that entry.
	// Rank comparison is a fallback for roles without any entry.
	authorizedBy := ""
	fallbackRank := 0
	for _, role := range assignerRoles {
		allowed, explicit := v.hierarchy.CanGrant(role, targetRole)
		if allowed {
			authorizedBy = role
			break
		}
		if !explicit {
			if rank := v.hierarchy.Rank(role); rank > fallbackRank {
				fallbackRank = rank
			}
		}
	}
	if authorizedBy == "" && fallbackRank > v.hierarchy.Rank(targetRole) {
		authorizedBy = "rank"
	}

	if authorizedBy == "" {
		return Deny(ReasonPrivilegeEscalation)
	}

	return Allow(authorizedBy, v.hierarchy.IsProtected(targetRole))
}
