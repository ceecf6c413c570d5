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

// DenyReason classifies why an assignment was refused. Denial is an expected
// policy outcome, not an error; the engine maps reasons to sentinel errors at
// its boundary.
type DenyReason string

const (
	// ReasonUnauthorized: the assigner holds no roles in the tenant.
	ReasonUnauthorized DenyReason = "unauthorized"

	// ReasonSelfAssignment: principals may never grant roles to themselves,
	// regardless of rank.
	ReasonSelfAssignment DenyReason = "self_assignment"

	// ReasonPrivilegeEscalation: no held role is permitted to grant the target.
	ReasonPrivilegeEscalation DenyReason = "privilege_escalation"
)

// Decision is the outcome of validating a role assignment. Exactly one of the
// two variants applies: Allowed (optionally requiring dual approval) or Denied
// with a reason.
type Decision struct {
	Allowed bool

	// RequiresDualApproval is set on allowed decisions for protected roles.
	RequiresDualApproval bool

	// AuthorizedBy names the assigner role that authorized the grant, or
	// "rank" when the rank fallback applied.
	AuthorizedBy string

	// Reason is set on denied decisions.
	Reason DenyReason
}

// Allow builds an allowed decision.
func Allow(authorizedBy string, requiresDualApproval bool) Decision {
	return Decision{
		Allowed:              true,
		RequiresDualApproval: requiresDualApproval,
		AuthorizedBy:         authorizedBy,
	}
}

// Deny builds a denied decision.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}
