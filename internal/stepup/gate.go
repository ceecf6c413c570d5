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

package stepup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opengrc/opengrc/internal/audit"
	"github.com/opengrc/opengrc/internal/observability/logger"
)

// Protected action identifiers.
const (
	ActionRoleChange      = "role.change"
	ActionAdminInvite     = "admin.invite"
	ActionUserSuspend     = "user.suspend"
	ActionUserDeprovision = "user.deprovision"
	ActionAPIKeyCreate    = "api.key.create"
)

// DefaultProtectedActions are the actions gated behind step-up authentication
// when no explicit set is configured.
var DefaultProtectedActions = []string{
	ActionRoleChange,
	ActionAdminInvite,
	ActionUserSuspend,
	ActionUserDeprovision,
	ActionAPIKeyCreate,
}

// DefaultValidity is how long a recorded proof stays valid.
const DefaultValidity = 15 * time.Minute

// Gate decides whether an action needs step-up authentication and whether a
// session already holds a valid proof for it. The gate fails closed: if proof
// validity cannot be determined, step-up is treated as not satisfied.
type Gate struct {
	store    ProofStore
	sink     audit.Sink
	actions  map[string]struct{}
	validity time.Duration
	now      func() time.Time
}

// NewGate creates a step-up gate. Empty actions or a zero validity fall back
// to the defaults.
func NewGate(store ProofStore, sink audit.Sink, actions []string, validity time.Duration) *Gate {
	if len(actions) == 0 {
		actions = DefaultProtectedActions
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		set[strings.ToLower(a)] = struct{}{}
	}
	return &Gate{
		store:    store,
		sink:     sink,
		actions:  set,
		validity: validity,
		now:      time.Now,
	}
}

// RequiresStepUp reports whether the action is in the protected set. Unknown
// actions default to not requiring step-up.
func (g *Gate) RequiresStepUp(action string) bool {
	if action == "" {
		return false
	}
	_, ok := g.actions[strings.ToLower(action)]
	return ok
}

// HasValidProof reports whether the session holds a live proof for the action,
// created by the same principal. Expired proofs behave as absent; a store
// failure counts as no proof.
func (g *Gate) HasValidProof(ctx context.Context, principalID, sessionID, action string) bool {
	proof, err := g.store.Get(ctx, sessionID, strings.ToLower(action))
	if err != nil {
		if !errors.Is(err, ErrProofNotFound) {
			slog.ErrorContext(ctx, "step-up proof lookup failed, treating as absent",
				logger.Error(err),
				logger.SessionID(sessionID),
				logger.Action(action),
			)
		}
		return false
	}
	if proof.PrincipalID != principalID {
		return false
	}
	return g.now().Before(proof.ExpiresAt)
}

// ProofValidity returns how long the session's proof for the action remains
// valid, or false when no live proof exists.
func (g *Gate) ProofValidity(ctx context.Context, principalID, sessionID, action string) (time.Duration, bool) {
	proof, err := g.store.Get(ctx, sessionID, strings.ToLower(action))
	if err != nil || proof.PrincipalID != principalID {
		return 0, false
	}
	remaining := proof.ExpiresAt.Sub(g.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// RecordProof stores a fresh proof for (session, action) with an absolute
// expiry of now + validity, overwriting any prior proof. The StepUpCompleted
// audit write is part of the operation; if it fails the proof is withdrawn.
func (g *Gate) RecordProof(ctx context.Context, principalID, sessionID, action, method string) (*Proof, error) {
	now := g.now()
	proof := &Proof{
		PrincipalID: principalID,
		SessionID:   sessionID,
		Action:      strings.ToLower(action),
		Method:      method,
		IssuedAt:    now,
		ExpiresAt:   now.Add(g.validity),
	}
	if err := g.store.Put(ctx, proof); err != nil {
		return nil, fmt.Errorf("failed to record step-up proof: %w", err)
	}

	err := g.sink.Record(ctx, audit.Event{
		Kind:    audit.KindStepUpCompleted,
		ActorID: principalID,
		Metadata: map[string]any{
			audit.AttrAction: proof.Action,
			audit.AttrMethod: method,
		},
	})
	if err != nil {
		if delErr := g.store.Delete(ctx, sessionID, proof.Action); delErr != nil {
			slog.ErrorContext(ctx, "failed to withdraw proof after audit failure",
				logger.Error(delErr),
				logger.SessionID(sessionID),
			)
		}
		return nil, fmt.Errorf("audit write failed, proof withdrawn: %w", err)
	}
	return proof, nil
}

// InvalidateSession removes every action-scoped proof for the session, used on
// logout or session revocation. Idempotent.
func (g *Gate) InvalidateSession(ctx context.Context, sessionID string) error {
	for action := range g.actions {
		if err := g.store.Delete(ctx, sessionID, action); err != nil {
			return fmt.Errorf("failed to invalidate step-up proofs: %w", err)
		}
	}
	return nil
}
