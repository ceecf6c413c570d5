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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event kinds
const (
	KindRoleAssigned               = "role_assigned"
	KindRoleChanged                = "role_changed"
	KindRoleRemoved                = "role_removed"
	KindPrivilegeEscalationBlocked = "privilege_escalation_blocked"
	KindStepUpCompleted            = "stepup_completed"
	KindMfaVerified                = "mfa_verified"
	KindMfaFailed                  = "mfa_failed"
)

// Metadata keys
const (
	AttrReason       = "reason"
	AttrAttempts     = "attempts"
	AttrMethod       = "method"
	AttrAction       = "action"
	AttrPreviousRole = "previous_role"
	AttrApprovedBy   = "approved_by"
	AttrAssignerRole = "assigner_role"
)

// Event is an authorization-relevant occurrence: a grant, a blocked escalation,
// a step-up completion, an MFA outcome.
type Event struct {
	Kind      string         `json:"kind"`
	TenantID  string         `json:"tenant_id"`
	ActorID   string         `json:"actor_id"`
	TargetID  string         `json:"target_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
}

// Sink records audit events. For privilege-affecting events the write is part
// of the operation's contract: callers must fail the operation when Record
// returns an error. An unaudited privilege grant is a security gap.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Log reads back durably stored events.
type Log interface {
	// ListByTarget returns the most recent events for a target principal in a
	// tenant, newest first.
	ListByTarget(ctx context.Context, tenantID, targetID string, limit int) ([]*Event, error)
}

// SlogSink implements Sink on the process logger. It never fails; durable
// delivery comes from pairing it with a persistent sink via Tee.
type SlogSink struct{}

// NewSlogSink creates a new slog-backed sink.
func NewSlogSink() *SlogSink {
	return &SlogSink{}
}

// Record logs the event at INFO with the "audit" component.
func (s *SlogSink) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_kind", event.Kind),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.TargetID != "" {
		attrs = append(attrs, slog.String("target_id", event.TargetID))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
	return nil
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "code", "hash", "credential", "authorization"}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// MultiSink fans an event out to several sinks. Delivery stops at the first
// failure, so a durable sink placed after SlogSink can leave a log line behind
// for a failed durable write, but a durable write never happens unlogged.
type MultiSink struct {
	sinks []Sink
}

// Tee combines sinks into one.
func Tee(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record delivers the event to every sink in order.
func (m *MultiSink) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, s := range m.sinks {
		if err := s.Record(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
