package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opengrc/opengrc/internal/audit"
	"github.com/opengrc/opengrc/internal/id"
)

// AuditRepository persists audit events; implements audit.Sink
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record writes an audit event. A returned error means the event was not
// durably stored; callers treat that as a failure of the audited operation.
func (r *AuditRepository) Record(ctx context.Context, event audit.Event) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_events (id, kind, tenant_id, actor_id, target_id, resource, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id.NewUUIDv7(), event.Kind, event.TenantID, event.ActorID, event.TargetID, event.Resource, metadata, event.IPAddress, event.UserAgent, ts)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListByTarget returns the most recent events for a target principal in a
// tenant, newest first.
func (r *AuditRepository) ListByTarget(ctx context.Context, tenantID, targetID string, limit int) ([]*audit.Event, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT kind, tenant_id, actor_id, target_id, resource, metadata, ip_address, user_agent, created_at
		FROM audit_events
		WHERE tenant_id = $1 AND target_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var event audit.Event
		var metadata []byte
		if err := rows.Scan(&event.Kind, &event.TenantID, &event.ActorID, &event.TargetID,
			&event.Resource, &metadata, &event.IPAddress, &event.UserAgent, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
