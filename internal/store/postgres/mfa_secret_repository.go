package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opengrc/opengrc/internal/mfa"
)

// MfaSecretRepository implements mfa.SecretStore
type MfaSecretRepository struct {
	db *DB
}

// NewMfaSecretRepository creates a new MFA secret repository
func NewMfaSecretRepository(db *DB) *MfaSecretRepository {
	return &MfaSecretRepository{db: db}
}

// HasTotpSecret reports whether a TOTP secret is enrolled for the principal
func (r *MfaSecretRepository) HasTotpSecret(ctx context.Context, principalID string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM mfa_secrets WHERE principal_id = $1)
	`, principalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check mfa secret: %w", err)
	}
	return exists, nil
}

// TotpSecret retrieves the principal's enrolled TOTP secret
func (r *MfaSecretRepository) TotpSecret(ctx context.Context, principalID string) (string, error) {
	var secret string
	err := r.db.pool.QueryRow(ctx, `
		SELECT secret FROM mfa_secrets WHERE principal_id = $1
	`, principalID).Scan(&secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", mfa.ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to get mfa secret: %w", err)
	}
	return secret, nil
}

// SaveTotpSecret stores or replaces the principal's TOTP secret
func (r *MfaSecretRepository) SaveTotpSecret(ctx context.Context, principalID, secret string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO mfa_secrets (principal_id, secret, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (principal_id) DO UPDATE SET secret = EXCLUDED.secret, created_at = EXCLUDED.created_at
	`, principalID, secret, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save mfa secret: %w", err)
	}
	return nil
}
