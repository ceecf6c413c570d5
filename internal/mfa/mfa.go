package mfa

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrSecretNotFound = errors.New("no TOTP secret enrolled for principal")
)

// Lockout is the per-principal failure state. FailureCount resets to zero on
// any successful verification; once it reaches the threshold, LockedUntil is
// set and verification attempts are rejected without consulting the code.
type Lockout struct {
	PrincipalID  string
	FailureCount int
	LockedUntil  *time.Time
}

// Active reports whether the principal is currently locked out.
func (l *Lockout) Active(now time.Time) bool {
	return l.LockedUntil != nil && l.LockedUntil.After(now)
}

// SecretStore exposes per-principal TOTP seeds. Read-only to this engine;
// enrollment writes happen elsewhere.
type SecretStore interface {
	// HasTotpSecret reports whether the principal has an enrolled secret.
	HasTotpSecret(ctx context.Context, principalID string) (bool, error)

	// TotpSecret returns the principal's base32 TOTP seed, or
	// ErrSecretNotFound.
	TotpSecret(ctx context.Context, principalID string) (string, error)
}

// LockoutStore persists lockout state in a shared TTL cache.
type LockoutStore interface {
	// Get returns the principal's lockout state. A principal with no recorded
	// failures yields a zero-count state, not an error.
	Get(ctx context.Context, principalID string) (*Lockout, error)

	// RecordFailure increments the failure counter and returns the new count.
	// The counter expires after the window.
	RecordFailure(ctx context.Context, principalID string, window time.Duration) (int, error)

	// Lock marks the principal locked until the given absolute time.
	Lock(ctx context.Context, principalID string, until time.Time) error

	// Reset clears failures and any lock.
	Reset(ctx context.Context, principalID string) error
}
