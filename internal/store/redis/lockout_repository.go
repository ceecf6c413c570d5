package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opengrc/opengrc/internal/mfa"
)

const (
	mfaFailuresKeyPrefix = "mfa:failures:"
	mfaLockoutKeyPrefix  = "mfa:lockout:"
)

// LockoutRepository implements mfa.LockoutStore on Redis. The failure counter
// and the lock marker are independent TTL keys; both expire on their own, so
// a crashed reset never leaves a principal locked forever.
type LockoutRepository struct {
	client *redis.Client
}

// NewLockoutRepository creates a new lockout repository.
func NewLockoutRepository(client *redis.Client) *LockoutRepository {
	return &LockoutRepository{client: client}
}

// Get returns the principal's lockout state. Absent keys yield a zero state.
func (r *LockoutRepository) Get(ctx context.Context, principalID string) (*mfa.Lockout, error) {
	state := &mfa.Lockout{PrincipalID: principalID}

	count, err := r.client.Get(ctx, mfaFailuresKeyPrefix+principalID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get failure count: %w", err)
	}
	state.FailureCount = count

	raw, err := r.client.Get(ctx, mfaLockoutKeyPrefix+principalID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return nil, fmt.Errorf("failed to get lockout marker: %w", err)
	}

	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode lockout marker: %w", err)
	}
	state.LockedUntil = &until
	return state, nil
}

// RecordFailure increments the failure counter, starting the expiry window on
// the first failure.
func (r *LockoutRepository) RecordFailure(ctx context.Context, principalID string, window time.Duration) (int, error) {
	key := mfaFailuresKeyPrefix + principalID

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment failure count: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set failure window: %w", err)
		}
	}
	return int(count), nil
}

// Lock marks the principal locked until the given absolute time. The marker's
// TTL is derived from that absolute time at write time.
func (r *LockoutRepository) Lock(ctx context.Context, principalID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	key := mfaLockoutKeyPrefix + principalID
	if err := r.client.Set(ctx, key, until.Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set lockout marker: %w", err)
	}
	return nil
}

// Reset clears the failure counter and any lock marker.
func (r *LockoutRepository) Reset(ctx context.Context, principalID string) error {
	err := r.client.Del(ctx, mfaFailuresKeyPrefix+principalID, mfaLockoutKeyPrefix+principalID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to reset lockout state: %w", err)
	}
	return nil
}
