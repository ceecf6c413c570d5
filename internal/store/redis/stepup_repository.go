package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opengrc/opengrc/internal/stepup"
)

const stepUpKeyPrefix = "stepup:"

// StepUpRepository implements stepup.ProofStore on Redis. Entries carry an
// absolute expiration computed from the proof's ExpiresAt at write time.
type StepUpRepository struct {
	client *redis.Client
}

// NewStepUpRepository creates a new step-up proof repository.
func NewStepUpRepository(client *redis.Client) *StepUpRepository {
	return &StepUpRepository{client: client}
}

// Get retrieves the proof for (session, action).
func (r *StepUpRepository) Get(ctx context.Context, sessionID, action string) (*stepup.Proof, error) {
	payload, err := r.client.Get(ctx, stepUpKey(sessionID, action)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, stepup.ErrProofNotFound
		}
		return nil, fmt.Errorf("failed to get step-up proof: %w", err)
	}

	var proof stepup.Proof
	if err := json.Unmarshal(payload, &proof); err != nil {
		return nil, fmt.Errorf("failed to decode step-up proof: %w", err)
	}
	return &proof, nil
}

// Put writes the proof with a TTL derived from its absolute expiry.
func (r *StepUpRepository) Put(ctx context.Context, proof *stepup.Proof) error {
	ttl := time.Until(proof.ExpiresAt)
	if ttl <= 0 {
		// Already expired; storing it would resurrect a dead proof.
		return nil
	}

	payload, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("failed to encode step-up proof: %w", err)
	}

	if err := r.client.Set(ctx, stepUpKey(proof.SessionID, proof.Action), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store step-up proof: %w", err)
	}
	return nil
}

// Delete removes the proof for (session, action).
func (r *StepUpRepository) Delete(ctx context.Context, sessionID, action string) error {
	if err := r.client.Del(ctx, stepUpKey(sessionID, action)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete step-up proof: %w", err)
	}
	return nil
}

func stepUpKey(sessionID, action string) string {
	return stepUpKeyPrefix + sessionID + ":" + action
}
