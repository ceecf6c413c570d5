package stepup

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrProofNotFound = errors.New("step-up proof not found")
)

// Method names for the stronger factor that produced a proof.
const (
	MethodTOTP = "totp"
)

// Proof records that a principal re-verified identity with a stronger factor
// for one action within one session. Proofs are ephemeral cache entries keyed
// by (session, action); an expired proof behaves exactly like an absent one.
type Proof struct {
	PrincipalID string    `json:"principal_id"`
	SessionID   string    `json:"session_id"`
	Action      string    `json:"action"`
	Method      string    `json:"method"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ProofStore persists proofs in a shared TTL cache. Implementations must use
// the proof's absolute ExpiresAt when computing the entry TTL, so clock skew
// across replicas cannot extend a proof's life.
type ProofStore interface {
	// Get returns the proof for (session, action), or ErrProofNotFound.
	Get(ctx context.Context, sessionID, action string) (*Proof, error)

	// Put writes or overwrites the proof for (proof.SessionID, proof.Action).
	Put(ctx context.Context, proof *Proof) error

	// Delete removes the proof for (session, action). Deleting an absent
	// entry is not an error.
	Delete(ctx context.Context, sessionID, action string) error
}
