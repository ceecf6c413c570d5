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

package mfa

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/opengrc/opengrc/internal/audit"
)

const (
	// totpPeriod is the standard TOTP step size.
	totpPeriod = 30 * time.Second

	// DefaultThreshold is how many consecutive failures trigger a lockout.
	DefaultThreshold = 5

	// DefaultLockoutDuration is how long a lockout lasts. The failure counter
	// shares the window, so stale failures age out on their own.
	DefaultLockoutDuration = 15 * time.Minute
)

// Status is the outcome class of a verification attempt.
type Status string

const (
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
	StatusLockedOut Status = "locked_out"
)

// Result is the outcome of VerifyCode.
type Result struct {
	Status Status

	// AttemptsRemaining is set on StatusFailed.
	AttemptsRemaining int

	// LockedUntil is set on StatusLockedOut.
	LockedUntil time.Time
}

// Verifier checks TOTP codes with clock-skew tolerance and drives the
// per-principal lockout state machine: Active -> (threshold failures) ->
// Locked -> (lockedUntil elapses) -> Active.
type Verifier struct {
	secrets   SecretStore
	lockouts  LockoutStore
	sink      audit.Sink
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// NewVerifier creates an MFA verifier. Non-positive threshold or lockout
// duration fall back to the defaults.
func NewVerifier(secrets SecretStore, lockouts LockoutStore, sink audit.Sink, threshold int, lockout time.Duration) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}
	return &Verifier{
		secrets:   secrets,
		lockouts:  lockouts,
		sink:      sink,
		threshold: threshold,
		lockout:   lockout,
		now:       time.Now,
	}
}

// VerifyCode checks a submitted TOTP code for the principal. The code is
// accepted if it matches the current 30-second step or either adjacent step.
// A locked-out principal is rejected without evaluating the code.
func (v *Verifier) VerifyCode(ctx context.Context, principalID, code string) (*Result, error) {
	now := v.now()

	state, err := v.lockouts.Get(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lockout state: %w", err)
	}
	if state.Active(now) {
		if err := v.auditFailure(ctx, principalID, "locked_out", state.FailureCount); err != nil {
			return nil, err
		}
		return &Result{Status: StatusLockedOut, LockedUntil: *state.LockedUntil}, nil
	}

	secret, err := v.secrets.TotpSecret(ctx, principalID)
	if err != nil {
		return nil, err
	}

	match, err := matchesWindow(secret, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate TOTP code: %w", err)
	}

	if match {
		if err := v.lockouts.Reset(ctx, principalID); err != nil {
			return nil, fmt.Errorf("failed to reset lockout state: %w", err)
		}
		err := v.sink.Record(ctx, audit.Event{
			Kind:     audit.KindMfaVerified,
			ActorID:  principalID,
			Metadata: map[string]any{audit.AttrMethod: "totp"},
		})
		if err != nil {
			return nil, fmt.Errorf("audit write failed: %w", err)
		}
		return &Result{Status: StatusVerified}, nil
	}

	failures, err := v.lockouts.RecordFailure(ctx, principalID, v.lockout)
	if err != nil {
		return nil, fmt.Errorf("failed to record verification failure: %w", err)
	}

	if failures >= v.threshold {
		until := now.Add(v.lockout)
		if err := v.lockouts.Lock(ctx, principalID, until); err != nil {
			return nil, fmt.Errorf("failed to apply lockout: %w", err)
		}
		if err := v.auditFailure(ctx, principalID, "threshold_reached", failures); err != nil {
			return nil, err
		}
		return &Result{Status: StatusLockedOut, LockedUntil: until}, nil
	}

	if err := v.auditFailure(ctx, principalID, "invalid_code", failures); err != nil {
		return nil, err
	}
	return &Result{Status: StatusFailed, AttemptsRemaining: v.threshold - failures}, nil
}

func (v *Verifier) auditFailure(ctx context.Context, principalID, reason string, attempts int) error {
	err := v.sink.Record(ctx, audit.Event{
		Kind:    audit.KindMfaFailed,
		ActorID: principalID,
		Metadata: map[string]any{
			audit.AttrMethod:   "totp",
			audit.AttrReason:   reason,
			audit.AttrAttempts: attempts,
		},
	})
	if err != nil {
		return fmt.Errorf("audit write failed: %w", err)
	}
	return nil
}

// matchesWindow compares the submitted code against the candidates for the
// current step and the adjacent steps. Every candidate is compared in constant
// time, with no early exit, to avoid a timing side channel.
func matchesWindow(secret, code string, now time.Time) (bool, error) {
	opts := totp.ValidateOpts{
		Period:    uint(totpPeriod / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	match := 0
	for _, offset := range []time.Duration{-totpPeriod, 0, totpPeriod} {
		candidate, err := totp.GenerateCodeCustom(secret, now.Add(offset), opts)
		if err != nil {
			return false, err
		}
		match |= subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
	}
	return match == 1, nil
}
