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
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Enrollment is the material handed to a principal setting up an
// authenticator app.
type Enrollment struct {
	// Secret is the base32-encoded TOTP seed.
	Secret string

	// URL is the otpauth:// provisioning URI consumed by authenticator apps.
	URL string
}

// GenerateEnrollment creates a fresh 160-bit TOTP seed and its provisioning
// URI for the given account.
func GenerateEnrollment(issuer, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      uint(totpPeriod / time.Second),
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP enrollment: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// SecretWriter persists TOTP secrets.
type SecretWriter interface {
	SaveTotpSecret(ctx context.Context, principalID, secret string) error
}

// Enroller provisions TOTP secrets for principals.
type Enroller struct {
	secrets SecretWriter
	issuer  string
}

// NewEnroller creates a TOTP enroller.
func NewEnroller(secrets SecretWriter, issuer string) *Enroller {
	return &Enroller{secrets: secrets, issuer: issuer}
}

// Enroll generates a fresh secret for the principal and stores it.
// Re-enrolling replaces any existing secret.
func (e *Enroller) Enroll(ctx context.Context, principalID string) (*Enrollment, error) {
	enrollment, err := GenerateEnrollment(e.issuer, principalID)
	if err != nil {
		return nil, err
	}
	if err := e.secrets.SaveTotpSecret(ctx, principalID, enrollment.Secret); err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}
	return enrollment, nil
}
