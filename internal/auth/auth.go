// Package auth checks the shared admin secret that guards clear requests.
package auth

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"golang.org/x/sync/semaphore"
)

// MaxConcurrentChecks bounds how many argon2id comparisons run at once. Each
// one allocates Params.Memory, so extra callers wait for a slot.
const MaxConcurrentChecks = 2

// AdminSecret verifies candidate secrets against a hash of the configured
// one, so the plaintext is not kept in memory after startup.
type AdminSecret struct {
	hash  string
	slots *semaphore.Weighted
}

// NewAdminSecret hashes secret with params, or argon2id.DefaultParams when
// params is nil. An empty secret yields a verifier that rejects everything.
func NewAdminSecret(secret string, params *argon2id.Params) (*AdminSecret, error) {
	if secret == "" {
		return &AdminSecret{}, nil
	}

	if params == nil {
		params = argon2id.DefaultParams
	}

	hash, err := HashSecret(secret, params)
	if err != nil {
		return nil, err
	}

	return &AdminSecret{hash: hash, slots: semaphore.NewWeighted(MaxConcurrentChecks)}, nil
}

// Check reports whether candidate is exactly the configured secret.
func (a *AdminSecret) Check(candidate string) bool {
	if a == nil || a.hash == "" || candidate == "" {
		return false
	}

	if err := a.slots.Acquire(context.Background(), 1); err != nil {
		return false
	}
	defer a.slots.Release(1)

	ok, err := CheckSecretHash(candidate, a.hash)
	return err == nil && ok
}

func HashSecret(secret string, params *argon2id.Params) (string, error) {
	hash, err := argon2id.CreateHash(secret, params)
	if err != nil {
		return "", fmt.Errorf("internal/auth: secret hash failed: %w", err)
	}

	return hash, nil
}

func CheckSecretHash(secret, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(secret, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: secret and hash comparison failed: %w", err)
	}

	return isMatch, nil
}
