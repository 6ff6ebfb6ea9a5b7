// Package store provides the persistence backends for secret records. The
// store is the single point of serialization: Claim is the only mutating
// operation and every backend implements it as one atomic conditional
// update, never as a separate read-then-write.
package store

import (
	"context"
	"errors"
	"time"

	"claim.box/internal/models"
)

var (
	ErrNotFound     = errors.New("secret not found")
	ErrExpired      = errors.New("secret has expired")
	ErrQuotaReached = errors.New("secret claim quota reached")
)

// ClaimResult reports the record counters immediately after a claim
// transaction applied.
type ClaimResult struct {
	ClaimsUsed int
	Solved     bool
}

// Store is the backing-store contract required by the claim engine.
type Store interface {
	// Save persists a newly created record.
	Save(ctx context.Context, secret *models.Secret) error

	// Get returns the raw record, or ErrNotFound. It performs no policy
	// evaluation; callers gate on models.Evaluate.
	Get(ctx context.Context, id string) (*models.Secret, error)

	// Claim atomically increments the claim counter iff the record is
	// still ACTIVE at transaction time, setting solved when the increment
	// exhausts the quota. A failed predicate yields ErrNotFound,
	// ErrExpired, or ErrQuotaReached; any of those means the counter did
	// not move.
	Claim(ctx context.Context, id string, now time.Time) (ClaimResult, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}

// claimed computes the post-increment counters for a record that passed
// the ACTIVE predicate. Shared by the backends so they agree on when a
// record flips to solved.
func claimed(secret *models.Secret) ClaimResult {
	secret.ClaimsUsed++
	switch {
	case secret.OneTime,
		secret.Policy == models.ExpiryAfterFirstView,
		secret.MaxClaims > 0 && secret.ClaimsUsed >= secret.MaxClaims:
		secret.Solved = true
	}
	return ClaimResult{ClaimsUsed: secret.ClaimsUsed, Solved: secret.Solved}
}

// evaluateErr maps a non-ACTIVE evaluation to the store error a claim
// attempt should observe.
func evaluateErr(secret *models.Secret, now time.Time) error {
	switch models.Evaluate(secret, now) {
	case models.StateGone:
		return ErrNotFound
	case models.StateExpired:
		return ErrExpired
	case models.StateQuotaReached:
		return ErrQuotaReached
	default:
		return nil
	}
}
