// Package claim implements the secret claim engine: creation, metadata
// reads, and the claim transaction that decides whether content may be
// revealed and when a secret must be destroyed.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"

	"claim.box/internal/crypto"
	"claim.box/internal/models"
	"claim.box/internal/store"
)

// Engine orchestrates password verification, decryption, and the atomic
// claim transaction. It holds no locks and caches nothing between calls;
// the backing store is the sole point of serialization.
type Engine struct {
	store    store.Store
	validate *validator.Validate
	logTags  log.Fields
	// now is swappable for tests.
	now func() time.Time
}

// NewEngine wires the engine to a backing store.
func NewEngine(s store.Store) *Engine {
	return &Engine{
		store:    s,
		validate: validator.New(),
		logTags:  log.Fields{"module": "claim", "component": "engine"},
		now:      time.Now,
	}
}

// CreateParams are the creation inputs. Struct tags cover the per-field
// shape; the cross-field rules (one-time quota, password presence) live in
// Create because they span fields.
type CreateParams struct {
	Content    string            `validate:"required"`
	Protection models.Protection `validate:"required,oneof=none password"`
	Password   string
	// MaxClaims caps successful claims; 0 means unlimited.
	MaxClaims int `validate:"gte=0"`
	OneTime   bool
	Policy    models.ExpiryPolicy `validate:"required,oneof=none after_duration after_first_view"`
	// ExpiresAt is required for the after_duration policy and ignored
	// otherwise.
	ExpiresAt time.Time
}

// MinPasswordLength is the only security-load-bearing password rule;
// strength assessment beyond it is advisory.
const MinPasswordLength = 8

// CreatedSecret is what creation hands back. It never carries payload or
// verifier material.
type CreatedSecret struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	// PasswordStrength is set only for password-protected secrets.
	PasswordStrength crypto.Strength
}

// Create validates the parameters, derives the verifier and cipher key for
// protected secrets, encrypts, and persists the record. Invalid
// combinations are rejected with ErrValidation, never silently coerced.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*CreatedSecret, error) {
	if err := e.validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if params.OneTime && params.MaxClaims != 1 {
		return nil, fmt.Errorf("%w: one-time secrets must have exactly one claim", ErrValidation)
	}
	if params.Policy == models.ExpiryAfterDuration && params.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: after_duration policy requires an expiry instant", ErrValidation)
	}

	secret := &models.Secret{
		ID:         crypto.GenerateID(),
		Protection: params.Protection,
		MaxClaims:  params.MaxClaims,
		OneTime:    params.OneTime,
		Policy:     params.Policy,
		CreatedAt:  e.now(),
	}
	if params.Policy == models.ExpiryAfterDuration {
		secret.ExpiresAt = params.ExpiresAt
	}

	created := &CreatedSecret{
		ID:        secret.ID,
		CreatedAt: secret.CreatedAt,
		ExpiresAt: secret.ExpiresAt,
	}

	switch params.Protection {
	case models.ProtectionNone:
		if params.Password != "" {
			return nil, fmt.Errorf("%w: password supplied for an unprotected secret", ErrValidation)
		}
		secret.Plaintext = params.Content

	case models.ProtectionPassword:
		if len(params.Password) < MinPasswordLength {
			return nil, fmt.Errorf(
				"%w: password must be at least %d characters", ErrValidation, MinPasswordLength,
			)
		}
		created.PasswordStrength = crypto.AssessStrength(params.Password)

		verifier, err := crypto.DeriveVerifier(params.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to derive password verifier [%w]", err)
		}

		// Independent salt for the content key; the verifier hash alone
		// never yields the key.
		cipherSalt, err := crypto.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("failed to generate cipher salt [%w]", err)
		}
		key := crypto.DeriveCipherKey(params.Password, cipherSalt)

		ciphertext, iv, err := crypto.Encrypt([]byte(params.Content), key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt content [%w]", err)
		}

		secret.Verifier = verifier
		secret.CipherSalt = cipherSalt
		secret.Ciphertext = ciphertext
		secret.IV = iv
		secret.Algorithm = crypto.AlgorithmAESGCM
	}

	if err := e.store.Save(ctx, secret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	log.WithFields(e.logTags).WithFields(log.Fields{
		"id":     secret.ID,
		"policy": secret.Policy,
	}).Info("secret created")

	return created, nil
}

// Metadata describes a secret without exposing content or password
// material. It is deliberately more revealing than Claim: the UI uses it
// as a pre-check, while Claim is the security boundary.
type Metadata struct {
	Exists             bool
	State              models.State
	ProtectionRequired bool
	// ClaimsRemaining is -1 for unlimited secrets.
	ClaimsRemaining int
	OneTime         bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Metadata reports the current state of a secret. An absent record is not
// an error; it comes back as Exists=false, State=GONE.
func (e *Engine) Metadata(ctx context.Context, id string) (Metadata, error) {
	secret, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Metadata{Exists: false, State: models.StateGone}, nil
		}
		return Metadata{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return Metadata{
		Exists:             true,
		State:              models.Evaluate(secret, e.now()),
		ProtectionRequired: secret.PasswordProtected(),
		ClaimsRemaining:    secret.ClaimsRemaining(),
		OneTime:            secret.OneTime,
		CreatedAt:          secret.CreatedAt,
		ExpiresAt:          secret.ExpiresAt,
	}, nil
}

// Reveal is the result of a successful claim.
type Reveal struct {
	Content    string
	ClaimsUsed int
	Solved     bool
}

// Claim attempts to reveal a secret. The load, evaluation, password check,
// and decryption are side-effect free and run unserialized; only the
// store's conditional increment decides who wins a race. Content is
// returned solely when that increment applied — a claimant who loses the
// race gets ErrQuotaReached and the already-decrypted content is dropped.
func (e *Engine) Claim(ctx context.Context, id string, password string) (*Reveal, error) {
	now := e.now()

	secret, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	switch models.Evaluate(secret, now) {
	case models.StateExpired:
		return nil, ErrExpired
	case models.StateQuotaReached:
		return nil, ErrQuotaReached
	case models.StateGone:
		return nil, ErrNotFound
	}

	var content string
	if secret.PasswordProtected() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if !crypto.Verify(password, secret.Verifier) {
			return nil, ErrInvalidPassword
		}

		key := crypto.DeriveCipherKey(password, secret.CipherSalt)
		plaintext, err := crypto.Decrypt(secret.Ciphertext, secret.IV, key)
		if err != nil {
			// A matched verifier with failing decryption means corrupted
			// data, but reporting that separately would tell an attacker
			// the hash matched.
			return nil, ErrInvalidPassword
		}
		content = string(plaintext)
	} else {
		content = secret.Plaintext
	}

	result, err := e.store.Claim(ctx, id, now)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, store.ErrExpired):
			return nil, ErrExpired
		case errors.Is(err, store.ErrQuotaReached):
			return nil, ErrQuotaReached
		default:
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	if secret.OneTime || secret.Policy == models.ExpiryAfterFirstView {
		// The winner already holds the content; a failed delete must not
		// take it back. The record is solved regardless, so it can no
		// longer be claimed, only observed.
		if err := e.store.Delete(ctx, id); err != nil {
			log.WithFields(e.logTags).WithField("id", id).WithError(err).
				Error("failed to burn claimed secret")
		}
	}

	log.WithFields(e.logTags).WithFields(log.Fields{
		"id":          id,
		"claims_used": result.ClaimsUsed,
		"solved":      result.Solved,
	}).Info("secret claimed")

	return &Reveal{
		Content:    content,
		ClaimsUsed: result.ClaimsUsed,
		Solved:     result.Solved,
	}, nil
}
