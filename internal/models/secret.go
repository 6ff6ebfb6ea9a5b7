// Package models defines the secret record and its lifecycle states.
package models

import "time"

// Protection tags how a secret's payload is stored.
type Protection string

const (
	// ProtectionNone stores the content as plaintext; anyone holding the
	// link can claim it.
	ProtectionNone Protection = "none"
	// ProtectionPassword stores the content encrypted under a key derived
	// from a creator-chosen password.
	ProtectionPassword Protection = "password"
)

// ExpiryPolicy controls when a secret self-destructs.
type ExpiryPolicy string

const (
	// ExpiryNone keeps the secret until its claim quota runs out.
	ExpiryNone ExpiryPolicy = "none"
	// ExpiryAfterDuration expires the secret at a fixed instant (ExpiresAt).
	ExpiryAfterDuration ExpiryPolicy = "after_duration"
	// ExpiryAfterFirstView deletes the secret outright on its first
	// successful claim.
	ExpiryAfterFirstView ExpiryPolicy = "after_first_view"
)

// State is the lifecycle state a record is in at a point in time.
type State string

const (
	StateActive       State = "ACTIVE"
	StateExpired      State = "EXPIRED"
	StateQuotaReached State = "QUOTA_REACHED"
	StateGone         State = "GONE"
)

// Verifier is the stored material used to check a submitted password.
// It is never used to derive the decryption key; that uses a separate
// salt kept in the payload.
type Verifier struct {
	Hash       []byte `json:"-" gorm:"column:verifier_hash"`
	Salt       []byte `json:"-" gorm:"column:verifier_salt"`
	Iterations int    `json:"-" gorm:"column:verifier_iterations"`
	Digest     string `json:"-" gorm:"column:verifier_digest"`
}

// Secret is the persisted record of one created secret.
//
// The payload is a tagged variant on Protection: Plaintext is set iff
// Protection is none, the Ciphertext/IV/CipherSalt/Algorithm group and the
// Verifier are set iff Protection is password. Secret material is
// write-once; only ClaimsUsed and Solved mutate after creation, and only
// through the store's atomic claim transaction.
type Secret struct {
	ID         string     `json:"id" gorm:"column:id;primaryKey"`
	Protection Protection `json:"protection" gorm:"column:protection;not null"`

	// Payload, ProtectionNone variant.
	Plaintext string `json:"-" gorm:"column:plaintext"`

	// Payload, ProtectionPassword variant.
	Ciphertext []byte   `json:"-" gorm:"column:ciphertext"`
	IV         []byte   `json:"-" gorm:"column:iv"`
	CipherSalt []byte   `json:"-" gorm:"column:cipher_salt"`
	Algorithm  string   `json:"-" gorm:"column:algorithm"`
	Verifier   Verifier `json:"-" gorm:"embedded"`

	// MaxClaims caps successful claims; 0 means unlimited.
	MaxClaims  int  `json:"max_claims" gorm:"column:max_claims;not null"`
	ClaimsUsed int  `json:"claims_used" gorm:"column:claims_used;not null"`
	OneTime    bool `json:"one_time" gorm:"column:one_time;not null"`

	// Solved is derived from the counters but persisted so the claim
	// predicate and metadata reads stay cheap.
	Solved bool `json:"solved" gorm:"column:solved;not null"`

	Policy ExpiryPolicy `json:"policy" gorm:"column:policy;not null"`
	// ExpiresAt is meaningful only for ExpiryAfterDuration.
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// PasswordProtected reports whether a claim must present a password.
func (s *Secret) PasswordProtected() bool {
	return s.Protection == ProtectionPassword
}

// Exhausted reports whether the claim quota leaves no room for another
// successful claim.
func (s *Secret) Exhausted() bool {
	if s.Solved {
		return true
	}
	if s.OneTime && s.ClaimsUsed >= 1 {
		return true
	}
	return s.MaxClaims > 0 && s.ClaimsUsed >= s.MaxClaims
}

// ClaimsRemaining returns how many successful claims are still possible,
// or -1 when the secret is unlimited.
func (s *Secret) ClaimsRemaining() int {
	if s.MaxClaims == 0 {
		return -1
	}
	left := s.MaxClaims - s.ClaimsUsed
	if left < 0 {
		return 0
	}
	return left
}

// Evaluate maps a record and a point in time to a lifecycle state. It is a
// pure function: the same record and clock always produce the same state.
// A nil record means the store no longer has it.
//
// Terminal states never transition back: once EXPIRED at t1 the record is
// EXPIRED at every later instant unless it is deleted (GONE).
func Evaluate(s *Secret, now time.Time) State {
	if s == nil {
		return StateGone
	}
	if s.Policy == ExpiryAfterDuration && !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	if s.Exhausted() {
		return StateQuotaReached
	}
	return StateActive
}
