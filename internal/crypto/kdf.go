// Package crypto holds the key derivation and symmetric cipher primitives
// used to protect secret content at rest.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"unicode"

	"golang.org/x/crypto/pbkdf2"

	"claim.box/internal/models"
)

const (
	idLength = 12

	// PBKDF2 parameters. Iterations is deliberately slow; both the
	// verifier and the cipher key pay the same cost.
	Iterations = 150000
	saltLength = 16
	keyLength  = 32

	// DigestName tags stored verifiers so the parameters can change later
	// without breaking existing records.
	DigestName = "sha256"
)

// GenerateID returns a URL-safe random identifier for a new secret. The id
// doubles as the unguessable share link, so it comes from crypto/rand.
func GenerateID() string {
	bytes := make([]byte, idLength)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveVerifier produces the stored password check material. The salt is
// generated here and is independent of the cipher salt, so the verifier
// hash can never stand in for the decryption key.
func DeriveVerifier(password string) (models.Verifier, error) {
	salt, err := NewSalt()
	if err != nil {
		return models.Verifier{}, err
	}
	hash := pbkdf2.Key([]byte(password), salt, Iterations, keyLength, sha256.New)
	return models.Verifier{
		Hash:       hash,
		Salt:       salt,
		Iterations: Iterations,
		Digest:     DigestName,
	}, nil
}

// Verify recomputes the hash for a submitted password against a stored
// verifier and compares in constant time. Malformed verifiers (missing
// salt, zero iterations, unknown digest) report false rather than erroring.
func Verify(password string, v models.Verifier) bool {
	if len(v.Hash) == 0 || len(v.Salt) == 0 || v.Iterations <= 0 {
		return false
	}
	if v.Digest != DigestName {
		return false
	}
	computed := pbkdf2.Key([]byte(password), v.Salt, v.Iterations, len(v.Hash), sha256.New)
	return hmac.Equal(computed, v.Hash)
}

// DeriveCipherKey derives the AES-256 content key from the password and the
// per-secret cipher salt stored in the payload.
func DeriveCipherKey(password string, cipherSalt []byte) []byte {
	return pbkdf2.Key([]byte(password), cipherSalt, Iterations, keyLength, sha256.New)
}

// Strength is an advisory categorization of a password. It never gates
// creation beyond the minimum length enforced by the claim engine.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthStrong Strength = "strong"
)

// AssessStrength buckets a password by length and character variety.
func AssessStrength(password string) Strength {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}

	switch {
	case len(password) >= 12 && classes >= 3:
		return StrengthStrong
	case len(password) >= 10 && classes >= 2:
		return StrengthFair
	default:
		return StrengthWeak
	}
}
