package claim

import "errors"

// Engine error taxonomy. Every claim-path failure surfaces as exactly one
// of these; cryptographic detail never leaks past this boundary. Wrong
// password and failed decryption share ErrInvalidPassword on purpose, so a
// claimant cannot use the engine as an oracle for which of the two
// happened. ErrStoreUnavailable is the only kind a caller may retry.
var (
	ErrNotFound         = errors.New("secret not found")
	ErrExpired          = errors.New("secret has expired")
	ErrQuotaReached     = errors.New("secret claim quota reached")
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrValidation       = errors.New("invalid secret parameters")
	ErrStoreUnavailable = errors.New("store unavailable")
)
