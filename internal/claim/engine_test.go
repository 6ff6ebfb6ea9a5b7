package claim_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"claim.box/internal/claim"
	"claim.box/internal/models"
	"claim.box/internal/store"
)

func newEngine(t *testing.T) *claim.Engine {
	t.Helper()
	s := store.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = s.Close() })
	return claim.NewEngine(s)
}

// TestOneTimeClaim covers the one-shot flow: the first claim reveals the
// content and burns the record, the second claim finds nothing.
func TestOneTimeClaim(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "meet me at dawn",
		Protection: models.ProtectionNone,
		MaxClaims:  1,
		OneTime:    true,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)
	assert.NotEmpty(created.ID)

	reveal, err := engine.Claim(ctx, created.ID, "")
	assert.Nil(err)
	assert.Equal("meet me at dawn", reveal.Content)
	assert.Equal(1, reveal.ClaimsUsed)
	assert.True(reveal.Solved)

	// The record is gone outright, not merely marked solved
	_, err = engine.Claim(ctx, created.ID, "")
	assert.ErrorIs(err, claim.ErrNotFound)

	meta, err := engine.Metadata(ctx, created.ID)
	assert.Nil(err)
	assert.False(meta.Exists)
	assert.Equal(models.StateGone, meta.State)
}

// TestPasswordProtectedQuota walks a password-protected secret through its
// two-claim quota: wrong password, two winners, then a third claimant who
// finds the quota exhausted.
func TestPasswordProtectedQuota(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "the launch code",
		Protection: models.ProtectionPassword,
		Password:   "Sw0rd!234",
		MaxClaims:  2,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)

	_, err = engine.Claim(ctx, created.ID, "wrong")
	assert.ErrorIs(err, claim.ErrInvalidPassword)

	_, err = engine.Claim(ctx, created.ID, "")
	assert.ErrorIs(err, claim.ErrPasswordRequired)

	reveal, err := engine.Claim(ctx, created.ID, "Sw0rd!234")
	assert.Nil(err)
	assert.Equal("the launch code", reveal.Content)
	assert.Equal(1, reveal.ClaimsUsed)
	assert.False(reveal.Solved)

	reveal, err = engine.Claim(ctx, created.ID, "Sw0rd!234")
	assert.Nil(err)
	assert.Equal(2, reveal.ClaimsUsed)
	assert.True(reveal.Solved)

	// Correct password no longer helps
	_, err = engine.Claim(ctx, created.ID, "Sw0rd!234")
	assert.ErrorIs(err, claim.ErrQuotaReached)
}

// TestExpiredClaim checks that an already-past expiry gates the claim
// before any password handling.
func TestExpiredClaim(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "too late",
		Protection: models.ProtectionPassword,
		Password:   "Sw0rd!234",
		MaxClaims:  1,
		Policy:     models.ExpiryAfterDuration,
		ExpiresAt:  time.Now().Add(-time.Second),
	})
	assert.Nil(err)

	// Expired regardless of password correctness
	_, err = engine.Claim(ctx, created.ID, "Sw0rd!234")
	assert.ErrorIs(err, claim.ErrExpired)

	_, err = engine.Claim(ctx, created.ID, "wrong")
	assert.ErrorIs(err, claim.ErrExpired)
}

// TestConcurrentClaimSingleWinner races five claimants for a single-claim
// secret: exactly one may receive the content.
func TestConcurrentClaimSingleWinner(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "winner takes all",
		Protection: models.ProtectionNone,
		MaxClaims:  1,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)

	const attempts = 5
	var wg sync.WaitGroup
	contents := make(chan string, attempts)
	failures := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reveal, err := engine.Claim(ctx, created.ID, "")
			if err != nil {
				failures <- err
				return
			}
			contents <- reveal.Content
		}()
	}
	wg.Wait()
	close(contents)
	close(failures)

	assert.Len(contents, 1)
	assert.Equal("winner takes all", <-contents)

	for err := range failures {
		assert.True(
			errors.Is(err, claim.ErrQuotaReached) || errors.Is(err, claim.ErrNotFound),
			"unexpected failure: %v", err,
		)
	}
}

func TestBurnAfterFirstView(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "read once",
		Protection: models.ProtectionNone,
		MaxClaims:  5,
		Policy:     models.ExpiryAfterFirstView,
	})
	assert.Nil(err)

	reveal, err := engine.Claim(ctx, created.ID, "")
	assert.Nil(err)
	assert.Equal("read once", reveal.Content)

	// Deleted outright, not retrievable even by id
	meta, err := engine.Metadata(ctx, created.ID)
	assert.Nil(err)
	assert.False(meta.Exists)
}

func TestCreateValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	cases := []claim.CreateParams{
		// Missing content
		{Protection: models.ProtectionNone, MaxClaims: 1, Policy: models.ExpiryNone},
		// One-time with a quota other than one: rejected, never clamped
		{Content: "x", Protection: models.ProtectionNone, MaxClaims: 3, OneTime: true,
			Policy: models.ExpiryNone},
		{Content: "x", Protection: models.ProtectionNone, MaxClaims: 0, OneTime: true,
			Policy: models.ExpiryNone},
		// Password protection without a usable password
		{Content: "x", Protection: models.ProtectionPassword, MaxClaims: 1,
			Policy: models.ExpiryNone},
		{Content: "x", Protection: models.ProtectionPassword, Password: "short",
			MaxClaims: 1, Policy: models.ExpiryNone},
		// Password supplied for an unprotected secret
		{Content: "x", Protection: models.ProtectionNone, Password: "Sw0rd!234",
			MaxClaims: 1, Policy: models.ExpiryNone},
		// Unknown enum values
		{Content: "x", Protection: "pgp", MaxClaims: 1, Policy: models.ExpiryNone},
		{Content: "x", Protection: models.ProtectionNone, MaxClaims: 1, Policy: "sometimes"},
		// Duration policy without an instant
		{Content: "x", Protection: models.ProtectionNone, MaxClaims: 1,
			Policy: models.ExpiryAfterDuration},
		// Negative quota
		{Content: "x", Protection: models.ProtectionNone, MaxClaims: -1,
			Policy: models.ExpiryNone},
	}

	for _, params := range cases {
		_, err := engine.Create(ctx, params)
		assert.ErrorIs(err, claim.ErrValidation, "params: %+v", params)
	}
}

// TestNoLeakageOnFailure checks failure responses never carry the content
// or key material in their error text.
func TestNoLeakageOnFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	const content = "xk3-top-secret-content-9fz"

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    content,
		Protection: models.ProtectionPassword,
		Password:   "Sw0rd!234",
		MaxClaims:  1,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)

	_, err = engine.Claim(ctx, created.ID, "totally-wrong")
	assert.ErrorIs(err, claim.ErrInvalidPassword)
	assert.False(strings.Contains(err.Error(), content))
	assert.False(strings.Contains(err.Error(), "Sw0rd!234"))

	// Same error shape for a wrong password of a different length
	_, err2 := engine.Claim(ctx, created.ID, "w")
	assert.Equal(err, err2)
}

func TestMetadataNeverRevealsContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "hidden",
		Protection: models.ProtectionPassword,
		Password:   "Sw0rd!234",
		MaxClaims:  3,
		Policy:     models.ExpiryAfterDuration,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	assert.Nil(err)

	meta, err := engine.Metadata(ctx, created.ID)
	assert.Nil(err)
	assert.True(meta.Exists)
	assert.Equal(models.StateActive, meta.State)
	assert.True(meta.ProtectionRequired)
	assert.Equal(3, meta.ClaimsRemaining)
	assert.False(meta.OneTime)
	assert.Equal(created.ExpiresAt, meta.ExpiresAt)

	// Metadata is a pure read: it never consumes a claim
	meta, err = engine.Metadata(ctx, created.ID)
	assert.Nil(err)
	assert.Equal(3, meta.ClaimsRemaining)
}

func TestUnlimitedClaims(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "for everyone",
		Protection: models.ProtectionNone,
		MaxClaims:  0,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)

	meta, err := engine.Metadata(ctx, created.ID)
	assert.Nil(err)
	assert.Equal(-1, meta.ClaimsRemaining)

	for i := 1; i <= 7; i++ {
		reveal, err := engine.Claim(ctx, created.ID, "")
		assert.Nil(err)
		assert.Equal(i, reveal.ClaimsUsed)
		assert.False(reveal.Solved)
	}
}

func TestPasswordStrengthAdvisory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := newEngine(t)

	// A weak-but-long-enough password is accepted; strength is advisory
	created, err := engine.Create(ctx, claim.CreateParams{
		Content:    "s",
		Protection: models.ProtectionPassword,
		Password:   "aaaaaaaa",
		MaxClaims:  1,
		Policy:     models.ExpiryNone,
	})
	assert.Nil(err)
	assert.NotEmpty(created.PasswordStrength)

	reveal, err := engine.Claim(ctx, created.ID, "aaaaaaaa")
	assert.Nil(err)
	assert.Equal("s", reveal.Content)
}

// failingStore simulates a backing store outage.
type failingStore struct{}

func (failingStore) Save(context.Context, *models.Secret) error { return errors.New("conn refused") }
func (failingStore) Get(context.Context, string) (*models.Secret, error) {
	return nil, errors.New("conn refused")
}
func (failingStore) Claim(context.Context, string, time.Time) (store.ClaimResult, error) {
	return store.ClaimResult{}, errors.New("conn refused")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("conn refused") }
func (failingStore) Close() error                         { return nil }

func TestStoreUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := claim.NewEngine(failingStore{})

	_, err := engine.Create(ctx, claim.CreateParams{
		Content:    "x",
		Protection: models.ProtectionNone,
		MaxClaims:  1,
		Policy:     models.ExpiryNone,
	})
	assert.ErrorIs(err, claim.ErrStoreUnavailable)

	_, err = engine.Claim(ctx, "some-id", "")
	assert.ErrorIs(err, claim.ErrStoreUnavailable)

	_, err = engine.Metadata(ctx, "some-id")
	assert.ErrorIs(err, claim.ErrStoreUnavailable)
}
