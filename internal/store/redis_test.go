package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"claim.box/internal/models"
	"claim.box/internal/store"
)

func newRedisStore(t *testing.T) *store.RedisStore {
	t.Helper()

	s, err := store.NewRedisStore(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStoreLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := newRedisStore(t)

	secret := newTestSecret(2)
	secret.Policy = models.ExpiryAfterDuration
	secret.ExpiresAt = time.Now().Add(time.Hour)
	assert.Nil(s.Save(ctx, secret))
	defer s.Delete(ctx, secret.ID)

	got, err := s.Get(ctx, secret.ID)
	assert.Nil(err)
	assert.Equal(secret.ID, got.ID)
	assert.Equal("the content", got.Plaintext)

	_, err = s.Get(ctx, "no-such-id")
	assert.ErrorIs(err, store.ErrNotFound)

	res, err := s.Claim(ctx, secret.ID, time.Now())
	assert.Nil(err)
	assert.Equal(1, res.ClaimsUsed)
	assert.False(res.Solved)

	res, err = s.Claim(ctx, secret.ID, time.Now())
	assert.Nil(err)
	assert.Equal(2, res.ClaimsUsed)
	assert.True(res.Solved)

	_, err = s.Claim(ctx, secret.ID, time.Now())
	assert.ErrorIs(err, store.ErrQuotaReached)
}

func TestRedisStoreRejectsPastExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := newRedisStore(t)

	dead := newTestSecret(1)
	dead.Policy = models.ExpiryAfterDuration
	dead.ExpiresAt = time.Now().Add(-time.Hour)
	assert.ErrorIs(s.Save(ctx, dead), store.ErrExpired)
}

// TestRedisStoreAtMostN checks the optimistic claim transaction under
// concurrent claimants: at most maxClaims of them may win.
func TestRedisStoreAtMostN(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := newRedisStore(t)

	const maxClaims = 1
	const attempts = 5

	secret := newTestSecret(maxClaims)
	assert.Nil(s.Save(ctx, secret))
	defer s.Delete(ctx, secret.ID)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Claim(ctx, secret.ID, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}

	// Retried WATCH transactions can give up under contention, so losers
	// may see either quota errors or a transaction failure, but there can
	// never be more than one winner.
	assert.Equal(1, successes)
}
