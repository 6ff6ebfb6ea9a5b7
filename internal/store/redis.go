package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"claim.box/internal/models"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each record as a gob blob under one key. Records with a
// duration expiry get a native TTL so Redis itself destroys them; the claim
// transaction still checks the timestamp for the window between expiry and
// eviction. Claims use an optimistic WATCH transaction: if another claimant
// rewrites the key between read and write, the transaction fails and is
// retried against the fresh state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, secret *models.Secret) error {
	data, err := encode(secret)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if secret.Policy == models.ExpiryAfterDuration {
		ttl = time.Until(secret.ExpiresAt)
		if ttl <= 0 {
			return ErrExpired
		}
	}

	return r.client.Set(ctx, secretKey(secret.ID), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	data, err := r.client.Get(ctx, secretKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return decode(data)
}

func (r *RedisStore) Claim(ctx context.Context, id string, now time.Time) (ClaimResult, error) {
	key := secretKey(id)
	var result ClaimResult

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		secret, err := decode(data)
		if err != nil {
			return err
		}

		if err := evaluateErr(secret, now); err != nil {
			return err
		}

		result = claimed(secret)

		newData, err := encode(secret)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the optimistic race; re-read and try again.
			continue
		}
		if errors.Is(err, ErrExpired) {
			_ = r.Delete(ctx, id)
		}
		return ClaimResult{}, err
	}

	return ClaimResult{}, redis.TxFailedErr
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, secretKey(id)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

func secretKey(id string) string {
	return "secret:" + id
}

func encode(secret *models.Secret) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(secret); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.Secret, error) {
	var secret models.Secret
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&secret); err != nil {
		return nil, err
	}
	return &secret, nil
}
