package store

import (
	"context"
	"sync"
	"time"

	"claim.box/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in a map guarded by a RWMutex. The write lock
// serializes claim transactions; everything inside Claim happens under it,
// so the check-and-increment is atomic with respect to other claimants.
type MemoryStore struct {
	secrets       map[string]*models.Secret
	mu            sync.RWMutex
	cleanupCancel context.CancelFunc
}

// NewMemoryStore creates an in-memory store and starts a background sweep
// of duration-expired records.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	store := &MemoryStore{
		secrets:       make(map[string]*models.Secret),
		cleanupCancel: cancel,
	}
	go store.cleanupLoop(ctx, cleanupInterval)
	return store
}

func (s *MemoryStore) Save(ctx context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *secret
	s.secrets[secret.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers never share the stored record with a concurrent claim.
	cp := *secret
	return &cp, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string, now time.Time) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[id]
	if !ok {
		return ClaimResult{}, ErrNotFound
	}

	if err := evaluateErr(secret, now); err != nil {
		if err == ErrExpired {
			delete(s.secrets, id)
		}
		return ClaimResult{}, err
	}

	return claimed(secret), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, id)
	return nil
}

func (s *MemoryStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets = nil
	return nil
}

func (s *MemoryStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, secret := range s.secrets {
		if secret.Policy == models.ExpiryAfterDuration && now.After(secret.ExpiresAt) {
			delete(s.secrets, id)
		}
	}
}
