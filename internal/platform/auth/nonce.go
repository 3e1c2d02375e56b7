package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// NonceStore tracks delivery nonces for replay prevention.
type NonceStore interface {
	// UseNonce records nonce within scope for ttl from now and reports false when
	// it was already recorded and has not expired at now.
	UseNonce(ctx context.Context, scope, nonce string, now time.Time, ttl time.Duration) (bool, error)
}

const nonceSweepEvery = 256

// InMemoryNonceStore is a process-local NonceStore for single instance and test setups.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	writes int
}

// NewInMemoryNonceStore returns an empty store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time)}
}

// UseNonce implements NonceStore. Expired entries are swept every few hundred writes.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, now time.Time, ttl time.Duration) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	if ttl <= 0 {
		return false, errors.New("auth: nonce ttl must be positive")
	}
	key := scope + "\x00" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, seen := s.nonces[key]; seen && now.Before(exp) {
		return false, nil
	}
	s.nonces[key] = now.Add(ttl)
	s.writes++
	if s.writes%nonceSweepEvery == 0 {
		for k, exp := range s.nonces {
			if !now.Before(exp) {
				delete(s.nonces, k)
			}
		}
	}
	return true, nil
}
