package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

const nonceFingerprint = "nonce"

// NonceLedger records webhook nonces in a Store so replays are rejected by every
// instance. Entries expire with the store's regular cleanup.
type NonceLedger struct {
	store Store
}

func NewNonceLedger(store Store) *NonceLedger {
	return &NonceLedger{store: store}
}

// UseNonce reports false when nonce was already recorded for scope and has not expired at now.
func (l *NonceLedger) UseNonce(ctx context.Context, scope, nonce string, now time.Time, ttl time.Duration) (bool, error) {
	if l == nil || l.store == nil {
		return false, errors.New("idempotency: nonce ledger has no store")
	}
	scope, nonce = strings.TrimSpace(scope), strings.TrimSpace(nonce)
	if scope == "" || nonce == "" {
		return false, errors.New("idempotency: scope and nonce are required")
	}
	if ttl <= 0 {
		return false, errors.New("idempotency: nonce ttl must be positive")
	}

	state, _, err := l.store.Reserve(ctx, Key{Scope: "nonce:" + scope, Value: nonce}, nonceFingerprint, now.UTC(), ttl)
	if err != nil {
		return false, err
	}
	return state == StateNew, nil
}
