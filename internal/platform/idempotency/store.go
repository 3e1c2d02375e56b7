package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a shopper may replay a mutation with the same key.
const DefaultTTL = time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the request.
	StateNew State = iota
	// StateCompleted means a stored response can be replayed.
	StateCompleted
	// StateInFlight means another request with the key has not finished yet.
	StateInFlight
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

// Key scopes a client supplied key to the shopper that sent it.
type Key struct {
	Scope string
	Value string
}

// ID is the storage identifier of the key.
func (k Key) ID() string {
	scope := strings.TrimSpace(k.Scope)
	if scope == "" {
		scope = "anonymous"
	}
	return sha256Hex([]byte(scope + "\x00" + strings.TrimSpace(k.Value)))
}

// Record is a stored reservation and, once completed, its response.
type Record struct {
	Fingerprint string
	Completed   bool
	Status      int
	Header      http.Header
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists reservations and completed responses.
type Store interface {
	Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key Key, fingerprint string, record Record, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key Key) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// reserve applies the reservation rules to the currently stored record.
func reserve(existing *Record, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if existing == nil || existing.expired(now) {
		return StateNew, Record{Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}, nil
	}
	if existing.Fingerprint != fingerprint {
		return 0, Record{}, ErrFingerprintMismatch
	}
	if existing.Completed {
		return StateCompleted, *existing, nil
	}
	return StateInFlight, *existing, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeader drops hop-by-hop and per-response headers before a response is stored.
func storableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Trailer":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
