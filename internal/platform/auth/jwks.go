package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing the key set.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSValidity     = 15 * time.Minute
	defaultJWKSFetchTimeout = 5 * time.Second
	defaultJWKSMissBackoff  = 30 * time.Second
	maxJWKSDocumentBytes    = 1 << 20
)

type keySet struct {
	keys      map[string]jose.JSONWebKey
	expiresAt time.Time
	fetchedAt time.Time
}

func (s keySet) lookup(kid string, now time.Time) (any, bool) {
	if s.keys == nil || !now.Before(s.expiresAt) {
		return nil, false
	}
	jwk, ok := s.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

// JWKSCache serves public keys from a JWKS endpoint. The document is kept for its
// Cache-Control max-age. An unknown kid forces a refetch, at most once per miss backoff.
type JWKSCache struct {
	url         string
	client      *http.Client
	logger      *zap.Logger
	now         func() time.Time
	missBackoff time.Duration

	mu  sync.RWMutex
	set keySet

	fetchMu sync.Mutex
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:         url,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      zap.NewNop(),
		now:         time.Now,
		missBackoff: defaultJWKSMissBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithJWKSMissBackoff bounds how often an unknown kid may trigger a refetch.
func WithJWKSMissBackoff(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d >= 0 {
			c.missBackoff = d
		}
	}
}

// Keyfunc adapts the cache for jwt parsing.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := c.snapshot().lookup(kid, c.now()); ok {
		return key, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have refreshed while we waited.
	current := c.snapshot()
	now := c.now()
	if key, ok := current.lookup(kid, now); ok {
		return key, nil
	}
	fresh := now.Before(current.expiresAt)
	if fresh && now.Sub(current.fetchedAt) < c.missBackoff {
		return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
	}

	next, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.set = next
	c.mu.Unlock()

	if key, ok := next.lookup(kid, now); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) snapshot() keySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

func (c *JWKSCache) fetch(ctx context.Context) (keySet, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultJWKSFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return keySet{}, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return keySet{}, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return keySet{}, fmt.Errorf("%w: status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var doc jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSDocumentBytes)).Decode(&doc); err != nil {
		return keySet{}, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.KeyID == "" || !jwk.Valid() || !jwk.IsPublic() {
			continue
		}
		keys[jwk.KeyID] = jwk
	}
	if len(keys) == 0 {
		return keySet{}, fmt.Errorf("%w: no usable keys", ErrJWKSFetchFailed)
	}

	validity := maxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}
	now := c.now()
	c.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)), zap.Duration("validity", validity))
	return keySet{keys: keys, fetchedAt: now, expiresAt: now.Add(validity)}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}
