package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) last() verificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return verificationRecord{}
	}
	return m.records[len(m.records)-1]
}

var testPolicy = OIDCPolicy{
	Audience: "https://storefront.example.com",
	Issuers:  []string{"https://accounts.google.com"},
}

func TestRequireOIDC_Success(t *testing.T) {
	validator, metrics, token := setupOIDCTest(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC(testPolicy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected service identity in context")
		}
		if identity.Email != "scheduler@example.iam.gserviceaccount.com" {
			t.Fatalf("unexpected email %q", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if record := metrics.last(); !record.success || record.kind != "oidc" {
		t.Fatalf("unexpected metric record: %+v", record)
	}
}

func TestRequireOIDC_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		reason string
	}{
		{"audience", func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }, "audience_mismatch"},
		{"issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }, "issuer_mismatch"},
		{"expired", func(c jwt.MapClaims) { c["exp"] = float64(time.Now().Add(-time.Hour).Unix()) }, "token_invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, metrics, token := setupOIDCTest(t, tc.mutate)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			validator.RequireOIDC(testPolicy)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			})).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rr.Code)
			}
			if got := metrics.last().reason; got != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, got)
			}
		})
	}
}

func TestRequireOIDC_JWKSUnavailable(t *testing.T) {
	validator, metrics, token := setupOIDCTest(t, nil)
	validator.keys.url = "http://127.0.0.1:1/unreachable"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	validator.RequireOIDC(OIDCPolicy{Audience: "https://storefront.example.com"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if got := metrics.last().reason; got != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %s", got)
	}
}

func setupOIDCTest(t *testing.T, mutateClaims func(jwt.MapClaims)) (*OIDCValidator, *recordingMetrics, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(server.URL), WithOIDCMetrics(metrics))

	now := time.Now()
	claims := jwt.MapClaims{
		"aud":            "https://storefront.example.com",
		"iss":            "https://accounts.google.com",
		"sub":            "1234567890",
		"email":          "scheduler@example.iam.gserviceaccount.com",
		"email_verified": true,
		"exp":            float64(now.Add(time.Hour).Unix()),
		"iat":            float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return validator, metrics, signed
}

func TestRequireOIDC_Invokers(t *testing.T) {
	cases := []struct {
		name     string
		invokers []string
		mutate   func(jwt.MapClaims)
		want     int
	}{
		{name: "listed invoker", invokers: []string{"Scheduler@example.iam.gserviceaccount.com"}, want: http.StatusNoContent},
		{name: "other invoker", invokers: []string{"deployer@example.iam.gserviceaccount.com"}, want: http.StatusUnauthorized},
		{
			name:     "unverified email",
			invokers: []string{"scheduler@example.iam.gserviceaccount.com"},
			mutate:   func(c jwt.MapClaims) { c["email_verified"] = false },
			want:     http.StatusUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator, metrics, token := setupOIDCTest(t, tc.mutate)
			policy := testPolicy
			policy.Invokers = tc.invokers

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			validator.RequireOIDC(policy)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.want == http.StatusUnauthorized && metrics.last().reason != "invoker_not_allowed" {
				t.Fatalf("unexpected reason %s", metrics.last().reason)
			}
		})
	}
}

func TestRequireOIDC_NotConfigured(t *testing.T) {
	validator := NewOIDCValidator(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/test", nil)
	req.Header.Set("Authorization", "Bearer x")
	validator.RequireOIDC(testPolicy)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
