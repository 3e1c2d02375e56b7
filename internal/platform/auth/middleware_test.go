package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireShopper_AttachesShopper(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID:      "uid-123",
		Firebase: firebaseauth.FirebaseInfo{SignInProvider: "anonymous"},
		Claims:   map[string]interface{}{"locale": "ja-JP"},
	}}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireShopper()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		shopper, ok := ShopperFromContext(r.Context())
		if !ok {
			t.Fatalf("expected shopper in context")
		}
		if shopper.UID != "uid-123" || !shopper.Anonymous || shopper.Locale != "ja-JP" {
			t.Fatalf("unexpected shopper %+v", shopper)
		}
		if client, ok := requestctx.Client(r.Context()); !ok || client.UserID != "uid-123" {
			t.Fatalf("expected client user id to be set")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if verifier.received != "token-abc" {
		t.Fatalf("unexpected token forwarded: %q", verifier.received)
	}
}

func TestRequireShopper_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	rr := httptest.NewRecorder()
	authn.RequireShopper()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestRequireShopper_ExpiredToken(t *testing.T) {
	metrics := &recordingMetrics{}
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired}, WithMetrics(metrics))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rr := httptest.NewRecorder()
	authn.RequireShopper()(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := metrics.last().reason; got != "token_expired" {
		t.Fatalf("expected token_expired, got %s", got)
	}
}

func TestOptionalShopper_AllowsAnonymousBrowsing(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	called := false
	authn.OptionalShopper()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := ShopperFromContext(r.Context()); ok {
			t.Fatalf("expected no shopper")
		}
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/p1", nil))

	if !called {
		t.Fatalf("expected handler to run without a token")
	}
}

func TestExtractBearerToken(t *testing.T) {
	if token, ok := extractBearerToken("bearer abc"); !ok || token != "abc" {
		t.Fatalf("expected case-insensitive scheme, got %q %v", token, ok)
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer   "} {
		if _, ok := extractBearerToken(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
