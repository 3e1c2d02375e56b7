package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/storefront/internal/platform/config"
)

type stubIDTokenClient struct {
	plainCalls   int
	revokedCalls int
	deadline     time.Time
	err          error
}

func (s *stubIDTokenClient) VerifyIDToken(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	s.plainCalls++
	s.deadline, _ = ctx.Deadline()
	return &firebaseauth.Token{UID: "uid-1"}, s.err
}

func (s *stubIDTokenClient) VerifyIDTokenAndCheckRevoked(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	s.revokedCalls++
	s.deadline, _ = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return &firebaseauth.Token{UID: "uid-1"}, nil
}

func TestFirebaseVerifier_ChoosesRevocationCheck(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.FirebaseConfig
		wantPlain   int
		wantRevoked int
	}{
		{name: "signature only", cfg: config.FirebaseConfig{}, wantPlain: 1},
		{name: "revocation", cfg: config.FirebaseConfig{CheckRevoked: true}, wantRevoked: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubIDTokenClient{}
			verifier := newFirebaseVerifier(client, tc.cfg)
			token, err := verifier.VerifyIDToken(context.Background(), "tok")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token.UID != "uid-1" {
				t.Fatalf("unexpected token %+v", token)
			}
			if client.plainCalls != tc.wantPlain || client.revokedCalls != tc.wantRevoked {
				t.Fatalf("unexpected calls plain=%d revoked=%d", client.plainCalls, client.revokedCalls)
			}
		})
	}
}

func TestFirebaseVerifier_AppliesTimeout(t *testing.T) {
	client := &stubIDTokenClient{}
	verifier := newFirebaseVerifier(client, config.FirebaseConfig{VerifyTimeout: time.Minute})

	before := time.Now()
	if _, err := verifier.VerifyIDToken(context.Background(), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.deadline.IsZero() || client.deadline.Sub(before) > time.Minute+time.Second {
		t.Fatalf("expected one minute deadline, got %v", client.deadline)
	}
}

func TestFirebaseVerifier_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("identity toolkit down")
	verifier := newFirebaseVerifier(&stubIDTokenClient{err: boom}, config.FirebaseConfig{CheckRevoked: true})
	if _, err := verifier.VerifyIDToken(context.Background(), "tok"); !errors.Is(err, boom) || errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected raw error, got %v", err)
	}
}

func TestNewFirebaseVerifier_RequiresProject(t *testing.T) {
	if _, err := NewFirebaseVerifier(context.Background(), config.FirebaseConfig{}); err == nil {
		t.Fatalf("expected error without project id")
	}
}

func TestRequireShopper_RevokedToken(t *testing.T) {
	metrics := &recordingMetrics{}
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenRevoked}, WithMetrics(metrics))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	rr := httptest.NewRecorder()
	authn.RequireShopper()(http.NotFoundHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := metrics.last().reason; got != "token_revoked" {
		t.Fatalf("expected token_revoked, got %s", got)
	}
}
