package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
	// ErrTokenRevoked signals a revoked token or a disabled account.
	ErrTokenRevoked = errors.New("auth: firebase id token revoked")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// Authenticator turns Firebase ID tokens into Shopper identities.
type Authenticator struct {
	verifier TokenVerifier
	logger   *zap.Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithLogger sets the logger used for verification failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records each verification outcome.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(a *Authenticator) { a.metrics = metrics }
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireShopper rejects requests without a valid bearer token.
func (a *Authenticator) RequireShopper() func(http.Handler) http.Handler {
	return a.middleware(true)
}

// OptionalShopper attaches the shopper when a valid token is present and lets
// anonymous browsing continue otherwise. An invalid token is still rejected.
func (a *Authenticator) OptionalShopper() func(http.Handler) http.Handler {
	return a.middleware(false)
}

func (a *Authenticator) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				if required {
					httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, "authorization header missing or invalid", http.StatusUnauthorized))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeServiceUnavailable, "authorization service unavailable", http.StatusServiceUnavailable))
				return
			}

			start := a.now()
			vctx, cancel := context.WithTimeout(ctx, defaultVerifyTimeout)
			token, err := a.verifier.VerifyIDToken(vctx, tokenStr)
			cancel()
			if err != nil {
				reason, message := verificationFailure(err)
				a.logger.Debug("firebase token rejected", zap.String("reason", reason), zap.Error(err))
				a.record(ctx, false, reason, start)
				httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, message, http.StatusUnauthorized).With("reason", reason))
				return
			}

			shopper := &Shopper{
				UID:       token.UID,
				Email:     claimAsString(token.Claims, "email"),
				Locale:    claimAsString(token.Claims, "locale"),
				Anonymous: token.Firebase.SignInProvider == anonymousProvider,
				token:     token,
			}
			a.record(ctx, true, "ok", start)

			ctx = WithShopper(ctx, shopper)
			ctx = requestctx.WithClient(ctx, requestctx.ClientInfo{UserID: shopper.UID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordVerification(ctx, "firebase", success, reason, a.now().Sub(start))
}

func verificationFailure(err error) (string, string) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return "token_expired", "firebase id token expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked", "firebase id token revoked"
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return "invalid_token", "firebase id token invalid"
	default:
		return "invalid_token", "firebase id token verification failed"
	}
}

// rejection is a refused credential with the status and reason reported to the caller.
type rejection struct {
	status int
	reason string
	msg    string
}

func (r *rejection) Error() string { return r.reason }

func unauthorized(reason, msg string) *rejection {
	return &rejection{status: http.StatusUnauthorized, reason: reason, msg: msg}
}

func unavailable(reason, msg string) *rejection {
	return &rejection{status: http.StatusServiceUnavailable, reason: reason, msg: msg}
}

func asRejection(err error, fallbackReason, fallbackMsg string) *rejection {
	var rej *rejection
	if errors.As(err, &rej) {
		return rej
	}
	return unauthorized(fallbackReason, fallbackMsg)
}

func (r *rejection) write(ctx context.Context, w http.ResponseWriter) {
	code := httpx.CodeUnauthenticated
	switch r.status {
	case http.StatusServiceUnavailable:
		code = httpx.CodeServiceUnavailable
	case http.StatusBadRequest:
		code = httpx.CodeInvalidRequest
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, r.msg, r.status).With("reason", r.reason))
}

func claimAsString(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
