package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// OIDCPolicy describes which Google-signed tokens may reach internal routes.
type OIDCPolicy struct {
	Audience string
	// Issuers restricts the iss claim. Empty accepts any issuer the key set signs for.
	Issuers []string
	// Invokers restricts the verified email claim, typically to the scheduler service account.
	Invokers []string
}

type compiledPolicy struct {
	audience string
	issuers  map[string]struct{}
	invokers map[string]struct{}
}

func (p OIDCPolicy) compile() compiledPolicy {
	return compiledPolicy{
		audience: strings.TrimSpace(p.Audience),
		issuers:  stringSet(p.Issuers, false),
		invokers: stringSet(p.Invokers, true),
	}
}

func stringSet(values []string, fold bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold {
			v = strings.ToLower(v)
		}
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// OIDCValidator authenticates internal callers such as Cloud Scheduler.
type OIDCValidator struct {
	keys    *JWKSCache
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

func NewOIDCValidator(keys *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{keys: keys, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.metrics = recorder }
}

// RequireOIDC admits requests bearing an RS256 token that satisfies policy.
func (v *OIDCValidator) RequireOIDC(policy OIDCPolicy) func(http.Handler) http.Handler {
	compiled := policy.compile()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := v.now()

			identity, err := v.verify(ctx, r.Header.Get("Authorization"), compiled)
			if err != nil {
				rej := asRejection(err, "token_invalid", "oidc token verification failed")
				v.record(ctx, false, rej.reason, start)
				rej.write(ctx, w)
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, header string, policy compiledPolicy) (*ServiceIdentity, error) {
	if policy.audience == "" || v.keys == nil {
		return nil, unavailable("not_configured", "oidc verification unavailable")
	}
	raw, ok := extractBearerToken(header)
	if !ok {
		return nil, unauthorized("token_missing", "oidc token missing")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			v.logger.Warn("jwks unavailable", zap.Error(err))
			return nil, unavailable("jwks_unavailable", "oidc token verification failed")
		}
		return nil, unauthorized("token_invalid", "oidc token verification failed")
	}

	issuer, _ := claims["iss"].(string)
	if _, ok := policy.issuers[issuer]; len(policy.issuers) > 0 && !ok {
		return nil, unauthorized("issuer_mismatch", "oidc issuer mismatch")
	}
	if !claims.VerifyAudience(policy.audience, true) {
		return nil, unauthorized("audience_mismatch", "oidc audience mismatch")
	}

	email, _ := claims["email"].(string)
	if len(policy.invokers) > 0 {
		verified, _ := claims["email_verified"].(bool)
		if _, allowed := policy.invokers[strings.ToLower(email)]; !allowed || !verified {
			return nil, unauthorized("invoker_not_allowed", "oidc caller not permitted")
		}
	}

	subject, _ := claims["sub"].(string)
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer, Audience: policy.audience}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
}
