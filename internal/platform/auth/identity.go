package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const anonymousProvider = "anonymous"

// Shopper is the signed-in (possibly anonymous) app user owning a cart.
type Shopper struct {
	UID       string
	Email     string
	Locale    string
	Anonymous bool

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token.
func (s *Shopper) Token() *firebaseauth.Token {
	if s == nil {
		return nil
	}
	return s.token
}

type shopperContextKey struct{}

// WithShopper stores the shopper on ctx.
func WithShopper(ctx context.Context, shopper *Shopper) context.Context {
	if shopper == nil {
		return ctx
	}
	return context.WithValue(ctx, shopperContextKey{}, shopper)
}

// ShopperFromContext returns the shopper attached by the middleware.
func ShopperFromContext(ctx context.Context) (*Shopper, bool) {
	shopper, ok := ctx.Value(shopperContextKey{}).(*Shopper)
	if !ok || shopper == nil {
		return nil, false
	}
	return shopper, true
}

// ServiceIdentity describes a Google-signed caller of the internal routes.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
