package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultSignedURLTTL = 15 * time.Minute
	maxSignedURLTTL     = 7 * 24 * time.Hour
	imageCacheControl   = "public, max-age=300"
)

var (
	errNoBucket      = errors.New("storage: bucket name is required")
	errNoSigningPath = errors.New("storage: either a signer or a bucket handle is required")
)

// SignedURL is a time-limited GET URL for a product image.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// URLSigner issues V4 signed GET URLs for the product media bucket.
type URLSigner struct {
	bucket string
	signer Signer
	handle *gcs.BucketHandle
	ttl    time.Duration
	now    func() time.Time
}

// URLSignerOption customises a URLSigner.
type URLSignerOption func(*URLSigner)

// WithSigner signs locally with a service account key.
func WithSigner(signer Signer) URLSignerOption {
	return func(s *URLSigner) { s.signer = signer }
}

// WithClient signs through the Cloud Storage client, which falls back to the
// IAM SignBlob API for the runtime service account.
func WithClient(client *gcs.Client) URLSignerOption {
	return func(s *URLSigner) {
		if client != nil {
			s.handle = client.Bucket(s.bucket)
		}
	}
}

// WithTTL sets the URL lifetime.
func WithTTL(ttl time.Duration) URLSignerOption {
	return func(s *URLSigner) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) URLSignerOption {
	return func(s *URLSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewURLSigner constructs a signer for bucket.
func NewURLSigner(bucket string, opts ...URLSignerOption) (*URLSigner, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errNoBucket
	}
	s := &URLSigner{bucket: bucket, ttl: defaultSignedURLTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.signer == nil && s.handle == nil {
		return nil, errNoSigningPath
	}
	if s.ttl > maxSignedURLTTL {
		return nil, fmt.Errorf("storage: signed url ttl %s exceeds %s", s.ttl, maxSignedURLTTL)
	}
	return s, nil
}

// SignImageURL returns a GET URL for ref. Absolute http(s) references are
// passed through unsigned.
func (s *URLSigner) SignImageURL(ctx context.Context, ref string) (SignedURL, error) {
	if IsAbsoluteURL(ref) {
		return SignedURL{URL: strings.TrimSpace(ref)}, nil
	}
	object, err := ObjectPath(s.bucket, ref)
	if err != nil {
		return SignedURL{}, err
	}

	expires := s.now().Add(s.ttl)
	opts := &gcs.SignedURLOptions{
		Scheme:          gcs.SigningSchemeV4,
		Method:          "GET",
		Expires:         expires,
		QueryParameters: url.Values{"response-cache-control": {imageCacheControl}},
	}

	var signed string
	if s.signer != nil {
		opts.GoogleAccessID = s.signer.Email()
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		}
		signed, err = gcs.SignedURL(s.bucket, object, opts)
	} else {
		signed, err = s.handle.SignedURL(object, opts)
	}
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign %s: %w", object, err)
	}
	return SignedURL{URL: signed, ExpiresAt: expires}, nil
}
