package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Storefront-Signature"
	defaultTimestampHeader = "X-Storefront-Timestamp"
	defaultNonceHeader     = "X-Storefront-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute

	maxSignedBody = 1 << 20
)

type signatureHeaders struct {
	signature string
	timestamp string
	nonce     string
}

// delivery is the signed material extracted from one webhook request.
type delivery struct {
	signature []byte
	timestamp string
	nonce     string
	body      []byte
}

// HMACValidator verifies signed webhook deliveries such as inventory updates.
// Signatures cover method, escaped path, timestamp, nonce and the body's SHA-256.
type HMACValidator struct {
	secrets [][]byte
	nonces  NonceStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	headers   signatureHeaders
	clockSkew time.Duration
	nonceTTL  time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator for the current shared secret.
func NewHMACValidator(secret string, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		nonces: nonces,
		logger: zap.NewNop(),
		now:    time.Now,
		headers: signatureHeaders{
			signature: defaultSignatureHeader,
			timestamp: defaultTimestampHeader,
			nonce:     defaultNonceHeader,
		},
		clockSkew: defaultClockSkew,
		nonceTTL:  defaultNonceTTL,
	}
	if secret != "" {
		v.secrets = append(v.secrets, []byte(secret))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger sets the logger for rejected deliveries.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics records each verification outcome.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) { v.metrics = metrics }
}

// WithHMACClock overrides the clock used for skew checks and nonce expiry.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACPreviousSecrets keeps accepting signatures made with retired secrets
// while senders roll over to the current one.
func WithHMACPreviousSecrets(secrets ...string) HMACOption {
	return func(v *HMACValidator) {
		for _, s := range secrets {
			if s = strings.TrimSpace(s); s != "" {
				v.secrets = append(v.secrets, []byte(s))
			}
		}
	}
}

// WithHMACHeaders renames the signature, timestamp and nonce headers. Blank names keep the default.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.headers.signature = signature
		}
		if timestamp != "" {
			v.headers.timestamp = timestamp
		}
		if nonce != "" {
			v.headers.nonce = nonce
		}
	}
}

// WithHMACWindow adjusts the accepted timestamp skew and how long nonces are remembered.
func WithHMACWindow(skew, nonceTTL time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if skew > 0 {
			v.clockSkew = skew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

// RequireHMAC admits requests signed with a configured secret and carrying an unused nonce.
// The nonce is recorded under scope only after the signature checks out.
func (v *HMACValidator) RequireHMAC(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := v.now()
			if err := v.verify(ctx, scope, r); err != nil {
				rej := asRejection(err, "signature_invalid", "signature verification failed")
				v.record(ctx, false, rej.reason, start)
				rej.write(ctx, w)
				return
			}
			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r)
		})
	}
}

func (v *HMACValidator) verify(ctx context.Context, scope string, r *http.Request) error {
	if len(v.secrets) == 0 {
		return unavailable("secret_not_configured", "webhook secret not configured")
	}
	d, err := v.readDelivery(r)
	if err != nil {
		return err
	}
	if !v.signatureMatches(r, d) {
		return unauthorized("signature_mismatch", "signature verification failed")
	}

	if v.nonces == nil {
		return unavailable("nonce_store_unavailable", "nonce store unavailable")
	}
	fresh, err := v.nonces.UseNonce(ctx, scope, d.nonce, v.now(), v.nonceTTL)
	if err != nil {
		v.logger.Warn("nonce store error", zap.String("scope", scope), zap.Error(err))
		return unavailable("nonce_store_error", "nonce storage error")
	}
	if !fresh {
		return unauthorized("nonce_replay", "duplicate signature nonce")
	}
	return nil
}

func (v *HMACValidator) readDelivery(r *http.Request) (delivery, error) {
	rawSignature := strings.TrimSpace(r.Header.Get(v.headers.signature))
	d := delivery{
		timestamp: strings.TrimSpace(r.Header.Get(v.headers.timestamp)),
		nonce:     strings.TrimSpace(r.Header.Get(v.headers.nonce)),
	}
	if rawSignature == "" || d.timestamp == "" || d.nonce == "" {
		return delivery{}, unauthorized("headers_missing", "signature headers missing")
	}

	sentAt, err := parseSignatureTimestamp(d.timestamp)
	if err != nil {
		return delivery{}, unauthorized("timestamp_invalid", "signature timestamp invalid")
	}
	if skew := v.now().Sub(sentAt); skew > v.clockSkew || skew < -v.clockSkew {
		return delivery{}, unauthorized("timestamp_skew", "signature timestamp outside allowed window")
	}

	if d.signature, err = decodeSignature(rawSignature); err != nil {
		return delivery{}, unauthorized("signature_invalid", "signature encoding invalid")
	}
	if d.body, err = readAndRestoreBody(r); err != nil {
		return delivery{}, &rejection{status: http.StatusBadRequest, reason: "body_unreadable", msg: "unable to read body for signature verification"}
	}
	return d, nil
}

func (v *HMACValidator) signatureMatches(r *http.Request, d delivery) bool {
	message := canonicalMessage(r, d.body, d.timestamp, d.nonce)
	for _, secret := range v.secrets {
		if hmac.Equal(d.signature, computeHMAC(secret, message)) {
			return true
		}
	}
	return false
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
}

// SignRequest computes the base64 signature a sender attaches to r.
func SignRequest(secret string, r *http.Request, body []byte, timestamp, nonce string) string {
	return base64.StdEncoding.EncodeToString(computeHMAC([]byte(secret), canonicalMessage(r, body, timestamp, nonce)))
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxSignedBody {
		return nil, errors.New("auth: body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

// decodeSignature accepts base64 or hex, optionally prefixed with "sha256=".
// A 64 character hex digest is also valid base64, so hex is tried first and
// only a decoding of digest length is accepted.
func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimSpace(strings.TrimPrefix(value, "sha256="))
	if len(value) == hex.EncodedLen(sha256.Size) {
		if decoded, err := hex.DecodeString(value); err == nil {
			return decoded, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(value); err == nil && len(decoded) == sha256.Size {
			return decoded, nil
		}
	}
	return nil, errors.New("auth: signature must be a base64 or hex encoded sha256 digest")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func canonicalMessage(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)

	var b bytes.Buffer
	b.WriteString(strings.ToUpper(r.Method))
	for _, part := range []string{path, timestamp, nonce, hex.EncodeToString(digest[:])} {
		b.WriteByte('\n')
		b.WriteString(part)
	}
	return b.Bytes()
}

func computeHMAC(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
