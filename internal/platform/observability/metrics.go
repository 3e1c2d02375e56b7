package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SelectionMetrics counts variant resolution outcomes.
type SelectionMetrics struct {
	resolutions metric.Int64Counter
	unavailable metric.Int64Counter
	blocked     metric.Int64Counter
}

// NewSelectionMetrics registers the counters on the global meter provider, or on
// meter when one is given.
func NewSelectionMetrics(meter metric.Meter) (*SelectionMetrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	resolutions, err := meter.Int64Counter("storefront.variant.resolutions",
		metric.WithDescription("Variant selections resolved on product detail"))
	if err != nil {
		return nil, err
	}
	unavailable, err := meter.Int64Counter("storefront.variant.unavailable_combinations",
		metric.WithDescription("Selections that reached a combination without a variant"))
	if err != nil {
		return nil, err
	}
	blocked, err := meter.Int64Counter("storefront.cart.add_blocked",
		metric.WithDescription("Add-to-cart attempts refused by the availability policy"))
	if err != nil {
		return nil, err
	}
	return &SelectionMetrics{resolutions: resolutions, unavailable: unavailable, blocked: blocked}, nil
}

// RecordResolution counts one resolution for productID.
func (m *SelectionMetrics) RecordResolution(ctx context.Context, productID string, unavailable bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("product_id", productID))
	m.resolutions.Add(ctx, 1, attrs)
	if unavailable {
		m.unavailable.Add(ctx, 1, attrs)
	}
}

// RecordBlocked counts a refused add-to-cart by reason.
func (m *SelectionMetrics) RecordBlocked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.blocked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// VerificationMetrics records authentication outcomes for the Firebase, HMAC
// and OIDC middlewares.
type VerificationMetrics struct {
	outcomes metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewVerificationMetrics registers the verification instruments.
func NewVerificationMetrics(meter metric.Meter) (*VerificationMetrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	outcomes, err := meter.Int64Counter("storefront.auth.verifications",
		metric.WithDescription("Credential verifications by kind and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("storefront.auth.verification_latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Credential verification latency"))
	if err != nil {
		return nil, err
	}
	return &VerificationMetrics{outcomes: outcomes, latency: latency}, nil
}

// RecordVerification implements the auth metrics recorder.
func (m *VerificationMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.outcomes.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), metric.WithAttributes(attribute.String("kind", kind)))
}
