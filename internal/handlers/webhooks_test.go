package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

const webhookSecret = "whsec-test"

func signedInventoryRequest(t *testing.T, body string, nonce string, now time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/inventory", bytes.NewBufferString(body))
	timestamp := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set("X-Storefront-Timestamp", timestamp)
	req.Header.Set("X-Storefront-Nonce", nonce)
	req.Header.Set("X-Storefront-Signature", auth.SignRequest(webhookSecret, req, []byte(body), timestamp, nonce))
	return req
}

func newWebhookRouter(svc services.InventoryService, opts ...WebhookOption) http.Handler {
	validator := auth.NewHMACValidator(webhookSecret, auth.NewInMemoryNonceStore())
	webhooks := NewInventoryWebhookHandlers(svc, opts...)
	return NewRouter(
		WithWebhookRoutes(webhooks.Routes),
		WithWebhookMiddlewares(validator.RequireHMAC("inventory")),
	)
}

func TestInventoryWebhookAppliesSignedUpdate(t *testing.T) {
	processed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := &stubInventoryService{result: services.InventoryUpdateResult{
		Applied:         1,
		UpdatedProducts: []string{"prod-tee"},
		ProcessedAt:     processed,
	}}
	body := `{"levels":[{"productId":"prod-tee","variantId":"v-red-s","quantityAvailable":4,"updatedAt":"2026-03-14T08:59:00+09:00"}]}`

	rr := httptest.NewRecorder()
	newWebhookRouter(svc).ServeHTTP(rr, signedInventoryRequest(t, body, "nonce-1", time.Now()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.last.Levels) != 1 || svc.last.Levels[0].QuantityAvailable != 4 {
		t.Fatalf("unexpected command %+v", svc.last)
	}
	if got := svc.last.Levels[0].UpdatedAt; got.Location() != time.UTC || got.Hour() != 23 {
		t.Fatalf("expected timestamp normalised to UTC, got %v", got)
	}
	resp := decodeResponse(t, rr)
	if resp["applied"] != float64(1) {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestInventoryWebhookRejectsUnsignedAndReplayed(t *testing.T) {
	svc := &stubInventoryService{}
	router := newWebhookRouter(svc)
	body := `{"levels":[{"productId":"prod-tee","variantId":"v-red-s","quantityAvailable":1}]}`

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/inventory", bytes.NewBufferString(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unsigned delivery rejected, got %d", rr.Code)
	}

	now := time.Now()
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signedInventoryRequest(t, body, "nonce-a", now))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first delivery accepted, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signedInventoryRequest(t, body, "nonce-a", now))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay rejected, got %d", rr.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected a single applied update, got %d", svc.calls)
	}
}

func TestInventoryWebhookErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: services.ErrInventoryInvalidInput, want: http.StatusBadRequest},
		{err: services.ErrInventoryUnknownVariant, want: http.StatusUnprocessableEntity},
		{err: services.ErrInventoryUnavailable, want: http.StatusServiceUnavailable},
	}
	for i, tc := range tests {
		router := newWebhookRouter(&stubInventoryService{err: tc.err})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signedInventoryRequest(t, `{"levels":[]}`, "nonce-err-"+strconv.Itoa(i), time.Now()))
		if rr.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rr.Code)
		}
	}
}

func TestInventoryWebhookRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	router := newWebhookRouter(&stubInventoryService{}, WithWebhookRateLimit(1, 1, func() time.Time { return now }))
	body := `{"levels":[]}`

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, signedInventoryRequest(t, body, "n-1", time.Now()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first delivery accepted, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signedInventoryRequest(t, body, "n-2", time.Now()))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}
