package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hanko-field/storefront/internal/platform/auth"
)

var fixedTime = time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)

func addItemRequest(key, body, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithShopper(req.Context(), &auth.Shopper{UID: uid}))
	}
	return req
}

func TestMiddlewareRequiresKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a key")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, addItemRequest("", `{}`, "u1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"item_id":"i1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, addItemRequest("k1", `{"variant_id":"v1"}`, "u1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, addItemRequest("k1", `{"variant_id":"v1"}`, "u1"))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("unexpected replay %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(replayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
}

func TestMiddlewareScopesKeysPerShopper(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), addItemRequest("shared", `{}`, "u1"))
	handler.ServeHTTP(httptest.NewRecorder(), addItemRequest("shared", `{}`, "u2"))
	if calls != 2 {
		t.Fatalf("expected both shoppers to run, got %d", calls)
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), addItemRequest("k", `{"quantity":1}`, "u1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, addItemRequest("k", `{"quantity":2}`, "u1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareReportsInFlightRequests(t *testing.T) {
	store := NewMemoryStore()
	req := addItemRequest("busy", `{}`, "u1")
	fingerprint := fingerprintOf(req, []byte(`{}`))
	if _, _, err := store.Reserve(context.Background(), Key{Scope: "u1", Value: "busy"}, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is in flight")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, addItemRequest("retry", `{}`, "u1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, addItemRequest("retry", `{}`, "u1"))
	if first.Code != http.StatusServiceUnavailable || second.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to run, got %d then %d (%d calls)", first.Code, second.Code, calls)
	}
}

func TestMiddlewareReleasesKeyWhenCompleteFails(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, addItemRequest("k", `{}`, "u1"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !store.released {
		t.Fatalf("expected key to be released")
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _, _ = store.Reserve(ctx, Key{Scope: "u", Value: "old"}, "f", fixedTime.Add(-2*time.Hour), time.Hour)
	_, _, _ = store.Reserve(ctx, Key{Scope: "u", Value: "new"}, "f", fixedTime, time.Hour)

	removed, err := store.CleanupExpired(ctx, fixedTime, 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one expired record, got %d", removed)
	}
	state, _, err := store.Reserve(ctx, Key{Scope: "u", Value: "new"}, "f", fixedTime, time.Hour)
	if err != nil || state != StateInFlight {
		t.Fatalf("expected live record to survive, got %v %v", state, err)
	}
}

type failingStore struct {
	*MemoryStore
	released bool
}

func (s *failingStore) Complete(context.Context, Key, string, Record, time.Time, time.Duration) error {
	return errors.New("firestore unavailable")
}

func (s *failingStore) Release(ctx context.Context, key Key) error {
	s.released = true
	return s.MemoryStore.Release(ctx, key)
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error %s, got %s", expected, body.Error)
	}
}
