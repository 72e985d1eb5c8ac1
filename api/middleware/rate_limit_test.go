package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mercatolabs/mercato-backend/pkg/config"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

type fakeWindowStore struct {
	counts map[string]int64
	err    error
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{counts: make(map[string]int64)}
}

func (f *fakeWindowStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}

func paymentLimitConfig(limit int64) config.RateLimitConfig {
	return config.RateLimitConfig{
		PaymentLimit:  limit,
		PaymentWindow: time.Minute,
	}
}

func TestPaymentRateLimitBlocksOverLimit(t *testing.T) {
	store := newFakeWindowStore()
	handler := PaymentRateLimit(paymentLimitConfig(2), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", nil)
		req.RemoteAddr = "10.0.0.7:41234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 {
			if rec.Code != http.StatusAccepted {
				t.Fatalf("request %d: expected success before limit, got %d", i, rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 over limit, got %d", rec.Code)
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse error response: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("expected code %s got %s", pkgerrors.CodeRateLimit, payload.Error.Code)
		}
	}
}

func TestPaymentRateLimitScopesByCustomer(t *testing.T) {
	store := newFakeWindowStore()
	handler := PaymentRateLimit(paymentLimitConfig(1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, customer := range []string{"cust-a", "cust-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", nil)
		req = req.WithContext(WithCustomerID(req.Context(), customer))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("customer %s: expected own window, got %d", customer, rec.Code)
		}
	}
	if len(store.counts) != 2 {
		t.Fatalf("expected separate counters per customer, got %d", len(store.counts))
	}
}

func TestPaymentRateLimitDegradesOpenOnStoreError(t *testing.T) {
	store := newFakeWindowStore()
	store.err = errors.New("redis down")
	handler := PaymentRateLimit(paymentLimitConfig(1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("counter outage must not block payments, got %d", rec.Code)
	}
}

func TestPaymentRateLimitDisabledPassesThrough(t *testing.T) {
	store := newFakeWindowStore()
	handler := PaymentRateLimit(config.RateLimitConfig{}, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("disabled limiter must pass through, got %d", rec.Code)
	}
	if len(store.counts) != 0 {
		t.Fatalf("disabled limiter must not consult the store")
	}
}
