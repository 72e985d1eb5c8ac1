package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
)

type fakeReplayStore struct {
	data map[string]string
	gets int
}

func newFakeReplayStore() *fakeReplayStore {
	return &fakeReplayStore{data: make(map[string]string)}
}

func (f *fakeReplayStore) Get(_ context.Context, key string) (string, error) {
	f.gets++
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeReplayStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeReplayStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeReplayStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func TestReplayRouteSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"start session", http.MethodPost, "/api/v1/checkout/sessions", replayTTLStandard, true},
		{"apply coupon", http.MethodPost, "/api/v1/checkout/sessions/abc123/coupon", replayTTLStandard, true},
		{"confirm", http.MethodPost, "/api/v1/checkout/sessions/abc123/confirm", replayTTLCritical, true},
		{"order payments", http.MethodPost, "/api/v1/orders/9d2/payments", replayTTLCritical, true},
		{"vendor order payments", http.MethodPost, "/api/v1/vendor-orders/9d2/payments", replayTTLCritical, true},
		{"fulfillment status", http.MethodPost, "/api/v1/vendor/orders/9d2/status", replayTTLStandard, true},
		{"mark read", http.MethodPost, "/api/v1/vendor/notifications/9d2/read", replayTTLStandard, true},
		{"read all", http.MethodPost, "/api/v1/vendor/notifications/read-all", replayTTLStandard, true},
		{"summary is not guarded", http.MethodGet, "/api/v1/checkout/sessions/abc123", 0, false},
		{"guest token is not guarded", http.MethodPost, "/api/v1/carts/guest-token", 0, false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		ttl, ok := replayTTLFor(req)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

// Mounts the guard the way the API router does, inside the /api/v1 group, so
// the test fails if group-level mounting ever stops engaging on leaf routes.
func TestIdempotencyEngagesThroughRouter(t *testing.T) {
	store := newFakeReplayStore()
	handlerCalled := false

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Idempotency(store, nil))
		r.Route("/checkout", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", func(w http.ResponseWriter, _ *http.Request) {
					handlerCalled = true
					w.WriteHeader(http.StatusCreated)
				})
			})
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", rec.Code)
	}
	if handlerCalled {
		t.Fatalf("handler must not run without idempotency key")
	}

	keyed := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(`{}`))
	keyed.Header.Set("Idempotency-Key", "session-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, keyed)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with idempotency key, got %d", rec.Code)
	}
	if !handlerCalled {
		t.Fatalf("handler should run on first keyed request")
	}
	if store.gets == 0 {
		t.Fatalf("store was never consulted")
	}
	if len(store.data) != 1 {
		t.Fatalf("expected one cached response, got %d", len(store.data))
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	store := newFakeReplayStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/abc/confirm", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeReplayStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", strings.NewReader(`{"method":"card"}`))
	first.Header.Set("Idempotency-Key", "pay-1")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, first)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", rec.Code)
	}

	replay := httptest.NewRequest(http.MethodPost, "/api/v1/orders/9d2/payments", strings.NewReader(`{"method":"card"}`))
	replay.Header.Set("Idempotency-Key", "pay-1")
	rec = httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeReplayStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/abc/confirm", strings.NewReader(`{"a":1}`))
	first.Header.Set("Idempotency-Key", "confirm-1")
	mw(handler).ServeHTTP(httptest.NewRecorder(), first)

	changed := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/abc/confirm", strings.NewReader(`{"a":2}`))
	changed.Header.Set("Idempotency-Key", "confirm-1")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, changed)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}
