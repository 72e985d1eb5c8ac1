package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercatolabs/mercato-backend/api/responses"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
	pkgredis "github.com/mercatolabs/mercato-backend/pkg/redis"
)

const (
	replayTTLStandard = 24 * time.Hour
	replayTTLCritical = 7 * 24 * time.Hour
)

// replayRoute describes one endpoint that honors Idempotency-Key. An empty
// suffix means exact-path match; otherwise the concrete request path must
// carry both the prefix and the suffix. Matching works on r.URL.Path because
// the middleware runs inside a chi group, before leaf routing resolves a
// full route pattern.
type replayRoute struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (rr replayRoute) matches(method, pattern string) bool {
	if rr.method != method {
		return false
	}
	if rr.exact {
		return pattern == rr.prefix
	}
	return strings.HasPrefix(pattern, rr.prefix) && strings.HasSuffix(pattern, rr.suffix)
}

var replayRoutes = []replayRoute{
	{method: http.MethodPost, prefix: "/api/v1/checkout/sessions", exact: true, ttl: replayTTLStandard},
	{method: http.MethodPost, prefix: "/api/v1/checkout/sessions/", suffix: "/coupon", ttl: replayTTLStandard},
	{method: http.MethodPost, prefix: "/api/v1/vendor/notifications/", suffix: "/read", ttl: replayTTLStandard},
	{method: http.MethodPost, prefix: "/api/v1/vendor/notifications/read-all", exact: true, ttl: replayTTLStandard},
	{method: http.MethodPost, prefix: "/api/v1/vendor/orders/", suffix: "/status", ttl: replayTTLStandard},
	// money-moving endpoints keep their replies around much longer
	{method: http.MethodPost, prefix: "/api/v1/checkout/sessions/", suffix: "/confirm", ttl: replayTTLCritical},
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/payments", ttl: replayTTLCritical},
	{method: http.MethodPost, prefix: "/api/v1/vendor-orders/", suffix: "/payments", ttl: replayTTLCritical},
}

// cachedResponse is the JSON document stored in Redis per idempotency key.
// RequestHash pins the key to one request body so a reused key with a
// different payload is rejected instead of silently replayed.
type cachedResponse struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays cached responses for registered mutating endpoints.
// Requests without an Idempotency-Key header on those endpoints are rejected.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := replayTTLFor(r)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if clientKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(body)

			storeKey := store.IdempotencyKey(callerScope(r), clientKey)
			cached, err := store.Get(r.Context(), storeKey)
			if err != nil && !errors.Is(err, redis.Nil) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if cached != "" {
				replayCached(r.Context(), logg, w, cached, fingerprint)
				return
			}

			buf := &bufferedWriter{ResponseWriter: w}
			next.ServeHTTP(buf, r)
			persistResponse(r.Context(), logg, store, storeKey, buf, fingerprint, ttl)
		})
	}
}

func replayCached(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, cached, fingerprint string) {
	var record cachedResponse
	if err := json.Unmarshal([]byte(cached), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func persistResponse(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, storeKey string, buf *bufferedWriter, fingerprint string, ttl time.Duration) {
	record := cachedResponse{
		Status:      buf.statusOrOK(),
		Body:        base64.StdEncoding.EncodeToString(buf.body.Bytes()),
		RequestHash: fingerprint,
	}
	if ct := buf.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		logStoreError(ctx, logg, "marshal idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, storeKey, string(payload), ttl); err != nil {
		logStoreError(ctx, logg, "persist idempotency record", err)
	}
}

// callerScope namespaces the idempotency key per caller, method, and path so
// two customers cannot collide on the same client-chosen key.
func callerScope(r *http.Request) string {
	return strings.Join([]string{
		CustomerIDFromContext(r.Context()),
		VendorIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func requestFingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func replayTTLFor(r *http.Request) (time.Duration, bool) {
	path := r.URL.Path
	if path == "" {
		return 0, false
	}
	for _, route := range replayRoutes {
		if route.matches(r.Method, path) {
			return route.ttl, true
		}
	}
	return 0, false
}

type bufferedWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *bufferedWriter) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

func (b *bufferedWriter) statusOrOK() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func logStoreError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
