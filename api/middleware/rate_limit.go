package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mercatolabs/mercato-backend/api/responses"
	"github.com/mercatolabs/mercato-backend/pkg/config"
	pkgerrors "github.com/mercatolabs/mercato-backend/pkg/errors"
	"github.com/mercatolabs/mercato-backend/pkg/logger"
)

type rateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// PaymentRateLimit throttles payment initiation per caller inside a fixed
// window. The scope key prefers the authenticated customer and falls back to
// client IP for guest checkout. Counter errors degrade open: a Redis outage
// must not block payments.
func PaymentRateLimit(cfg config.RateLimitConfig, store rateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.PaymentEnabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := paymentScope(r)

			allowed, count, err := store.FixedWindowAllow(ctx, scope, cfg.PaymentLimit, cfg.PaymentWindow)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "payment rate limit check failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"attempts":       count,
						"limit":          cfg.PaymentLimit,
						"window_seconds": int(cfg.PaymentWindow.Seconds()),
					})
					logg.Warn(logCtx, "payment.rate_limit.blocked")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many payment attempts"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func paymentScope(r *http.Request) string {
	if customerID := CustomerIDFromContext(r.Context()); customerID != "" {
		return fmt.Sprintf("payments:customer:%s", customerID)
	}
	return fmt.Sprintf("payments:ip:%s", clientIP(r))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
