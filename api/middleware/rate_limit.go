package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// RateLimit caps every client address at cfg.Max requests per cfg.Window.
// Limiter failures let the request through.
func RateLimit(cfg config.RateLimitConfig, limiter pkgredis.RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || limiter == nil || cfg.Max <= 0 || cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r)
			scope := "global:" + ip

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(cfg.Max), cfg.Window)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "rate_limit.unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(cfg.Max) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				retry := cfg.Window
				if ttl, ttlErr := limiter.WindowTTL(ctx, scope); ttlErr == nil && ttl > 0 {
					retry = ttl
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"ip": ip, "attempts": count}), "rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit,
					"Too many requests from this IP, please try again later."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
