// Package ratelimit throttles chat requests per user with a fixed-window
// counter in redis, so the limit holds across server instances.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kenchat/internal/auth"
	"kenchat/internal/config"
	"kenchat/internal/logger"
	"kenchat/internal/metrics"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// Limiter is a fixed-window rate limiter backed by redis
type Limiter struct {
	redis *redis.Client
	cfg   config.RateLimitConfig
	now   func() time.Time
}

// NewLimiter creates a new Limiter
func NewLimiter(rdb *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{redis: rdb, cfg: cfg, now: time.Now}
}

// Allow counts one request for the user and reports whether it fits in the
// current window
func (l *Limiter) Allow(ctx context.Context, username string) (allowed bool, used int64, resetAt time.Time, err error) {
	now := l.now().UTC()
	windowStart := now.Truncate(l.cfg.Window)
	windowEnd := windowStart.Add(l.cfg.Window)
	ttl := int64(windowEnd.Sub(now).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("kenchat:ratelimit:%s:%d", username, windowStart.Unix())
	res, err := incrWithTTLScript.Run(ctx, l.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= l.cfg.MaxRequests, res, windowEnd, nil
}

// Middleware rejects requests over the per-user limit with 429. A redis
// outage fails open: the request proceeds and the error is logged.
func (l *Limiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := auth.UsernameFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, used, resetAt, err := l.Allow(r.Context(), username)
		if err != nil {
			logger.Log.WithError(err).Warn("Rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.Global().RateLimitedTotal.Inc()
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"code":     http.StatusTooManyRequests,
				"message":  "Rate limit exceeded",
				"used":     used,
				"reset_at": resetAt.Format(time.RFC3339),
			})
			return
		}

		next.ServeHTTP(w, r)
	}
}
