package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WindowLimiter counts requests per client IP in a fixed window kept in
// Redis, so every process serving the route shares one count.
type WindowLimiter struct {
	client redis.Cmdable
	prefix string
	max    int64
	window time.Duration
	logger *zap.Logger
}

func NewWindowLimiter(client redis.Cmdable, name string, max int, window time.Duration, logger *zap.Logger) *WindowLimiter {
	return &WindowLimiter{
		client: client,
		prefix: "ratelimit:" + name + ":",
		max:    int64(max),
		window: window,
		logger: logger.Named("rate_limit").With(zap.String("limiter", name)),
	}
}

// Allow counts one request for key. It reports whether the request is within
// the limit and how long until the window resets.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key

	// SETNX starts the window with its expiry; INCR keeps the TTL.
	pipe := l.client.TxPipeline()
	pipe.SetNX(ctx, k, 0, l.window)
	count := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", k, err)
	}
	return count.Val() <= l.max, ttl.Val(), nil
}

// Handler rejects requests over the limit with 429. When Redis is
// unreachable requests are let through and the failure is logged.
func (l *WindowLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, reset, err := l.Allow(r.Context(), clientIP(r))
		if err != nil {
			l.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			retryAfter := int(reset.Seconds()) + 1
			if reset <= 0 {
				retryAfter = int(l.window.Seconds())
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too many requests, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
