// Package ratelimit provides a Redis-backed fixed-window request limiter.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beaconflags/beacon/internal/platform/httpx"
)

// Limiter counts requests per key in fixed windows backed by Redis, so the
// limit holds across replicas sharing the same Redis. When Redis is
// unreachable the limiter fails open: dropping requests over a counter outage
// would hurt more than briefly exceeding the limit.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
	limit  int
	window time.Duration
	prefix string
}

// New constructs a limiter allowing limit requests per window per key.
func New(client *redis.Client, logger *slog.Logger, prefix string, limit int, window time.Duration) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

// Allow reports whether the request identified by key fits in the current
// window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return true, nil
	}

	window := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, window)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.limit), nil
}

// Middleware enforces the limit per client IP, responding 429 when exceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, err := l.Allow(r.Context(), clientIP(r))
		if err != nil {
			l.logger.Warn("rate limiter unavailable, failing open", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "evaluation rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from forwarding headers.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
