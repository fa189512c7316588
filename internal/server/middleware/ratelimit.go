package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the subset of domain.RateLimiter the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit returns middleware that limits each client IP to limit requests
// per window. Limiter errors fail open.
func RateLimit(limiter Limiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:" + extractClientIP(r)

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "middleware: rate limiter unavailable",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RateLimited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP prefers proxy headers and falls back to the remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalLimiter is an in-process token bucket per key, used when Redis is
// not configured. It satisfies domain.RateLimiter.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	maxKeys  int
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a LocalLimiter tracking at most maxKeys clients.
func NewLocalLimiter(maxKeys int) *LocalLimiter {
	if maxKeys <= 0 {
		maxKeys = 10_000
	}
	return &LocalLimiter{limiters: make(map[string]*localEntry), maxKeys: maxKeys}
}

func (l *LocalLimiter) get(key string, limit int, window time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, ok := l.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	if len(l.limiters) >= l.maxKeys {
		l.evict(now, window)
	}
	if limit <= 0 {
		limit = 1
	}
	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	l.limiters[key] = &localEntry{limiter: lim, lastSeen: now}
	return lim
}

// evict drops clients idle for longer than window, or everything if that
// frees nothing.
func (l *LocalLimiter) evict(now time.Time, window time.Duration) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > window {
			delete(l.limiters, k)
		}
	}
	if len(l.limiters) >= l.maxKeys {
		clear(l.limiters)
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.get(key, limit, window).Allow(), nil
}

// Wait blocks until key may proceed under a default one-per-second budget
// unless Allow already configured it.
func (l *LocalLimiter) Wait(ctx context.Context, key string) error {
	return l.get(key, 1, time.Second).Wait(ctx)
}
