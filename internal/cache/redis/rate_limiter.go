package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// minRetry keeps Wait from spinning when the script reports a slot is
// already free.
const minRetry = 10 * time.Millisecond

// RateLimiter implements domain.RateLimiter as a sliding-window log in a
// sorted set, shared by every API instance.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	now    func() time.Time

	// Wait takes no limits of its own; it admits waitLimit per waitWindow.
	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates a RateLimiter. Zero wait limits mean one per
// second.
func NewRateLimiter(c *Client, waitLimit int, waitWindow time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:        c.rdb,
		script:     redis.NewScript(slidingWindowLua),
		now:        time.Now,
		waitLimit:  max(waitLimit, 1),
		waitWindow: orDefault(waitWindow, time.Second),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// admission is the script's verdict for one request.
type admission struct {
	allowed    bool
	count      int64
	retryAfter time.Duration
}

func parseAdmission(res []int64) (admission, error) {
	if len(res) != 3 {
		return admission{}, fmt.Errorf("unexpected script reply %v", res)
	}
	return admission{
		allowed:    res[0] == 1,
		count:      res[1],
		retryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}

func (rl *RateLimiter) admit(ctx context.Context, key string, limit int, window time.Duration) (admission, error) {
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return admission{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	a, err := parseAdmission(res)
	if err != nil {
		return admission{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return a, nil
}

// Allow records one request for key if it fits in limit per window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	a, err := rl.admit(ctx, key, limit, window)
	return a.allowed, err
}

// Wait blocks until key is admitted, sleeping until the oldest request in
// the window expires rather than polling.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		a, err := rl.admit(ctx, key, rl.waitLimit, rl.waitWindow)
		if err != nil {
			return err
		}
		if a.allowed {
			return nil
		}
		timer := time.NewTimer(max(a.retryAfter, minRetry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
