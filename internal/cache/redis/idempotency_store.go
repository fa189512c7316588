package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// pendingMarker is stored while a request is in flight. Saved responses are
// JSON and never start with a NUL byte.
var pendingMarker = []byte{0}

// releaseLua deletes a key only while it still holds the pending marker, so
// a late Release never discards a saved response.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// IdempotencyStore implements domain.IdempotencyStore so retries reaching
// any API instance replay the same response. Keys arrive already namespaced
// by the HTTP middleware.
type IdempotencyStore struct {
	rdb       *redis.Client
	releaseSc *redis.Script
}

// NewIdempotencyStore creates an IdempotencyStore backed by the given Client.
func NewIdempotencyStore(c *Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: c.rdb, releaseSc: redis.NewScript(releaseLua)}
}

// Reserve claims key for ttl if nobody holds it.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Save replaces the reservation with the final response.
func (s *IdempotencyStore) Save(ctx context.Context, key string, resp []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, resp, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save idempotency key: %w", err)
	}
	return nil
}

// Load returns the saved response, or nil when key is free or pending.
func (s *IdempotencyStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load idempotency key: %w", err)
	}
	if bytes.Equal(data, pendingMarker) {
		return nil, nil
	}
	return data, nil
}

// Release frees a pending reservation.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.releaseSc.Run(ctx, s.rdb, []string{key}, pendingMarker).Err(); err != nil {
		return fmt.Errorf("redis: release idempotency key: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)
