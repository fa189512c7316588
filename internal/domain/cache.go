package domain

import (
	"context"
	"time"
)

// ProjectionCache holds read-optimised copies of projects and orders for
// consumers outside this process.
type ProjectionCache interface {
	SetProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id uint64) (Project, error)
	SetOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id uint64) (Order, error)
	ActiveOrders(ctx context.Context, projectID uint64) ([]uint64, error)
}

// RateLimiter provides rate limiting keyed by caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	// Hold acquires key and keeps renewing it until ctx ends or release is
	// called. lost is closed if the lock cannot be renewed.
	Hold(ctx context.Context, key string, ttl time.Duration) (lost <-chan struct{}, release func(), err error)
}

// IdempotencyStore remembers responses keyed by a client-supplied key.
type IdempotencyStore interface {
	// Reserve returns true if key was free and is now reserved for ttl.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key string, resp []byte, ttl time.Duration) error
	// Load returns the saved response, or nil if key is free or only
	// reserved.
	Load(ctx context.Context, key string) ([]byte, error)
	// Release frees a reservation whose request did not complete.
	Release(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
