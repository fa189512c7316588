// Package redis implements the ledger's shared-state ports (projection
// cache, signal bus, writer lease, rate limiter and idempotency store) on
// go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client. Addr may be
// host:port or a redis:// / rediss:// URL; URL fields win over the rest.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the go-redis connection pool shared by every port in this
// package.
type Client struct {
	rdb *redis.Client
}

// New connects and pings Redis.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	c := &Client{rdb: rdb}
	if err := c.Health(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

func options(cfg ClientConfig) (*redis.Options, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		if opts.PoolSize == 0 {
			opts.PoolSize = cfg.PoolSize
		}
		if cfg.MaxRetries != 0 {
			opts.MaxRetries = cfg.MaxRetries
		}
		return opts, nil
	}

	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: 5 * time.Second,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
