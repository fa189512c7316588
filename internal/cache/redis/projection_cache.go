package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// ProjectionCache implements domain.ProjectionCache. Entries are rewritten
// after every committed batch that touches them, so the TTL only bounds
// how long an abandoned deployment leaves data behind.
//
// Key schema:
//
//	project:{id}         - hash with field "data" containing JSON
//	project:{id}:orders  - set of active order ids
//	order:{id}           - hash with field "data" containing JSON
type ProjectionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProjectionCache creates a ProjectionCache backed by the given Client.
func NewProjectionCache(c *Client, ttl time.Duration) *ProjectionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProjectionCache{rdb: c.rdb, ttl: ttl}
}

func projectKey(id uint64) string       { return "project:" + strconv.FormatUint(id, 10) }
func projectOrdersKey(id uint64) string { return projectKey(id) + ":orders" }
func orderKey(id uint64) string         { return "order:" + strconv.FormatUint(id, 10) }

// SetProject stores p.
func (pc *ProjectionCache) SetProject(ctx context.Context, p domain.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal project %d: %w", p.ID, err)
	}
	key := projectKey(p.ID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set project %d: %w", p.ID, err)
	}
	return nil
}

// GetProject returns domain.ErrNotFound when the project is not cached.
func (pc *ProjectionCache) GetProject(ctx context.Context, id uint64) (domain.Project, error) {
	var p domain.Project
	if err := pc.get(ctx, projectKey(id), &p); err != nil {
		return domain.Project{}, fmt.Errorf("redis: get project %d: %w", id, err)
	}
	return p, nil
}

// SetOrder stores o and keeps its project's active-order index in step.
func (pc *ProjectionCache) SetOrder(ctx context.Context, o domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redis: marshal order %d: %w", o.ID, err)
	}
	key := orderKey(o.ID)
	idx := projectOrdersKey(o.ProjectID)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, pc.ttl)
	if o.Active {
		pipe.SAdd(ctx, idx, o.ID)
	} else {
		pipe.SRem(ctx, idx, o.ID)
	}
	pipe.Expire(ctx, idx, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set order %d: %w", o.ID, err)
	}
	return nil
}

// GetOrder returns domain.ErrNotFound when the order is not cached.
func (pc *ProjectionCache) GetOrder(ctx context.Context, id uint64) (domain.Order, error) {
	var o domain.Order
	if err := pc.get(ctx, orderKey(id), &o); err != nil {
		return domain.Order{}, fmt.Errorf("redis: get order %d: %w", id, err)
	}
	return o, nil
}

// ActiveOrders returns the ids of a project's active orders, ascending.
func (pc *ProjectionCache) ActiveOrders(ctx context.Context, projectID uint64) ([]uint64, error) {
	members, err := pc.rdb.SMembers(ctx, projectOrdersKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: active orders %d: %w", projectID, err)
	}
	ids, err := parseIDs(members)
	if err != nil {
		return nil, fmt.Errorf("redis: active orders %d: %w", projectID, err)
	}
	return ids, nil
}

func (pc *ProjectionCache) get(ctx context.Context, key string, v any) error {
	data, err := pc.rdb.HGet(ctx, key, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func parseIDs(members []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Compile-time interface check.
var _ domain.ProjectionCache = (*ProjectionCache)(nil)
