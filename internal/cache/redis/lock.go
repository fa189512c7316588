package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// unlockLua deletes a lock only if the caller still owns it.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends a lock's TTL only if the caller still owns it.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SET NX PX and owner-checked
// Lua scripts for release and renewal.
type LockManager struct {
	rdb       *redis.Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:       c.rdb,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

func (lm *LockManager) tryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := lm.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

func (lm *LockManager) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = lm.unlockSc.Run(ctx, lm.rdb, []string{lockKey(key)}, token).Err()
}

// Acquire takes key for ttl. It returns domain.ErrLockHeld if another owner
// has it. The unlock function is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.tryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { lm.release(key, token) }) }, nil
}

// Hold takes key and renews it every ttl/3 until ctx ends or release is
// called. lost is closed when a renewal finds the lock gone or owned by
// someone else; the holder must stop writing at that point.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (<-chan struct{}, func(), error) {
	token, err := lm.tryLock(ctx, key, ttl)
	if err != nil {
		return nil, nil, err
	}

	lost := make(chan struct{})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				n, err := lm.refreshSc.Run(ctx, lm.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Int64()
				if err == nil && n == 1 {
					continue
				}
				if err != nil && ctx.Err() != nil {
					return
				}
				// A transient error is retried until the TTL runs out; an
				// explicit 0 means ownership is gone.
				if err == nil {
					close(lost)
					return
				}
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			lm.release(key, token)
		})
	}
	return lost, release, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
