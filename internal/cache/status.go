package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyOrderStatus = "order_status:%d"

// StatusCache keeps a short-lived copy of resolved order statuses so hot
// order pages don't hit Postgres on every poll. A nil *StatusCache is a
// valid no-op.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(addr string, ttl time.Duration) *StatusCache {
	if addr == "" {
		return nil
	}
	return &StatusCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (string, bool) {
	if c == nil {
		return "", false
	}
	status, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Result()
	if err != nil {
		return "", false
	}
	return status, true
}

func (c *StatusCache) Set(ctx context.Context, orderID int64, status string) {
	if c == nil {
		return
	}
	_ = c.rdb.Set(ctx, fmt.Sprintf(keyOrderStatus, orderID), status, c.ttl).Err()
}

// Invalidate must run after every order mutation; the next read repopulates
// from the resolver.
func (c *StatusCache) Invalidate(ctx context.Context, orderID int64) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Err()
}

func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
