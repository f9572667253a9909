package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces plan cache keys
const RedisKeyPrefix = "nextsaas:plan:"

type redisEntry struct {
	Plan      *models.Plan `json:"plan"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// RedisCache shares plans between gateway replicas. Values are JSON; the Redis TTL is
// derived from the entry's expiry and the expiry is checked again on read.
type RedisCache struct {
	client redis.UniversalClient
	clock  Clock
}

// NewRedisCache creates a RedisCache on an existing client
func NewRedisCache(client redis.UniversalClient, clock Clock) *RedisCache {
	if clock == nil {
		clock = SystemClock
	}
	return &RedisCache{client: client, clock: clock}
}

func redisKey(organizationID string) string {
	return RedisKeyPrefix + organizationID
}

func (c *RedisCache) Get(ctx context.Context, organizationID string) (*models.Plan, time.Time, error) {
	raw, err := c.client.Get(ctx, redisKey(organizationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode cached plan: %w", err)
	}
	if e.Plan == nil || !c.clock.Now().Before(e.ExpiresAt) {
		return nil, time.Time{}, ErrCacheMiss
	}
	return e.Plan, e.ExpiresAt, nil
}

func (c *RedisCache) Set(ctx context.Context, organizationID string, plan *models.Plan, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.clock.Now())
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(redisEntry{Plan: plan, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(organizationID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, organizationID string) error {
	if err := c.client.Del(ctx, redisKey(organizationID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
