package plans

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nextsaas/nextsaas/internal/db/models"
)

// DefaultMemoryCacheSize is used when NewMemoryCache is given a non-positive size
const DefaultMemoryCacheSize = 1024

type memoryEntry struct {
	plan      *models.Plan
	expiresAt time.Time
}

// MemoryCache is a bounded in-process LRU. Expiry is checked against the clock on read,
// so a stale entry stays in the LRU until it is read or evicted.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	clock   Clock
}

// NewMemoryCache creates a MemoryCache holding at most size plans
func NewMemoryCache(size int, clock Clock) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	if clock == nil {
		clock = SystemClock
	}

	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}
	return &MemoryCache{entries: entries, clock: clock}, nil
}

func (c *MemoryCache) Get(_ context.Context, organizationID string) (*models.Plan, time.Time, error) {
	e, ok := c.entries.Get(organizationID)
	if !ok {
		return nil, time.Time{}, ErrCacheMiss
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(organizationID)
		return nil, time.Time{}, ErrCacheMiss
	}
	return e.plan, e.expiresAt, nil
}

func (c *MemoryCache) Set(_ context.Context, organizationID string, plan *models.Plan, expiresAt time.Time) error {
	c.entries.Add(organizationID, memoryEntry{plan: plan, expiresAt: expiresAt})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, organizationID string) error {
	c.entries.Remove(organizationID)
	return nil
}

// Len returns the number of entries, expired ones included
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
