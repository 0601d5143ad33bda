package place

import (
	"context"
	"sync"
	"time"
)

// CooldownStore persists the next time a user may paint on a place. A zero
// time means the user has never painted there.
type CooldownStore interface {
	NextAllowed(ctx context.Context, placeID, userID int64) (time.Time, error)
	SetNextAllowed(ctx context.Context, placeID, userID int64, next time.Time) error
}

type cooldownKey struct {
	place, user int64
}

type MemoryCooldowns struct {
	mu sync.Mutex
	m  map[cooldownKey]time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{m: make(map[cooldownKey]time.Time)}
}

func (c *MemoryCooldowns) NextAllowed(_ context.Context, placeID, userID int64) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[cooldownKey{placeID, userID}], nil
}

func (c *MemoryCooldowns) SetNextAllowed(_ context.Context, placeID, userID int64, next time.Time) error {
	c.mu.Lock()
	c.m[cooldownKey{placeID, userID}] = next
	c.mu.Unlock()
	return nil
}

// CachedCooldowns answers reads from memory and writes through to a backing
// store. A miss falls back to the backing store once per key.
type CachedCooldowns struct {
	backing CooldownStore

	mu sync.RWMutex
	m  map[cooldownKey]time.Time
}

func NewCachedCooldowns(backing CooldownStore) *CachedCooldowns {
	return &CachedCooldowns{backing: backing, m: make(map[cooldownKey]time.Time)}
}

func (c *CachedCooldowns) NextAllowed(ctx context.Context, placeID, userID int64) (time.Time, error) {
	k := cooldownKey{placeID, userID}
	c.mu.RLock()
	t, ok := c.m[k]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}
	t, err := c.backing.NextAllowed(ctx, placeID, userID)
	if err != nil {
		return time.Time{}, err
	}
	c.mu.Lock()
	if cur, ok := c.m[k]; !ok || cur.Before(t) {
		c.m[k] = t
	} else {
		t = cur
	}
	c.mu.Unlock()
	return t, nil
}

func (c *CachedCooldowns) SetNextAllowed(ctx context.Context, placeID, userID int64, next time.Time) error {
	c.mu.Lock()
	c.m[cooldownKey{placeID, userID}] = next
	c.mu.Unlock()
	return c.backing.SetNextAllowed(ctx, placeID, userID, next)
}
