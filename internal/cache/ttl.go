// Package cache provides a small in-process TTL cache.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry stores a cached value and its absolute expiration timestamp.
type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
}

// TTL is a goroutine-safe map-backed cache where every entry expires after
// the same duration. Expired entries are treated as misses until
// PurgeExpired or RunJanitor removes them.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[K]entry[V]

	loads singleflight.Group
}

// New constructs a cache whose entries live for ttl. A ttl <= 0 disables expiry.
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:   ttl,
		items: make(map[K]entry[V]),
	}
}

// now is a small indirection to allow test stubbing.
var now = time.Now

func (c *TTL[K, V]) live(e entry[V]) bool {
	return e.expiresAt.IsZero() || now().Before(e.expiresAt)
}

// Get returns the value and whether it was present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, ok := c.items[key]
	if !ok || !c.live(e) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if c.ttl > 0 {
		exp = now().Add(c.ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: exp}
}

// Delete removes a key if present. A load already in flight for key is
// forgotten so later misses do not join it.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	c.loads.Forget(flightKey(key))
}

// PurgeExpired removes expired entries and returns how many were removed.
func (c *TTL[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.items {
		if !c.live(e) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// RunJanitor purges expired entries every interval until ctx is done.
func (c *TTL[K, V]) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PurgeExpired()
		}
	}
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Concurrent misses for the same key share one load.
// Errors from load are returned and not cached.
func (c *TTL[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.loads.Do(flightKey(key), func() (any, error) {
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

func flightKey[K comparable](key K) string {
	return fmt.Sprint(key)
}
