package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/code-payments/flipchat-iap/entitlement"
	"github.com/code-payments/flipchat-iap/iap"
)

type status struct {
	tx    iap.Transaction
	found bool
}

// Cache remembers entitlement status point queries for a fixed TTL, counted
// from when the answer was looked up. Invalidate must be called whenever a
// transaction for a product is finished, so a new purchase or revocation is
// never masked by a cached answer.
type Cache struct {
	finder entitlement.Finder
	cache  *ttlcache.Cache

	// Bumped by Invalidate. A lookup that raced an invalidation isn't cached.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewInCache(finder entitlement.Finder, ttl time.Duration) *Cache {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	cache.SkipTtlExtensionOnHit(true)

	return &Cache{
		finder:      finder,
		cache:       cache,
		generations: map[string]uint64{},
	}
}

func (c *Cache) FindCurrent(ctx context.Context, productID string) (iap.Transaction, bool) {
	cached, ok := c.cache.Get(productID)
	if ok {
		s := cached.(*status)
		return s.tx.Clone(), s.found
	}

	c.mu.Lock()
	generation := c.generations[productID]
	c.mu.Unlock()

	tx, found := c.finder.FindCurrent(ctx, productID)

	c.mu.Lock()
	if c.generations[productID] == generation {
		c.cache.Set(productID, &status{tx: tx.Clone(), found: found})
	}
	c.mu.Unlock()

	return tx, found
}

func (c *Cache) Invalidate(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[productID]++
	c.cache.Remove(productID)
}

// Close stops the cache's expiration goroutine.
func (c *Cache) Close() {
	c.cache.Close()
}
