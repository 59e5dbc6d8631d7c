// Package memory provides in-process fallbacks for the cache interfaces used
// when Redis is not configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

// SeenCache implements domain.SeenOffers with a TTL map. Expired entries are
// swept lazily on access, keeping the set bounded over an unattended run
// without a background goroutine.
type SeenCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time

	lastSweep time.Time
}

var _ domain.SeenOffers = (*SeenCache)(nil)

// NewSeenCache creates a SeenCache with the given entry lifetime.
func NewSeenCache(ttl time.Duration) *SeenCache {
	return &SeenCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Seen reports whether the offer id was marked within the TTL window,
// marking it as a side effect when it was not.
func (c *SeenCache) Seen(_ context.Context, offerID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	if exp, ok := c.entries[offerID]; ok && now.Before(exp) {
		return true, nil
	}
	c.entries[offerID] = now.Add(c.ttl)
	return false, nil
}

// Len returns the number of live entries.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(c.now())
	return len(c.entries)
}

// sweep drops expired entries at most once per TTL interval. Callers must
// hold the mutex.
func (c *SeenCache) sweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.ttl {
		return
	}
	for id, exp := range c.entries {
		if !now.Before(exp) {
			delete(c.entries, id)
		}
	}
	c.lastSweep = now
}
