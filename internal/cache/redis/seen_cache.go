package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/giratech/dmtrader/internal/domain"
)

const seenKeyPrefix = "dmtrader:seen:"

// SeenCache implements domain.SeenOffers on Redis. Each offer id becomes a
// key with a TTL, so the dedupe set stays bounded no matter how long the
// evaluator runs.
type SeenCache struct {
	client *Client
	ttl    time.Duration
}

var _ domain.SeenOffers = (*SeenCache)(nil)

// NewSeenCache creates a SeenCache with the given entry lifetime.
func NewSeenCache(client *Client, ttl time.Duration) *SeenCache {
	return &SeenCache{client: client, ttl: ttl}
}

// Seen reports whether the offer id was already marked within the TTL
// window, marking it as a side effect when it was not. SETNX makes the
// check-and-mark atomic, so concurrent evaluators cannot both claim an offer.
func (c *SeenCache) Seen(ctx context.Context, offerID string) (bool, error) {
	set, err := c.client.rdb.SetNX(ctx, seenKeyPrefix+offerID, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark seen offer %s: %w", offerID, err)
	}
	return !set, nil
}
