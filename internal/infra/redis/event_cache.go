package redis

import (
	"context"
	"time"
)

// EventCache remembers processed provider event ids so duplicate webhook
// deliveries are dropped before they reach the database. SETNX makes the
// check-and-mark a single round trip.
type EventCache struct {
	client RedisClient
}

func NewEventCache(client RedisClient) *EventCache {
	return &EventCache{client: client}
}

// MarkProcessed reports true when this is the first time the key is seen
// within the TTL window.
func (c *EventCache) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, 1, ttl)
}
