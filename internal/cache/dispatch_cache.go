// Package cache implements the optional Redis-backed marker of recently
// dispatched messages. Unlike the in-process guard it survives restarts, so
// it narrows (but cannot close) the duplicate-send window when a status
// write failed after a successful transport send. The store-level
// conditional claim remains the source of truth; a nil cache disables the
// fast path entirely.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dispatch:"

// DispatchCache marks message ids as dispatched for a bounded TTL.
type DispatchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDispatchCache wraps an existing Redis client. The TTL bounds how long
// a marker suppresses re-dispatch.
func NewDispatchCache(rdb *redis.Client, ttl time.Duration) *DispatchCache {
	return &DispatchCache{rdb: rdb, ttl: ttl}
}

type dispatchedValue struct {
	ExternalID string    `json:"externalId"`
	SentAt     time.Time `json:"sentAt"`
}

// MarkDispatched records that messageID was handed to the transport. Safe to
// call on a nil receiver.
func (c *DispatchCache) MarkDispatched(ctx context.Context, messageID, externalID string, sentAt time.Time) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(dispatchedValue{ExternalID: externalID, SentAt: sentAt.UTC()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+messageID, b, c.ttl).Err()
}

// WasDispatched reports whether a marker exists for messageID. Safe to call
// on a nil receiver (always false).
func (c *DispatchCache) WasDispatched(ctx context.Context, messageID string) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	_, err := c.rdb.Get(ctx, keyPrefix+messageID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
