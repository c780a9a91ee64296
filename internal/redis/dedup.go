package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 24 * time.Hour

// Deduper remembers which keys were already handled so redelivered messages
// can be skipped.
type Deduper interface {
	// Claim marks key as handled and reports whether this call was the first.
	Claim(ctx context.Context, key string) (bool, error)
	// Forget drops the mark so a later redelivery is handled again.
	Forget(ctx context.Context, key string) error
}

type deduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a Redis-backed Deduper. Marks expire after ttl
// (24h when ttl <= 0).
func NewDeduper(client *redis.Client, prefix string, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &deduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *deduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *deduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis forget %s: %w", key, err)
	}
	return nil
}
