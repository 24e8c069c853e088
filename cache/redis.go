package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a ProcessedStore shared by every instance pointing at the same
// Redis server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. An empty prefix defaults to
// "ledger:processed:".
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "ledger:processed:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// MarkProcessed uses SETNX so two consumers racing on one key see exactly
// one true.
func (r *Redis) MarkProcessed(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check %s processed: %w", key, err)
	}
	return n > 0, nil
}

var _ ProcessedStore = (*Redis)(nil)
