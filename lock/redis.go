package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// RedisConfig tunes the distributed lock.
type RedisConfig struct {
	Prefix     string        // key namespace, e.g. "ledger:lock:"
	TTL        time.Duration // lock expiry if the holder dies
	RetryEvery time.Duration
	MaxRetries int
}

// DefaultRedisConfig holds a lock for up to 30s and waits about 5s for it.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:     "ledger:lock:",
		TTL:        30 * time.Second,
		RetryEvery: 100 * time.Millisecond,
		MaxRetries: 50,
	}
}

// Redis is a ledger.Locker shared by every server instance.
type Redis struct {
	client *redislock.Client
	cfg    RedisConfig
	logger *zap.Logger
}

var _ ledger.Locker = (*Redis)(nil)

// NewRedis wraps a go-redis client.
func NewRedis(rdb redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: redislock.New(rdb),
		cfg:    cfg,
		logger: logger.Named("lock"),
	}
}

// Lock obtains key, retrying linearly. When the lock stays taken the error
// wraps ledger.ErrLockNotObtained so callers can retry later.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lk, err := r.client.Obtain(ctx, r.cfg.Prefix+key, r.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.cfg.RetryEvery), r.cfg.MaxRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		// The request context may already be cancelled.
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
