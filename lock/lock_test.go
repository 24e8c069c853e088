package lock_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	// GIVEN: 50 goroutines incrementing a counter under one key
	l := lock.NewLocal()
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)

	// WHEN: All of them run at once
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "obligation:1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	// THEN: Never more than one holder, and the key table is empty again
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Len())
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelledWhileWaiting(t *testing.T) {
	// GIVEN: A held key
	l := lock.NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// WHEN: A second caller waits with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")

	// THEN: It gives up with the context error and leaves no waiter behind
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}

func TestRedis_LockNotObtained(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	cfg := lock.DefaultRedisConfig()
	cfg.Prefix = "ledger-test:" + ledger.NewID() + ":"
	cfg.MaxRetries = 2
	cfg.RetryEvery = 10 * time.Millisecond
	l := lock.NewRedis(rdb, cfg, nil)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "obligation:1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "obligation:1")
	assert.True(t, errors.Is(err, ledger.ErrLockNotObtained))
	assert.True(t, ledger.IsRetryable(err))

	unlock()
	unlock2, err := l.Lock(ctx, "obligation:1")
	require.NoError(t, err)
	unlock2()
}
