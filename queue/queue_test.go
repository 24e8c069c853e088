package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/queue"
)

func fastRetry(n int) queue.Retry { return queue.Retry{MaxAttempts: n, Backoff: time.Millisecond} }

func consume(t *testing.T, q queue.Queue, h queue.Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, q.Consume(ctx, h))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMemory_DeliversEveryMessage(t *testing.T) {
	q := queue.NewMemory(8, fastRetry(1), nil)
	defer q.Close()
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]string{}
	consume(t, q, func(_ context.Context, m queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[m.Key] = string(m.Value)
		return nil
	})

	require.NoError(t, q.Publish(ctx, "a", []byte("1")))
	require.NoError(t, q.Publish(ctx, "b", []byte("2")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestMemory_RedeliversUntilSuccess(t *testing.T) {
	// GIVEN: A handler that fails twice
	q := queue.NewMemory(8, fastRetry(5), nil)
	defer q.Close()

	var mu sync.Mutex
	var attempts []int
	consume(t, q, func(_ context.Context, m queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, m.Attempt)
		if m.Attempt < 3 {
			return errors.New("extractor unavailable")
		}
		return nil
	})

	// WHEN: One message is published
	require.NoError(t, q.Publish(context.Background(), "r-1", nil))

	// THEN: It is handled on the third attempt and not again
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 3
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestMemory_GivesUpAfterMaxAttempts(t *testing.T) {
	q := queue.NewMemory(8, fastRetry(2), nil)
	defer q.Close()

	var mu sync.Mutex
	calls := 0
	consume(t, q, func(context.Context, queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("always fails")
	})
	require.NoError(t, q.Publish(context.Background(), "bad", nil))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestMemory_PublishAfterClose(t *testing.T) {
	q := queue.NewMemory(1, queue.DefaultRetry(), nil)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), "k", nil)
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.NoError(t, q.Consume(context.Background(), func(context.Context, queue.Message) error { return nil }))
}

func TestNewKafka_RequiresConfig(t *testing.T) {
	_, err := queue.NewKafka(queue.KafkaConfig{Topic: "receipts"}, nil)
	assert.Error(t, err)
}
