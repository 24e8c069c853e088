package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is an in-process queue. Failed messages are put back after the
// retry backoff, so ordering is not preserved across retries.
type Memory struct {
	ch     chan Message
	retry  Retry
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates a queue buffering up to capacity messages.
func NewMemory(capacity int, retry Retry, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		ch:     make(chan Message, capacity),
		retry:  retry.normalize(),
		logger: logger.Named("queue"),
		done:   make(chan struct{}),
	}
}

func (q *Memory) Publish(ctx context.Context, key string, value []byte) error {
	return q.put(ctx, Message{Key: key, Value: value, Attempt: 1})
}

func (q *Memory) put(ctx context.Context, m Message) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- m:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case m := <-q.ch:
			q.handle(ctx, h, m)
		}
	}
}

func (q *Memory) handle(ctx context.Context, h Handler, m Message) {
	err := h(ctx, m)
	if err == nil {
		return
	}
	if m.Attempt >= q.retry.MaxAttempts {
		q.logger.Error("message dropped after max attempts",
			zap.String("key", m.Key),
			zap.Int("attempts", m.Attempt),
			zap.Error(err))
		return
	}
	q.logger.Warn("message will be redelivered",
		zap.String("key", m.Key),
		zap.Int("attempt", m.Attempt),
		zap.Error(err))

	m.Attempt++
	time.AfterFunc(q.retry.Backoff, func() {
		if err := q.put(context.Background(), m); err != nil {
			q.logger.Warn("redelivery abandoned", zap.String("key", m.Key), zap.Error(err))
		}
	})
}

// Len returns the number of messages waiting.
func (q *Memory) Len() int { return len(q.ch) }

// Close stops consumers and rejects further publishes.
func (q *Memory) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*Memory)(nil)
