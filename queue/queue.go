/*
Package queue provides at-least-once work queues.

DELIVERY:
  A message is handed to the Handler until it returns nil or MaxAttempts is
  reached. Handlers must therefore be idempotent per Message.Key. Messages
  that exhaust their attempts are logged and dropped.

IMPLEMENTATIONS:
  Memory  in-process buffered channel, for tests and single-instance runs
  Kafka   consumer group over segmentio/kafka-go, offsets committed only
          after the handler finishes
*/
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Message is one unit of work. Attempt starts at 1.
type Message struct {
	Key     string
	Value   []byte
	Attempt int
}

// Handler processes a message. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, m Message) error

// Queue is a keyed at-least-once work queue.
type Queue interface {
	Publish(ctx context.Context, key string, value []byte) error
	// Consume blocks, feeding messages to h until ctx is done or the queue
	// is closed. It returns nil on a clean shutdown.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Retry holds the redelivery policy shared by the implementations.
type Retry struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetry gives five attempts, 200ms apart.
func DefaultRetry() Retry {
	return Retry{MaxAttempts: 5, Backoff: 200 * time.Millisecond}
}

func (r Retry) normalize() Retry {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 1
	}
	if r.Backoff < 0 {
		r.Backoff = 0
	}
	return r
}
