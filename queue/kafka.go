package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures a consumer-group backed queue.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Retry   Retry
}

// Kafka publishes keyed messages to a topic and consumes them as part of a
// consumer group. Messages with the same key land on the same partition,
// so one receipt is never handled by two consumers at once.
type Kafka struct {
	writer *kafka.Writer
	reader *kafka.Reader
	retry  Retry
	logger *zap.Logger
}

func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka queue: brokers, topic and group id are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		}),
		retry:  cfg.Retry.normalize(),
		logger: logger.Named("queue.kafka"),
	}, nil
}

func (q *Kafka) Publish(ctx context.Context, key string, value []byte) error {
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Consume fetches without auto-commit and commits each offset only after
// the handler has succeeded or the message has used up its attempts. A
// crash in between means the message is delivered again.
func (q *Kafka) Consume(ctx context.Context, h Handler) error {
	for {
		km, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if !q.handle(ctx, h, km) {
			return nil
		}
		if err := q.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", km.Offset, err)
		}
	}
}

// handle runs h with retries. It returns false if ctx ended first, in which
// case the offset must not be committed.
func (q *Kafka) handle(ctx context.Context, h Handler, km kafka.Message) bool {
	m := Message{Key: string(km.Key), Value: km.Value}
	for m.Attempt = 1; ; m.Attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		if m.Attempt >= q.retry.MaxAttempts {
			q.logger.Error("message dropped after max attempts",
				zap.String("key", m.Key),
				zap.Int64("offset", km.Offset),
				zap.Int("attempts", m.Attempt),
				zap.Error(err))
			return true
		}
		q.logger.Warn("handler failed, retrying",
			zap.String("key", m.Key),
			zap.Int("attempt", m.Attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.retry.Backoff):
		}
	}
}

func (q *Kafka) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}

var _ Queue = (*Kafka)(nil)
