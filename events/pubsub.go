package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// PubSubPublisher publishes events to a Google Cloud Pub/Sub topic and
// waits for the server to acknowledge each one.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher returns a publisher for an existing topic. Message
// ordering is enabled so events of one aggregate arrive in order on
// subscriptions that ask for it.
func NewPubSubPublisher(ctx context.Context, client *pubsub.Client, topicID string) (*PubSubPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topicID == "" {
		return nil, errors.New("topic is required")
	}
	t := client.Topic(topicID)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !ok {
		return nil, fmt.Errorf("topic %q does not exist", topicID)
	}
	t.EnableMessageOrdering = true
	return &PubSubPublisher{topic: t}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, e ledger.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: e.AggregateID,
		Attributes: map[string]string{
			"event_type": string(e.Type),
			"event_id":   e.ID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(e.AggregateID)
		return fmt.Errorf("pubsub publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
