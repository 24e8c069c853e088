/*
Package events delivers ledger events to the outside world.

Every sink implements ledger.Publisher. Services publish after their
transaction commits and only log publish failures, so a broker outage never
rolls back a payment or a charge.

  KafkaPublisher   one topic, message key = aggregate id
  PubSubPublisher  one Google Cloud Pub/Sub topic, ordering key = aggregate id
  LogPublisher     structured log line per event
  Multi            fan-out to several sinks
*/
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// Encode is the wire format shared by the broker sinks.
func Encode(e ledger.Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return b, nil
}

// Multi publishes to every sink and joins their errors.
type Multi []ledger.Publisher

func (m Multi) Publish(ctx context.Context, e ledger.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
