package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENTS - Emitted after commit, delivered by someone else
// =============================================================================

type EventType string

const (
	EventLateFeeCharged   EventType = "late_fee.charged"
	EventLateFeeWaived    EventType = "late_fee.waived"
	EventPaymentRecorded  EventType = "payment.recorded"
	EventTrustTransferred EventType = "trust.transfer_completed"
)

// Event is a notification about a committed ledger change. AggregateID is
// the obligation or account the event is about and is used as the
// partition key by the brokers.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     any       `json:"payload"`
}

// NewEvent stamps a new event with a fresh id.
func NewEvent(t EventType, aggregateID string, at time.Time, payload any) Event {
	return Event{ID: NewID(), Type: t, AggregateID: aggregateID, OccurredAt: at.UTC(), Payload: payload}
}

type LateFeeChargedPayload struct {
	ChargeID     ChargeID        `json:"charge_id"`
	ObligationID ObligationID    `json:"obligation_id"`
	PeriodStart  Date            `json:"period_start"`
	PeriodEnd    Date            `json:"period_end"`
	Amount       decimal.Decimal `json:"amount"`
	AsOf         Date            `json:"as_of"`
}

type LateFeeWaivedPayload struct {
	ChargeID     ChargeID        `json:"charge_id"`
	ObligationID ObligationID    `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

type PaymentRecordedPayload struct {
	PaymentID    PaymentID       `json:"payment_id"`
	ObligationID ObligationID    `json:"obligation_id"`
	Amount       decimal.Decimal `json:"amount"`
	Allocated    decimal.Decimal `json:"allocated"`
	Remainder    decimal.Decimal `json:"remainder"`
	PaymentDate  Date            `json:"payment_date"`
}

type TrustTransferredPayload struct {
	TransferID string          `json:"transfer_id"`
	From       AccountID       `json:"from"`
	To         AccountID       `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
}

// Publisher hands events to the notification dispatcher.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// =============================================================================
// LOCKER - Per-record mutual exclusion across requests and instances
// =============================================================================

// Locker serializes work on one key (e.g. "obligation:<id>"). The returned
// unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ObligationLockKey is the lock key shared by the sweep and payments.
func ObligationLockKey(id ObligationID) string { return "obligation:" + string(id) }

// AccountLockKey is the lock key for trust postings.
func AccountLockKey(id AccountID) string { return "trust-account:" + string(id) }
