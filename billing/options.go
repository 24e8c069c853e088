/*
Package billing implements recurring obligations, late fees and payments.

PURPOSE:
  Everything that writes late-fee charges lives here: obligation and fee
  policy administration, the late-fee policy engine, the batch sweep that
  runs it over every active obligation, and the payment ledger that
  allocates payments across pending charges.

KEY CONCEPTS:
  - Obligations:   create, deactivate, supersede; one active fee policy per scope
  - LateFeeEngine: evaluates one obligation for the period due on asOf
  - Sweeper:       runs the engine for every active obligation, idempotently
  - PaymentLedger: records a payment and applies it oldest charge first

CONCURRENCY:
  Sweeper and PaymentLedger take the same per-obligation lock
  (ledger.ObligationLockKey) and then the obligation row lock inside the
  transaction. The unique index on (obligation, period) backs both up.

USAGE:
  sweeper := billing.NewSweeper(store, billing.WithLocker(locker), billing.WithPublisher(pub))
  result, err := sweeper.Sweep(ctx, ledger.MustDate("2024-03-10"))

SEE ALSO:
  - ledger/period.go: due-date resolution
  - ledger/allocation.go: FIFO allocator
*/
package billing

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
)

var tracer = otel.Tracer("github.com/wdeanegpt/property-sub001/billing")

// processLocker is shared by every service built without WithLocker so a
// sweep and a payment in the same process still exclude each other.
var processLocker = lock.NewLocal()

// Option configures the billing services.
type Option func(*options)

type options struct {
	locker    ledger.Locker
	publisher ledger.Publisher
	allocator ledger.Allocator
	logger    *zap.Logger
	now       func() time.Time
}

func buildOptions(opts []Option) options {
	o := options{
		locker:    processLocker,
		publisher: ledger.NopPublisher{},
		allocator: ledger.FIFOAllocator{},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLocker sets the per-obligation lock. Defaults to a process-wide mutex.
func WithLocker(l ledger.Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithPublisher sets where committed events go.
func WithPublisher(p ledger.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithAllocator replaces the FIFO allocator.
func WithAllocator(a ledger.Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.allocator = a
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the source of created_at timestamps. Business dates are
// always passed in explicitly.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
