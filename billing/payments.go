package billing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// PAYMENT LEDGER
// =============================================================================

// PaymentInput is a payment received against an obligation. A non-empty
// IdempotencyKey makes retries of the same request safe: the second
// attempt fails with ledger.ErrDuplicateIdempotencyKey.
type PaymentInput struct {
	ObligationID   ledger.ObligationID
	Amount         decimal.Decimal
	Date           ledger.Date
	Method         string
	Reference      string
	IdempotencyKey string
}

func (in PaymentInput) validate() error {
	if in.ObligationID == "" {
		return ledger.NewValidationError("obligation_id", "is required", nil)
	}
	if !ledger.PositiveCents(in.Amount) {
		return ledger.NewValidationError("amount", "must be positive", ledger.ErrInvalidAmount)
	}
	if in.Date.IsZero() {
		return ledger.NewValidationError("payment_date", "is required", nil)
	}
	if strings.TrimSpace(in.Method) == "" {
		return ledger.NewValidationError("method", "is required", nil)
	}
	return nil
}

// PaymentResult is the stored payment with its allocation breakdown.
// Sum of Allocations plus Remainder equals Payment.Amount.
type PaymentResult struct {
	Payment     ledger.Payment
	Allocations []ledger.Allocation
	Remainder   decimal.Decimal // applied to the base obligation
	Plan        ledger.AllocationPlan
}

// OutstandingBalance is what an obligation owes as of a date.
type OutstandingBalance struct {
	ObligationID    ledger.ObligationID
	AsOf            ledger.Date
	Due             ledger.Date
	Period          ledger.Period
	BaseAmount      decimal.Decimal
	PaidInPeriod    decimal.Decimal
	BaseOutstanding decimal.Decimal
	PendingFees     decimal.Decimal
	PendingCharges  int
	Total           decimal.Decimal
}

// PaymentLedger records payments and manages charge status.
type PaymentLedger struct {
	store ledger.TxStore
	opts  options
}

// NewPaymentLedger creates the payment ledger.
func NewPaymentLedger(store ledger.TxStore, opts ...Option) *PaymentLedger {
	o := buildOptions(opts)
	o.logger = o.logger.Named("payments")
	return &PaymentLedger{store: store, opts: o}
}

// RecordPayment stores a payment and applies it to pending late-fee
// charges, oldest first. Fully covered charges become paid, a partially
// covered one keeps the rest as its amount, and what is left over goes
// to the base obligation. Everything happens in one transaction.
func (l *PaymentLedger) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "billing.RecordPayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("obligation_id", string(in.ObligationID)),
		attribute.String("amount", in.Amount.String()),
	)

	if err := in.validate(); err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return PaymentResult{}, err
	}

	unlock, err := l.opts.locker.Lock(ctx, ledger.ObligationLockKey(in.ObligationID))
	if err != nil {
		span.RecordError(err)
		return PaymentResult{}, err
	}
	defer unlock()

	var result PaymentResult
	err = l.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.LockObligation(ctx, in.ObligationID); err != nil {
			return err
		}

		payment := ledger.Payment{
			ID:             ledger.PaymentID(ledger.NewID()),
			ObligationID:   in.ObligationID,
			Amount:         ledger.Cents(in.Amount),
			PaymentDate:    in.Date,
			Method:         strings.TrimSpace(in.Method),
			Reference:      in.Reference,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      l.opts.now().UTC(),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		pending, err := tx.ListCharges(ctx, ledger.ChargeFilter{
			ObligationIDs: []ledger.ObligationID{in.ObligationID},
			Statuses:      []ledger.ChargeStatus{ledger.ChargePending},
		})
		if err != nil {
			return err
		}

		plan := l.opts.allocator.Allocate(payment.Amount, pending)
		allocs := make([]ledger.Allocation, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			update := ledger.ChargeUpdate{ID: line.ChargeID, Amount: line.OutstandingAfter, Status: ledger.ChargePending}
			if line.Full {
				update.Status = ledger.ChargePaid
			}
			if err := tx.UpdateCharge(ctx, update); err != nil {
				return err
			}
			allocs = append(allocs, ledger.Allocation{
				PaymentID: payment.ID,
				ChargeID:  line.ChargeID,
				Amount:    line.Amount,
				Full:      line.Full,
			})
		}
		if err := tx.InsertAllocations(ctx, allocs); err != nil {
			return err
		}

		result = PaymentResult{Payment: payment, Allocations: allocs, Remainder: plan.Remainder, Plan: plan}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record payment")
		return PaymentResult{}, err
	}

	p := result.Payment
	l.opts.logger.Info("payment recorded",
		zap.String("payment_id", string(p.ID)),
		zap.String("obligation_id", string(p.ObligationID)),
		zap.String("amount", p.Amount.StringFixed(ledger.CentsPlaces)),
		zap.Int("charges_paid", result.Plan.FullyPaid),
		zap.Int("charges_partial", result.Plan.PartiallyPaid),
		zap.String("remainder", result.Remainder.StringFixed(ledger.CentsPlaces)))
	l.publish(ctx, ledger.NewEvent(ledger.EventPaymentRecorded, string(p.ObligationID), l.opts.now(),
		ledger.PaymentRecordedPayload{
			PaymentID:    p.ID,
			ObligationID: p.ObligationID,
			Amount:       p.Amount,
			Allocated:    result.Plan.Allocated,
			Remainder:    result.Remainder,
			PaymentDate:  p.PaymentDate,
		}))
	return result, nil
}

// WaiveCharge forgives a pending charge. Paid or already waived charges
// are rejected with ledger.ErrInvalidStatusTransition.
func (l *PaymentLedger) WaiveCharge(ctx context.Context, id ledger.ChargeID, reason string) (ledger.LateFeeCharge, error) {
	if strings.TrimSpace(reason) == "" {
		return ledger.LateFeeCharge{}, ledger.NewValidationError("reason", "is required", nil)
	}

	current, err := l.store.GetCharge(ctx, id)
	if err != nil {
		return ledger.LateFeeCharge{}, err
	}
	unlock, err := l.opts.locker.Lock(ctx, ledger.ObligationLockKey(current.ObligationID))
	if err != nil {
		return ledger.LateFeeCharge{}, err
	}
	defer unlock()

	var waived, before ledger.LateFeeCharge
	err = l.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.LockObligation(ctx, current.ObligationID); err != nil {
			return err
		}
		c, err := tx.GetCharge(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != ledger.ChargePending {
			return &ledger.ConflictError{
				Entity:  "late fee charge",
				ID:      string(id),
				Message: "cannot waive a " + string(c.Status) + " charge",
				Err:     ledger.ErrInvalidStatusTransition,
			}
		}
		before = c
		c.Status = ledger.ChargeWaived
		c.WaivedReason = reason
		c.Amount = decimal.Zero
		waived = c
		return tx.UpdateCharge(ctx, ledger.ChargeUpdate{
			ID: c.ID, Amount: c.Amount, Status: c.Status, WaivedReason: reason,
		})
	})
	if err != nil {
		return ledger.LateFeeCharge{}, err
	}

	l.opts.logger.Info("late fee waived",
		zap.String("charge_id", string(id)),
		zap.String("obligation_id", string(waived.ObligationID)),
		zap.String("reason", reason))
	l.publish(ctx, ledger.NewEvent(ledger.EventLateFeeWaived, string(waived.ObligationID), l.opts.now(),
		ledger.LateFeeWaivedPayload{
			ChargeID:     id,
			ObligationID: waived.ObligationID,
			Amount:       before.Amount,
			Reason:       reason,
		}))
	return waived, nil
}

func (l *PaymentLedger) Charges(ctx context.Context, f ledger.ChargeFilter) ([]ledger.LateFeeCharge, error) {
	return l.store.ListCharges(ctx, f)
}

func (l *PaymentLedger) Payments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	return l.store.ListPayments(ctx, f)
}

func (l *PaymentLedger) Allocations(ctx context.Context, id ledger.PaymentID) ([]ledger.Allocation, error) {
	return l.store.ListAllocations(ctx, id)
}

// Outstanding reports the unpaid base amount of the period due on asOf
// plus every pending late fee. Payments count toward the base of the
// period they are dated in.
func (l *PaymentLedger) Outstanding(ctx context.Context, id ledger.ObligationID, asOf ledger.Date) (OutstandingBalance, error) {
	o, err := l.store.GetObligation(ctx, id)
	if err != nil {
		return OutstandingBalance{}, err
	}
	bal := OutstandingBalance{
		ObligationID:    id,
		AsOf:            asOf,
		BaseAmount:      o.Amount,
		PaidInPeriod:    decimal.Zero,
		BaseOutstanding: decimal.Zero,
		PendingFees:     decimal.Zero,
	}

	due, err := ledger.ResolveDueDate(o.Frequency, o.AnchorDay, o.StartDate, asOf)
	if err != nil {
		return OutstandingBalance{}, err
	}
	bal.Due = due
	bal.Period = ledger.PeriodFor(o.Frequency, due)
	if o.Active && !due.Before(o.StartDate) && o.CoversDate(due) {
		paid, err := paidInPeriod(ctx, l.store, id, bal.Period)
		if err != nil {
			return OutstandingBalance{}, err
		}
		bal.PaidInPeriod = paid
		bal.BaseOutstanding = decimal.Max(o.Amount.Sub(paid), decimal.Zero)
	}

	pending, err := l.store.ListCharges(ctx, ledger.ChargeFilter{
		ObligationIDs: []ledger.ObligationID{id},
		Statuses:      []ledger.ChargeStatus{ledger.ChargePending},
	})
	if err != nil {
		return OutstandingBalance{}, err
	}
	for _, c := range pending {
		bal.PendingFees = bal.PendingFees.Add(c.Amount)
	}
	bal.PendingCharges = len(pending)
	bal.Total = bal.BaseOutstanding.Add(bal.PendingFees)
	return bal, nil
}

func (l *PaymentLedger) publish(ctx context.Context, e ledger.Event) {
	if err := l.opts.publisher.Publish(ctx, e); err != nil {
		l.opts.logger.Error("failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("aggregate_id", e.AggregateID),
			zap.Error(err))
	}
}
