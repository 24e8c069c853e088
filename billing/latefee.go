package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// LATE-FEE POLICY ENGINE
// =============================================================================

// SkipReason says why an evaluation produced no charge.
type SkipReason string

const (
	SkipInactive       SkipReason = "inactive"
	SkipBeforeStart    SkipReason = "before_start"
	SkipOutsideWindow  SkipReason = "outside_window"
	SkipNoConfig       SkipReason = "no_config"
	SkipGracePeriod    SkipReason = "grace_period"
	SkipPaid           SkipReason = "paid"
	SkipAlreadyCharged SkipReason = "already_charged"
	SkipZeroFee        SkipReason = "zero_fee"
)

// Evaluation is the outcome of checking one obligation for one period.
// Exactly one of Charge and Skip is set.
type Evaluation struct {
	ObligationID ledger.ObligationID
	AsOf         ledger.Date
	Due          ledger.Date
	Period       ledger.Period
	Paid         decimal.Decimal
	Outstanding  decimal.Decimal
	Charge       *ledger.LateFeeCharge
	Skip         SkipReason
}

// Charged reports whether the evaluation created a charge.
func (e Evaluation) Charged() bool { return e.Charge != nil }

// ComputeFee returns the fee for an outstanding balance. Fixed fees are the
// configured value and ignore the bounds. Percentage fees are rounded to
// cents, raised to the minimum and then cut to the maximum, each only when set.
func ComputeFee(cfg ledger.LateFeeConfig, outstanding decimal.Decimal) decimal.Decimal {
	if cfg.FeeType != ledger.FeePercentage {
		return ledger.Cents(cfg.FeeValue)
	}
	fee := ledger.Cents(outstanding.Mul(cfg.FeeValue).Div(hundred))
	if cfg.MinimumFee != nil && fee.LessThan(*cfg.MinimumFee) {
		fee = *cfg.MinimumFee
	}
	if cfg.MaximumFee != nil && fee.GreaterThan(*cfg.MaximumFee) {
		fee = *cfg.MaximumFee
	}
	return ledger.Cents(fee)
}

// LateFeeEngine applies a fee policy to one obligation.
type LateFeeEngine struct {
	now func() time.Time
}

// NewLateFeeEngine returns an engine stamping charges with now.
func NewLateFeeEngine(now func() time.Time) *LateFeeEngine {
	if now == nil {
		now = time.Now
	}
	return &LateFeeEngine{now: now}
}

// EvaluatePeriod checks whether the period due on asOf is late and, if so,
// inserts a pending charge through store. Call it inside a transaction
// holding the obligation lock. A concurrent charge for the same period
// surfaces as ledger.ErrDuplicateCharge from the insert.
//
// Steps: resolve the due date; skip while asOf is within due + grace days;
// sum the payments dated in the period and skip if they cover the amount;
// skip if the period already has a charge; otherwise charge ComputeFee of
// the unpaid balance.
func (e *LateFeeEngine) EvaluatePeriod(
	ctx context.Context,
	store ledger.Store,
	o ledger.RecurringObligation,
	cfg *ledger.LateFeeConfig,
	asOf ledger.Date,
) (Evaluation, error) {
	ev := Evaluation{ObligationID: o.ID, AsOf: asOf, Paid: decimal.Zero, Outstanding: decimal.Zero}
	if !o.Active {
		ev.Skip = SkipInactive
		return ev, nil
	}

	due, err := ledger.ResolveDueDate(o.Frequency, o.AnchorDay, o.StartDate, asOf)
	if err != nil {
		return ev, err
	}
	ev.Due = due
	ev.Period = ledger.PeriodFor(o.Frequency, due)

	if due.Before(o.StartDate) {
		ev.Skip = SkipBeforeStart
		return ev, nil
	}
	if !o.CoversDate(due) {
		ev.Skip = SkipOutsideWindow
		return ev, nil
	}
	if cfg == nil {
		ev.Skip = SkipNoConfig
		return ev, nil
	}
	if asOf.BeforeOrEqual(due.AddDays(cfg.GracePeriodDays)) {
		ev.Skip = SkipGracePeriod
		return ev, nil
	}

	paid, err := paidInPeriod(ctx, store, o.ID, ev.Period)
	if err != nil {
		return ev, err
	}
	ev.Paid = paid
	ev.Outstanding = o.Amount.Sub(paid)
	if !ev.Outstanding.IsPositive() {
		ev.Outstanding = decimal.Zero
		ev.Skip = SkipPaid
		return ev, nil
	}

	start := ev.Period.Start
	existing, err := store.ListCharges(ctx, ledger.ChargeFilter{
		ObligationIDs: []ledger.ObligationID{o.ID},
		PeriodStart:   &start,
	})
	if err != nil {
		return ev, err
	}
	if len(existing) > 0 {
		ev.Skip = SkipAlreadyCharged
		return ev, nil
	}

	fee := ComputeFee(*cfg, ev.Outstanding)
	if !fee.IsPositive() {
		ev.Skip = SkipZeroFee
		return ev, nil
	}

	charge := ledger.LateFeeCharge{
		ID:             ledger.ChargeID(ledger.NewID()),
		ObligationID:   o.ID,
		Period:         ev.Period,
		Amount:         fee,
		OriginalAmount: fee,
		Status:         ledger.ChargePending,
		CreatedAt:      e.now().UTC(),
	}
	if err := store.InsertCharge(ctx, charge); err != nil {
		return ev, err
	}
	ev.Charge = &charge
	return ev, nil
}

// paidInPeriod sums payments dated inside p.
func paidInPeriod(ctx context.Context, store ledger.PaymentStore, id ledger.ObligationID, p ledger.Period) (decimal.Decimal, error) {
	from, to := p.Start, p.End
	payments, err := store.ListPayments(ctx, ledger.PaymentFilter{
		ObligationIDs: []ledger.ObligationID{id},
		From:          &from,
		To:            &to,
	})
	if err != nil {
		return decimal.Zero, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return paid, nil
}
