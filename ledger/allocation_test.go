package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/ledger"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func pending(id ledger.ChargeID, amount string, created time.Time, periodStart string) ledger.LateFeeCharge {
	return ledger.LateFeeCharge{
		ID:             id,
		ObligationID:   "obl-1",
		Period:         ledger.PeriodFor(ledger.Monthly, ledger.MustDate(periodStart)),
		Amount:         ledger.MustMoney(amount),
		OriginalAmount: ledger.MustMoney(amount),
		Status:         ledger.ChargePending,
		CreatedAt:      created,
	}
}

func TestFIFOAllocator_PartialSecondCharge(t *testing.T) {
	// GIVEN: Pending $30 (older) and $20 charges, passed newest first
	// WHEN: Allocating a $35 payment
	// THEN: The $30 charge is paid in full and $5 goes to the $20 charge

	charges := []ledger.LateFeeCharge{
		pending("c-2", "20", t0.Add(time.Hour), "2024-02-01"),
		pending("c-1", "30", t0, "2024-01-01"),
	}

	plan := ledger.FIFOAllocator{}.Allocate(ledger.MustMoney("35"), charges)

	require.Len(t, plan.Lines, 2)
	assert.Equal(t, ledger.ChargeID("c-1"), plan.Lines[0].ChargeID)
	assert.True(t, plan.Lines[0].Amount.Equal(ledger.MustMoney("30")))
	assert.True(t, plan.Lines[0].Full)
	assert.True(t, plan.Lines[0].OutstandingAfter.IsZero())

	assert.Equal(t, ledger.ChargeID("c-2"), plan.Lines[1].ChargeID)
	assert.True(t, plan.Lines[1].Amount.Equal(ledger.MustMoney("5")))
	assert.False(t, plan.Lines[1].Full)
	assert.True(t, plan.Lines[1].OutstandingAfter.Equal(ledger.MustMoney("15")))

	assert.True(t, plan.Remainder.IsZero())
	assert.Equal(t, 1, plan.FullyPaid)
	assert.Equal(t, 1, plan.PartiallyPaid)
}

func TestFIFOAllocator_RemainderToBase(t *testing.T) {
	charges := []ledger.LateFeeCharge{
		pending("c-1", "30", t0, "2024-01-01"),
		pending("c-2", "20", t0.Add(time.Hour), "2024-02-01"),
	}

	plan := ledger.FIFOAllocator{}.Allocate(ledger.MustMoney("1050"), charges)

	assert.Len(t, plan.Lines, 2)
	assert.Equal(t, 2, plan.FullyPaid)
	assert.True(t, plan.Allocated.Equal(ledger.MustMoney("50")))
	assert.True(t, plan.Remainder.Equal(ledger.MustMoney("1000")))
}

func TestFIFOAllocator_SkipsSettledCharges(t *testing.T) {
	waived := pending("c-1", "30", t0, "2024-01-01")
	waived.Status = ledger.ChargeWaived
	charges := []ledger.LateFeeCharge{waived, pending("c-2", "20", t0.Add(time.Hour), "2024-02-01")}

	plan := ledger.FIFOAllocator{}.Allocate(ledger.MustMoney("10"), charges)

	require.Len(t, plan.Lines, 1)
	assert.Equal(t, ledger.ChargeID("c-2"), plan.Lines[0].ChargeID)
}

func TestFIFOAllocator_NonPositivePayment(t *testing.T) {
	charges := []ledger.LateFeeCharge{pending("c-1", "30", t0, "2024-01-01")}

	for _, amount := range []string{"0", "-5"} {
		plan := ledger.FIFOAllocator{}.Allocate(ledger.MustMoney(amount), charges)
		assert.Empty(t, plan.Lines, amount)
		assert.True(t, plan.Allocated.IsZero(), amount)
	}
}

func TestFIFOAllocator_Conservation(t *testing.T) {
	// Allocated plus Remainder always equals the payment.
	charges := []ledger.LateFeeCharge{
		pending("c-1", "12.34", t0, "2024-01-01"),
		pending("c-2", "56.78", t0.Add(time.Minute), "2024-02-01"),
		pending("c-3", "9.99", t0.Add(2*time.Minute), "2024-03-01"),
	}
	for _, amount := range []string{"0.01", "12.34", "12.35", "69.12", "79.11", "100"} {
		pay := ledger.MustMoney(amount)
		plan := ledger.FIFOAllocator{}.Allocate(pay, charges)

		sum := decimal.Zero
		for _, l := range plan.Lines {
			sum = sum.Add(l.Amount)
		}
		assert.True(t, sum.Equal(plan.Allocated), amount)
		assert.True(t, plan.Allocated.Add(plan.Remainder).Equal(pay), amount)
	}
}

func TestSortChargesFIFO_TieBreaks(t *testing.T) {
	charges := []ledger.LateFeeCharge{
		pending("c-b", "1", t0, "2024-02-01"),
		pending("c-c", "1", t0, "2024-01-01"),
		pending("c-a", "1", t0, "2024-02-01"),
	}

	sorted := ledger.SortChargesFIFO(charges)

	ids := []ledger.ChargeID{sorted[0].ID, sorted[1].ID, sorted[2].ID}
	assert.Equal(t, []ledger.ChargeID{"c-c", "c-a", "c-b"}, ids)
	assert.Equal(t, ledger.ChargeID("c-b"), charges[0].ID, "input is not reordered")
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorKinds(t *testing.T) {
	dup := &ledger.ConflictError{Entity: "late fee charge", ID: "obl-1", Period: "2024-01-01", Err: ledger.ErrDuplicateCharge}
	assert.True(t, ledger.IsConflict(dup))
	assert.True(t, errors.Is(dup, ledger.ErrDuplicateCharge))
	assert.Contains(t, dup.Error(), "2024-01-01")

	funds := &ledger.InsufficientFundsError{AccountID: "acct-1", Balance: ledger.MustMoney("100"), Requested: ledger.MustMoney("150")}
	assert.True(t, ledger.IsConflict(funds))
	assert.True(t, errors.Is(funds, ledger.ErrInsufficientFunds))
	assert.True(t, funds.Shortfall().Equal(ledger.MustMoney("50")))

	v := ledger.NewValidationError("amount", "must be positive", ledger.ErrInvalidAmount)
	assert.True(t, ledger.IsValidation(v))
	assert.True(t, errors.Is(v, ledger.ErrInvalidAmount))
	assert.False(t, ledger.IsConflict(v))

	nf := ledger.NewNotFoundError("obligation", "x")
	assert.True(t, ledger.IsNotFound(nf))
	var target *ledger.NotFoundError
	require.True(t, errors.As(nf, &target))
	assert.Equal(t, "obligation", target.Entity)

	assert.True(t, ledger.IsIntegrity(&ledger.IntegrityError{Entity: "trust account", ID: "a"}))
	assert.True(t, ledger.IsRetryable(ledger.ErrLockNotObtained))
}

func TestParseMoney(t *testing.T) {
	d, err := ledger.ParseMoney("amount", "12.345")
	require.NoError(t, err)
	assert.Equal(t, "12.35", ledger.Cents(d).String())

	_, err = ledger.ParseMoney("amount", "twelve")
	var ve *ledger.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "amount", ve.Field)
}
