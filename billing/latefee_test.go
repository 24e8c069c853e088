package billing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
)

// =============================================================================
// FEE COMPUTATION
// =============================================================================

func TestComputeFee_PercentageClampedToMaximum(t *testing.T) {
	// GIVEN: 5% fee, minimum $20, maximum $40
	// WHEN: Outstanding balance is $1000 (raw fee $50)
	// THEN: Fee is clamped down to $40
	lo, hi := money("20"), money("40")
	cfg := ledger.LateFeeConfig{FeeType: ledger.FeePercentage, FeeValue: money("5"), MinimumFee: &lo, MaximumFee: &hi}

	assert.Equal(t, "40", billing.ComputeFee(cfg, money("1000")).String())
}

func TestComputeFee_Bounds(t *testing.T) {
	lo, hi := money("20"), money("40")

	tests := []struct {
		name        string
		cfg         ledger.LateFeeConfig
		outstanding string
		want        string
	}{
		{"fixed", ledger.LateFeeConfig{FeeType: ledger.FeeFixed, FeeValue: money("50")}, "1000", "50"},
		{"fixed ignores balance", ledger.LateFeeConfig{FeeType: ledger.FeeFixed, FeeValue: money("50")}, "10", "50"},
		{"percentage raised to minimum", ledger.LateFeeConfig{FeeType: ledger.FeePercentage, FeeValue: money("5"), MinimumFee: &lo}, "200", "20"},
		{"percentage inside bounds", ledger.LateFeeConfig{FeeType: ledger.FeePercentage, FeeValue: money("5"), MinimumFee: &lo, MaximumFee: &hi}, "600", "30"},
		{"percentage rounded to cents", ledger.LateFeeConfig{FeeType: ledger.FeePercentage, FeeValue: money("3.5")}, "333.33", "11.67"},
		{"fixed ignores maximum", ledger.LateFeeConfig{FeeType: ledger.FeeFixed, FeeValue: money("75"), MaximumFee: &hi}, "1000", "75"},
		{"fixed ignores minimum", ledger.LateFeeConfig{FeeType: ledger.FeeFixed, FeeValue: money("10"), MinimumFee: &lo}, "1000", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.ComputeFee(tt.cfg, money(tt.outstanding))
			assert.True(t, got.Equal(money(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputeFee_AlwaysWithinBounds(t *testing.T) {
	lo, hi := money("15"), money("60")
	cfg := ledger.LateFeeConfig{FeeType: ledger.FeePercentage, FeeValue: money("7.25"), MinimumFee: &lo, MaximumFee: &hi}

	for cents := int64(1); cents < 2_000_000; cents += 7919 {
		fee := billing.ComputeFee(cfg, decimal.New(cents, -2))
		assert.True(t, fee.GreaterThanOrEqual(lo) && fee.LessThanOrEqual(hi), "fee %s for %d cents", fee, cents)
	}
}

// =============================================================================
// SWEEP
// =============================================================================

func TestSweep_ScenarioA_FixedFeeAfterGrace(t *testing.T) {
	// GIVEN: Monthly rent due on the 1st, $50 fixed fee, 5 grace days
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 5)

	// WHEN: Sweeping on the 10th with nothing paid
	result, err := f.sweeper.Sweep(ctx, date("2024-03-10"))
	require.NoError(t, err)

	// THEN: One pending $50 charge for March
	require.Len(t, result.Charges, 1)
	c := result.Charges[0]
	assert.Equal(t, o.ID, c.ObligationID)
	assert.True(t, c.Amount.Equal(money("50")))
	assert.Equal(t, ledger.ChargePending, c.Status)
	assert.Equal(t, "2024-03-01", c.Period.Start.String())
	assert.Equal(t, "2024-03-31", c.Period.End.String())
	assert.Equal(t, []ledger.EventType{ledger.EventLateFeeCharged}, f.publisher.types())
}

func TestSweep_GraceBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 5)

	// Last day of grace: no fee
	ev, err := f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-06"))
	require.NoError(t, err)
	assert.Equal(t, billing.SkipGracePeriod, ev.Skip)

	// Day after: fee
	ev, err = f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-07"))
	require.NoError(t, err)
	assert.True(t, ev.Charged())
}

func TestSweep_Idempotent(t *testing.T) {
	// GIVEN: A sweep already charged March
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 5)
	_, err := f.sweeper.Sweep(ctx, date("2024-03-10"))
	require.NoError(t, err)

	// WHEN: Sweeping again with the same and a later date in March
	again, err := f.sweeper.Sweep(ctx, date("2024-03-10"))
	require.NoError(t, err)
	later, err := f.sweeper.Sweep(ctx, date("2024-03-25"))
	require.NoError(t, err)

	// THEN: No new charges
	assert.Empty(t, again.Charges)
	assert.Equal(t, 1, again.Skipped[billing.SkipAlreadyCharged])
	assert.Empty(t, later.Charges)

	charges, err := f.payments.Charges(ctx, ledger.ChargeFilter{ObligationIDs: []ledger.ObligationID{o.ID}})
	require.NoError(t, err)
	assert.Len(t, charges, 1)
}

func TestSweep_ConcurrentSweepsChargeOnce(t *testing.T) {
	// GIVEN: Sweepers with no application lock, racing on the same obligation
	f := newFixture(t, billing.WithLocker(lock.Nop{}))
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 5)

	// WHEN: Ten evaluations run at once
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-10"))
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one charge exists and nobody failed
	for _, err := range errs {
		assert.NoError(t, err)
	}
	charges, err := f.payments.Charges(ctx, ledger.ChargeFilter{ObligationIDs: []ledger.ObligationID{o.ID}})
	require.NoError(t, err)
	assert.Len(t, charges, 1)
}

func TestSweep_PaidInPeriod_NoFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 5)
	f.pay(t, o, "600", "2024-03-02")
	f.pay(t, o, "400", "2024-03-09")

	ev, err := f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-10"))

	require.NoError(t, err)
	assert.Equal(t, billing.SkipPaid, ev.Skip)
	assert.True(t, ev.Paid.Equal(money("1000")))
}

func TestSweep_PartiallyPaid_PercentageOnRemainder(t *testing.T) {
	// GIVEN: 10% fee and $400 of $1000 paid
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	_, err := f.obligations.SetLateFeeConfig(ctx, billing.LateFeeConfigInput{
		Owner: ledger.OwnerContext{PropertyID: "prop-1"}, FeeType: ledger.FeePercentage, FeeValue: money("10"),
	})
	require.NoError(t, err)
	f.pay(t, o, "400", "2024-03-01")

	// WHEN: Sweeping after the due date
	ev, err := f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-02"))
	require.NoError(t, err)

	// THEN: Fee is 10% of the unpaid $600
	require.True(t, ev.Charged())
	assert.True(t, ev.Charge.Amount.Equal(money("60")))
	assert.True(t, ev.Outstanding.Equal(money("600")))
}

func TestSweep_ScenarioC_PercentageClamped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 1)
	lo, hi := money("20"), money("40")
	_, err := f.obligations.SetLateFeeConfig(ctx, billing.LateFeeConfigInput{
		Owner: ledger.OwnerContext{UnitID: "unit-1"}, FeeType: ledger.FeePercentage, FeeValue: money("5"),
		GracePeriodDays: 5, MinimumFee: &lo, MaximumFee: &hi,
	})
	require.NoError(t, err)

	ev, err := f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-10"))

	require.NoError(t, err)
	require.True(t, ev.Charged())
	assert.True(t, ev.Charge.Amount.Equal(money("40")))
}

func TestSweep_AnchorDay31_ClampsInFebruary(t *testing.T) {
	// GIVEN: Rent due on the 31st, no grace
	f := newFixture(t)
	ctx := context.Background()
	o := f.monthlyRent(t, "unit-1", "1000", 31)
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 0)

	// WHEN: Sweeping on March 5th (March 31st is still ahead)
	ev, err := f.sweeper.SweepObligation(ctx, o.ID, date("2024-03-05"))
	require.NoError(t, err)

	// THEN: The February installment, due on the 29th, is late
	assert.Equal(t, "2024-02-29", ev.Due.String())
	require.True(t, ev.Charged())
	assert.Equal(t, "2024-02-01", ev.Charge.Period.Start.String())
}

func TestSweep_SkipReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No policy anywhere
	noCfg := f.monthlyRent(t, "unit-2", "900", 1)
	ev, err := f.sweeper.SweepObligation(ctx, noCfg.ID, date("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, billing.SkipNoConfig, ev.Skip)

	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "50", 0)

	// Before the first due date
	ev, err = f.sweeper.SweepObligation(ctx, noCfg.ID, date("2023-12-20"))
	require.NoError(t, err)
	assert.Equal(t, billing.SkipBeforeStart, ev.Skip)

	// After the end date
	end := date("2024-02-15")
	ended, err := f.obligations.Create(ctx, billing.ObligationInput{
		Owner: ledger.OwnerContext{UnitID: "unit-1"}, Kind: ledger.KindExpense, Amount: money("80"),
		Frequency: ledger.Monthly, AnchorDay: 1, StartDate: date("2024-01-01"), EndDate: &end,
	})
	require.NoError(t, err)
	ev, err = f.sweeper.SweepObligation(ctx, ended.ID, date("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, billing.SkipOutsideWindow, ev.Skip)

	// Inactive obligations are left out of the sweep entirely
	require.NoError(t, f.obligations.Deactivate(ctx, ended.ID))
	result, err := f.sweeper.Sweep(ctx, date("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Len(t, result.Charges, 1)

	ev, err = f.sweeper.SweepObligation(ctx, ended.ID, date("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, billing.SkipInactive, ev.Skip)
}

func TestSweep_QuarterlyAndAnnualPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fixedFee(t, ledger.OwnerContext{PropertyID: "prop-1"}, "25", 0)

	q, err := f.obligations.Create(ctx, billing.ObligationInput{
		Owner: ledger.OwnerContext{PropertyID: "prop-1"}, Kind: ledger.KindExpense, Amount: money("300"),
		Frequency: ledger.Quarterly, AnchorDay: 15, StartDate: date("2024-01-01"),
	})
	require.NoError(t, err)
	a, err := f.obligations.Create(ctx, billing.ObligationInput{
		Owner: ledger.OwnerContext{PropertyID: "prop-1"}, Kind: ledger.KindExpense, Amount: money("1200"),
		Frequency: ledger.Annual, AnchorDay: 1, StartDate: date("2023-06-01"),
	})
	require.NoError(t, err)

	evQ, err := f.sweeper.SweepObligation(ctx, q.ID, date("2024-05-20"))
	require.NoError(t, err)
	require.True(t, evQ.Charged())
	assert.Equal(t, "2024-04-15", evQ.Due.String())
	assert.Equal(t, "2024-04-01", evQ.Period.Start.String())
	assert.Equal(t, "2024-06-30", evQ.Period.End.String())

	evA, err := f.sweeper.SweepObligation(ctx, a.ID, date("2024-03-01"))
	require.NoError(t, err)
	require.True(t, evA.Charged())
	assert.Equal(t, "2023-06-01", evA.Due.String())
	assert.Equal(t, "2024-05-31", evA.Period.End.String())
}
