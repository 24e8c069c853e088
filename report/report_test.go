package report_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/report"
	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal { return ledger.MustMoney(s) }

func date(s string) ledger.Date { return ledger.MustDate(s) }

func datePtr(s string) *ledger.Date {
	d := date(s)
	return &d
}

func catPtr(id ledger.CategoryID) *ledger.CategoryID { return &id }

// seed builds Elm Street: 1A leased at 1100, 1B whose lease ended, 1C never
// leased.
func seed(t *testing.T) *sqlstore.Store {
	store, err := sqlstore.Open(sqlstore.SQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.InsertProperty(ctx, ledger.Property{ID: "prop-1", Name: "Elm Street", CreatedAt: created}))
	require.NoError(t, store.InsertProperty(ctx, ledger.Property{ID: "prop-2", Name: "Empty Lot", CreatedAt: created}))
	for _, u := range []ledger.Unit{
		{ID: "unit-a", PropertyID: "prop-1", Number: "1A", MarketRent: money("1000")},
		{ID: "unit-b", PropertyID: "prop-1", Number: "1B", MarketRent: money("900")},
		{ID: "unit-c", PropertyID: "prop-1", Number: "1C", MarketRent: money("800")},
	} {
		u.CreatedAt = created
		require.NoError(t, store.InsertUnit(ctx, u))
	}
	require.NoError(t, store.InsertLease(ctx, ledger.Lease{
		ID: "lease-a", UnitID: "unit-a", TenantName: "R. Diaz", MonthlyRent: money("1100"),
		StartDate: date("2024-01-01"), Active: true, CreatedAt: created,
	}))
	require.NoError(t, store.InsertLease(ctx, ledger.Lease{
		ID: "lease-b", UnitID: "unit-b", TenantName: "J. Park", MonthlyRent: money("950"),
		StartDate: date("2023-01-01"), EndDate: datePtr("2023-12-31"), Active: true, CreatedAt: created,
	}))
	return store
}

func rent(t *testing.T, store *sqlstore.Store, id ledger.ObligationID, unit ledger.UnitID, amount string) ledger.RecurringObligation {
	o := ledger.RecurringObligation{
		ID: id, Owner: ledger.OwnerContext{PropertyID: "prop-1", UnitID: unit}, Kind: ledger.KindRent,
		Amount: money(amount), Frequency: ledger.Monthly, AnchorDay: 1, StartDate: date("2024-01-01"),
		Active: true, CreatedAt: created,
	}
	require.NoError(t, store.InsertObligation(context.Background(), o))
	return o
}

func payment(t *testing.T, store *sqlstore.Store, o ledger.ObligationID, amount, on string) {
	require.NoError(t, store.InsertPayment(context.Background(), ledger.Payment{
		ID: ledger.PaymentID(ledger.NewID()), ObligationID: o, Amount: money(amount),
		PaymentDate: date(on), Method: "ach", CreatedAt: created,
	}))
}

// =============================================================================
// RENT ROLL
// =============================================================================

func TestRentRoll(t *testing.T) {
	// GIVEN: 1A leased with a 1100 rent obligation and two payments
	store := seed(t)
	o := rent(t, store, "obl-a", "unit-a", "1100")
	payment(t, store, o.ID, "500", "2024-03-05")
	payment(t, store, o.ID, "200", "2024-02-20")
	agg := report.NewAggregator(store, nil)

	// WHEN: Building the rent roll for mid-March
	roll, err := agg.RentRoll(context.Background(), "prop-1", date("2024-03-15"))
	require.NoError(t, err)

	// THEN: Only March payments count and vacant units use market rent
	require.Len(t, roll.Rows, 3)
	a, b, c := roll.Rows[0], roll.Rows[1], roll.Rows[2]

	assert.True(t, a.Occupied)
	require.NotNil(t, a.Lease)
	assert.Equal(t, "R. Diaz", a.Lease.TenantName)
	assert.True(t, a.ScheduledRent.Equal(money("1100")))
	assert.True(t, a.Collected.Equal(money("500")))
	assert.True(t, a.Balance.Equal(money("600")))
	assert.True(t, a.PotentialRent.Equal(money("1100")))

	assert.False(t, b.Occupied, "expired lease")
	assert.True(t, b.PotentialRent.Equal(money("900")))
	assert.True(t, c.PotentialRent.Equal(money("800")))
	assert.True(t, c.Balance.IsZero())

	assert.Equal(t, 3, roll.TotalUnits)
	assert.Equal(t, 1, roll.OccupiedUnits)
	assert.Equal(t, "0.3333", roll.OccupancyRate.String())
	assert.True(t, roll.PotentialRent.Equal(money("2800")))
	assert.True(t, roll.Balance.Equal(money("600")))
}

func TestRentRoll_NoUnits(t *testing.T) {
	store := seed(t)
	agg := report.NewAggregator(store, nil)

	roll, err := agg.RentRoll(context.Background(), "prop-2", date("2024-03-15"))

	require.NoError(t, err)
	assert.Empty(t, roll.Rows)
	assert.True(t, roll.OccupancyRate.IsZero())

	_, err = agg.RentRoll(context.Background(), "prop-x", date("2024-03-15"))
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// AGING
// =============================================================================

func TestAging_Buckets(t *testing.T) {
	// GIVEN: Pending fees of different ages and one paid fee
	store := seed(t)
	ctx := context.Background()
	o := rent(t, store, "obl-a", "unit-a", "1100")
	for i, c := range []struct {
		start, amount string
		status        ledger.ChargeStatus
	}{
		{"2024-06-01", "50", ledger.ChargePending},
		{"2024-04-01", "40", ledger.ChargePending},
		{"2024-01-01", "30", ledger.ChargePending},
		{"2024-02-01", "99", ledger.ChargePaid},
	} {
		require.NoError(t, store.InsertCharge(ctx, ledger.LateFeeCharge{
			ID: ledger.ChargeID(ledger.NewID()), ObligationID: o.ID,
			Period: ledger.PeriodFor(ledger.Monthly, date(c.start)),
			Amount: money(c.amount), OriginalAmount: money(c.amount), Status: c.status,
			CreatedAt: created.Add(time.Duration(i) * time.Hour),
		}))
	}

	// WHEN: Aging as of June 15
	rep, err := report.NewAggregator(store, nil).Aging(ctx, "prop-1", date("2024-06-15"))
	require.NoError(t, err)

	// THEN: 14 days, 75 days and 166 days old
	require.Len(t, rep.Totals, 4)
	want := map[report.AgingBucket]string{
		report.Bucket0To30: "50", report.Bucket31To60: "0", report.Bucket61To90: "40", report.BucketOver90: "30",
	}
	for _, tot := range rep.Totals {
		assert.True(t, tot.Total.Equal(money(want[tot.Bucket])), "%s: %s", tot.Bucket, tot.Total)
	}
	assert.Len(t, rep.Lines, 3)
	assert.True(t, rep.Total.Equal(money("120")))
}

func TestBucketFor_Boundaries(t *testing.T) {
	tests := []struct {
		days int
		want report.AgingBucket
	}{
		{-3, report.Bucket0To30}, {0, report.Bucket0To30}, {30, report.Bucket0To30},
		{31, report.Bucket31To60}, {60, report.Bucket31To60},
		{61, report.Bucket61To90}, {90, report.Bucket61To90},
		{91, report.BucketOver90},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, report.BucketFor(tt.days), "days=%d", tt.days)
	}
}

// =============================================================================
// EXPENSE REPORT
// =============================================================================

func seedExpenses(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	require.NoError(t, store.InsertCategory(ctx, ledger.ExpenseCategory{ID: "cat-repairs", Name: "Repairs", TaxDeductible: true, Active: true, CreatedAt: created}))
	require.NoError(t, store.InsertCategory(ctx, ledger.ExpenseCategory{ID: "cat-office", Name: "Office", Active: true, CreatedAt: created}))

	for i, e := range []ledger.Expense{
		{CategoryID: catPtr("cat-repairs"), Vendor: "Acme", Amount: money("100"), TaxAmount: money("8"), TransactionDate: date("2024-03-02"), Owner: ledger.OwnerContext{PropertyID: "prop-1", UnitID: "unit-a"}},
		{CategoryID: catPtr("cat-repairs"), Vendor: "Acme", Amount: money("50"), TaxAmount: money("4"), TransactionDate: date("2024-04-02"), Owner: ledger.OwnerContext{PropertyID: "prop-1"}},
		{CategoryID: catPtr("cat-office"), Vendor: "Staples", Amount: money("200"), TransactionDate: date("2024-03-09"), Owner: ledger.OwnerContext{PropertyID: "prop-1"}},
		{Amount: money("30"), TransactionDate: date("2024-03-10"), Owner: ledger.OwnerContext{PropertyID: "prop-1", UnitID: "unit-b"}},
		{CategoryID: catPtr("cat-repairs"), Vendor: "Acme", Amount: money("500"), TransactionDate: date("2024-03-11"), Status: ledger.ExpenseCancelled, Owner: ledger.OwnerContext{PropertyID: "prop-1"}},
	} {
		e.ID = ledger.ExpenseID(ledger.NewID())
		if e.Status == "" {
			e.Status = ledger.ExpensePending
		}
		e.CreatedAt = created.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertExpense(ctx, e))
	}
}

func TestExpenseReport_ByCategory(t *testing.T) {
	// GIVEN: Repairs 150 (deductible), Office 200, 30 uncategorized, 500 cancelled
	store := seed(t)
	seedExpenses(t, store)
	agg := report.NewAggregator(store, nil)

	// WHEN: Grouping by category
	rep, err := agg.ExpenseReport(context.Background(), report.ExpenseReportQuery{
		Filter: ledger.ExpenseFilter{PropertyID: "prop-1"}, GroupBy: report.GroupByCategory,
	})
	require.NoError(t, err)

	// THEN: Sorted by total, cancelled excluded
	require.Len(t, rep.Groups, 3)
	assert.Equal(t, "Office", rep.Groups[0].Label)
	assert.Equal(t, "Repairs", rep.Groups[1].Label)
	assert.Equal(t, "Uncategorized", rep.Groups[2].Label)

	repairs := rep.Groups[1]
	assert.Equal(t, 2, repairs.Count)
	assert.True(t, repairs.Total.Equal(money("150")))
	assert.True(t, repairs.Tax.Equal(money("12")))
	assert.True(t, repairs.TaxDeductible.Equal(money("150")))
	assert.True(t, rep.Groups[0].TaxDeductible.IsZero())

	assert.Equal(t, 4, rep.Count)
	assert.True(t, rep.Total.Equal(money("380")))
	assert.True(t, rep.TaxDeductible.Equal(money("150")))
}

func TestExpenseReport_OtherGroupings(t *testing.T) {
	store := seed(t)
	seedExpenses(t, store)
	agg := report.NewAggregator(store, nil)
	ctx := context.Background()

	byMonth, err := agg.ExpenseReport(ctx, report.ExpenseReportQuery{GroupBy: report.GroupByMonth})
	require.NoError(t, err)
	require.Len(t, byMonth.Groups, 2)
	assert.Equal(t, "2024-03", byMonth.Groups[0].Key)
	assert.True(t, byMonth.Groups[0].Total.Equal(money("330")))

	byVendor, err := agg.ExpenseReport(ctx, report.ExpenseReportQuery{GroupBy: report.GroupByVendor})
	require.NoError(t, err)
	require.Len(t, byVendor.Groups, 3)
	assert.Equal(t, "Staples", byVendor.Groups[0].Key)

	byUnit, err := agg.ExpenseReport(ctx, report.ExpenseReportQuery{GroupBy: report.GroupByUnit})
	require.NoError(t, err)
	assert.Equal(t, "(property level)", byUnit.Groups[0].Label)

	cancelled, err := agg.ExpenseReport(ctx, report.ExpenseReportQuery{
		Filter:  ledger.ExpenseFilter{Statuses: []ledger.ExpenseStatus{ledger.ExpenseCancelled}},
		GroupBy: report.GroupByProperty,
	})
	require.NoError(t, err)
	require.Len(t, cancelled.Groups, 1)
	assert.True(t, cancelled.Total.Equal(money("500")))

	_, err = agg.ExpenseReport(ctx, report.ExpenseReportQuery{GroupBy: "tenant"})
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestWriteRentRollXLSX(t *testing.T) {
	store := seed(t)
	rent(t, store, "obl-a", "unit-a", "1100")
	roll, err := report.NewAggregator(store, nil).RentRoll(context.Background(), "prop-1", date("2024-03-15"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteRentRollXLSX(&buf, roll))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Rent Roll")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Unit", rows[0][0])
	assert.Equal(t, "1A", rows[1][0])
	assert.Equal(t, "R. Diaz", rows[1][1])
	assert.Equal(t, "Total", rows[4][0])
}

func TestWriteExpenseReportXLSX(t *testing.T) {
	store := seed(t)
	seedExpenses(t, store)
	rep, err := report.NewAggregator(store, nil).ExpenseReport(context.Background(), report.ExpenseReportQuery{GroupBy: report.GroupByCategory})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteExpenseReportXLSX(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"category", "Count", "Total", "Tax", "Tax Deductible"}, rows[0])
	assert.Equal(t, "Office", rows[1][0])
	assert.Equal(t, "380", rows[4][2])
}
