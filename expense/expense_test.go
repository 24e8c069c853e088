package expense_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlstore.Store {
	store, err := sqlstore.Open(sqlstore.SQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.InsertProperty(ctx, ledger.Property{ID: "prop-1", Name: "Elm Street"}))
	require.NoError(t, store.InsertProperty(ctx, ledger.Property{ID: "prop-2", Name: "Oak Avenue"}))
	require.NoError(t, store.InsertUnit(ctx, ledger.Unit{ID: "unit-1", PropertyID: "prop-1", Number: "1A", MarketRent: money("1000")}))
	require.NoError(t, store.InsertUnit(ctx, ledger.Unit{ID: "unit-9", PropertyID: "prop-2", Number: "9", MarketRent: money("800")}))
	return store
}

func setup(t *testing.T) (*expense.Ledger, *sqlstore.Store) {
	store := newStore(t)
	return expense.NewLedger(store), store
}

func money(s string) decimal.Decimal { return ledger.MustMoney(s) }

func date(s string) ledger.Date { return ledger.MustDate(s) }

func category(t *testing.T, l *expense.Ledger, name string, parent *ledger.CategoryID) ledger.ExpenseCategory {
	c, err := l.CreateCategory(context.Background(), expense.CategoryInput{Name: name, ParentID: parent, TaxDeductible: true})
	require.NoError(t, err)
	return c
}

func ref(id ledger.CategoryID) *ledger.CategoryID { return &id }

func record(t *testing.T, l *expense.Ledger, cat *ledger.CategoryID, amount string) ledger.Expense {
	e, err := l.RecordExpense(context.Background(), expense.ExpenseInput{
		Owner:           ledger.OwnerContext{PropertyID: "prop-1"},
		CategoryID:      cat,
		Vendor:          "Acme Plumbing",
		Amount:          money(amount),
		TransactionDate: date("2024-03-01"),
	})
	require.NoError(t, err)
	return e
}

// =============================================================================
// CATEGORY TREE
// =============================================================================

func TestUpdateCategory_ScenarioE_CycleRejected(t *testing.T) {
	// GIVEN: X > Y > Z
	l, _ := setup(t)
	ctx := context.Background()
	x := category(t, l, "Maintenance", nil)
	y := category(t, l, "Plumbing", ref(x.ID))
	z := category(t, l, "Leaks", ref(y.ID))

	// WHEN: X is moved under its grandchild Z, with a rename in the same update
	name := "Renamed"
	_, err := l.UpdateCategory(ctx, x.ID, expense.CategoryUpdate{Name: &name, ParentID: ref(z.ID)})

	// THEN: Conflict, and nothing changed
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err))
	assert.True(t, errors.Is(err, ledger.ErrCategoryCycle))

	got, err := l.Category(ctx, x.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.Equal(t, "Maintenance", got.Name)
}

func TestUpdateCategory_SelfParentRejected(t *testing.T) {
	l, _ := setup(t)
	x := category(t, l, "Utilities", nil)

	_, err := l.UpdateCategory(context.Background(), x.ID, expense.CategoryUpdate{ParentID: ref(x.ID)})

	assert.True(t, errors.Is(err, ledger.ErrCategoryCycle))
}

func TestUpdateCategory_ValidMoves(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	a := category(t, l, "A", nil)
	b := category(t, l, "B", nil)
	c := category(t, l, "C", ref(a.ID))

	moved, err := l.UpdateCategory(ctx, c.ID, expense.CategoryUpdate{ParentID: ref(b.ID)})
	require.NoError(t, err)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, b.ID, *moved.ParentID)

	flag := false
	root, err := l.UpdateCategory(ctx, c.ID, expense.CategoryUpdate{ClearParent: true, TaxDeductible: &flag})
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	assert.False(t, root.TaxDeductible)

	_, err = l.UpdateCategory(ctx, c.ID, expense.CategoryUpdate{ParentID: ref("missing")})
	assert.True(t, ledger.IsValidation(err))
}

func TestDeactivateCategory_ReassignsToParent(t *testing.T) {
	// GIVEN: Parent P, category C with two expenses and a child K
	l, _ := setup(t)
	ctx := context.Background()
	p := category(t, l, "Repairs", nil)
	c := category(t, l, "Roof", ref(p.ID))
	k := category(t, l, "Gutters", ref(c.ID))
	e1 := record(t, l, ref(c.ID), "120")
	e2 := record(t, l, ref(c.ID), "80")
	other := record(t, l, ref(k.ID), "15")

	// WHEN: C is deactivated
	res, err := l.DeactivateCategory(ctx, c.ID)
	require.NoError(t, err)

	// THEN: Its expenses and child now hang off P
	assert.Equal(t, 2, res.ExpensesReassigned)
	assert.Equal(t, 1, res.ChildrenReparented)
	assert.False(t, res.Category.Active)

	for _, id := range []ledger.ExpenseID{e1.ID, e2.ID} {
		got, err := l.Expense(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.CategoryID)
		assert.Equal(t, p.ID, *got.CategoryID)
	}
	kid, err := l.Category(ctx, k.ID)
	require.NoError(t, err)
	require.NotNil(t, kid.ParentID)
	assert.Equal(t, p.ID, *kid.ParentID)

	untouched, err := l.Expense(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, k.ID, *untouched.CategoryID)

	_, err = l.DeactivateCategory(ctx, c.ID)
	assert.True(t, ledger.IsConflict(err))

	_, err = l.RecordExpense(ctx, expense.ExpenseInput{
		Owner: ledger.OwnerContext{PropertyID: "prop-1"}, CategoryID: ref(c.ID),
		Amount: money("1"), TransactionDate: date("2024-03-02"),
	})
	assert.True(t, ledger.IsValidation(err))
}

func TestDeactivateCategory_RootCategoryUncategorizes(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	root := category(t, l, "Misc", nil)
	e := record(t, l, ref(root.ID), "9.99")

	res, err := l.DeactivateCategory(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpensesReassigned)

	got, err := l.Expense(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestRecordExpense_UnitOnly_DerivesProperty(t *testing.T) {
	l, _ := setup(t)

	e, err := l.RecordExpense(context.Background(), expense.ExpenseInput{
		Owner:           ledger.OwnerContext{UnitID: "unit-1"},
		Amount:          money("45.5"),
		TransactionDate: date("2024-02-10"),
	})

	require.NoError(t, err)
	assert.Equal(t, ledger.PropertyID("prop-1"), e.Owner.PropertyID)
	assert.Equal(t, ledger.ExpensePending, e.Status)
	assert.Equal(t, "45.50", e.Amount.StringFixed(2))
}

func TestRecordExpense_Validation(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	paidOn := date("2024-02-11")
	base := expense.ExpenseInput{
		Owner: ledger.OwnerContext{PropertyID: "prop-1"}, Amount: money("10"), TransactionDate: date("2024-02-10"),
	}

	tests := []struct {
		name   string
		mutate func(*expense.ExpenseInput)
		check  func(error) bool
	}{
		{"zero amount", func(in *expense.ExpenseInput) { in.Amount = decimal.Zero }, ledger.IsValidation},
		{"amount rounds to zero", func(in *expense.ExpenseInput) { in.Amount = money("0.004") }, ledger.IsValidation},
		{"negative tax", func(in *expense.ExpenseInput) { in.TaxAmount = money("-1") }, ledger.IsValidation},
		{"no owner", func(in *expense.ExpenseInput) { in.Owner = ledger.OwnerContext{} }, ledger.IsValidation},
		{"unit of another property", func(in *expense.ExpenseInput) {
			in.Owner = ledger.OwnerContext{PropertyID: "prop-1", UnitID: "unit-9"}
		}, ledger.IsValidation},
		{"paid without method", func(in *expense.ExpenseInput) {
			in.Status = ledger.ExpensePaid
			in.PaymentDate = &paidOn
		}, ledger.IsValidation},
		{"paid without date", func(in *expense.ExpenseInput) {
			in.Status = ledger.ExpensePaid
			in.PaymentMethod = "check"
		}, ledger.IsValidation},
		{"unknown status", func(in *expense.ExpenseInput) { in.Status = "refunded" }, ledger.IsValidation},
		{"unknown category", func(in *expense.ExpenseInput) { in.CategoryID = ref("nope") }, ledger.IsValidation},
		{"unknown property", func(in *expense.ExpenseInput) { in.Owner = ledger.OwnerContext{PropertyID: "prop-x"} }, ledger.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := l.RecordExpense(ctx, in)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	all, err := l.Expenses(ctx, ledger.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateStatus_PaidRule(t *testing.T) {
	// GIVEN: A pending expense
	l, _ := setup(t)
	ctx := context.Background()
	e := record(t, l, nil, "300")

	// WHEN: Marking it paid without details
	_, err := l.UpdateStatus(ctx, e.ID, expense.StatusChange{Status: ledger.ExpensePaid})

	// THEN: Rejected
	assert.True(t, ledger.IsValidation(err))

	// WHEN: With details
	paidOn := date("2024-03-05")
	paid, err := l.UpdateStatus(ctx, e.ID, expense.StatusChange{Status: ledger.ExpensePaid, PaymentDate: &paidOn, PaymentMethod: "ach"})

	// THEN: Stored
	require.NoError(t, err)
	assert.Equal(t, ledger.ExpensePaid, paid.Status)
	got, err := l.Expense(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentDate)
	assert.True(t, got.PaymentDate.Equal(paidOn))
	assert.Equal(t, "ach", got.PaymentMethod)

	// AND: Disputing clears the payment details
	disputed, err := l.UpdateStatus(ctx, e.ID, expense.StatusChange{Status: ledger.ExpenseDisputed})
	require.NoError(t, err)
	assert.Nil(t, disputed.PaymentDate)

	_, err = l.UpdateStatus(ctx, "missing", expense.StatusChange{Status: ledger.ExpenseCancelled})
	assert.True(t, ledger.IsNotFound(err))
}

func TestExpenses_Filters(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	c := category(t, l, "Landscaping", nil)
	record(t, l, ref(c.ID), "50")
	record(t, l, nil, "20")
	_, err := l.RecordExpense(ctx, expense.ExpenseInput{
		Owner: ledger.OwnerContext{UnitID: "unit-9"}, Vendor: "Other", Amount: money("5"), TransactionDate: date("2024-01-01"),
	})
	require.NoError(t, err)

	byProperty, err := l.Expenses(ctx, ledger.ExpenseFilter{PropertyID: "prop-1"})
	require.NoError(t, err)
	assert.Len(t, byProperty, 2)

	byCategory, err := l.Expenses(ctx, ledger.ExpenseFilter{CategoryID: ref(c.ID)})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.True(t, byCategory[0].Amount.Equal(money("50")))

	uncategorized, err := l.Expenses(ctx, ledger.ExpenseFilter{CategoryID: ref("")})
	require.NoError(t, err)
	assert.Len(t, uncategorized, 2)
}
