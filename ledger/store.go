/*
store.go - Persistence contracts for the ledger engine

PURPOSE:
  Defines the interface between the engine and the database. Every
  component receives a TxStore at construction; there is no package-level
  connection. Queries take typed filter structs instead of SQL fragments.

KEY INTERFACES:
  ObligationStore: obligations + late-fee configurations
  ChargeStore:     late-fee charges (only billing writes these)
  PaymentStore:    payments + allocations (append-only)
  TrustStore:      trust accounts + postings
  ExpenseStore:    categories, expenses, receipt extractions
  PropertyStore:   properties, units, leases
  TxStore:         all of the above plus WithTx

FILTERS:
  A zero-valued filter field means "no constraint". Slices constrain to
  membership, pointers to ranges.

ROW LOCKS:
  LockObligation and LockTrustAccount take a row lock inside WithTx on
  databases that support it (SELECT ... FOR UPDATE). On SQLite the store
  serializes writers, so they only check the row exists.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

type ObligationFilter struct {
	IDs        []ObligationID
	PropertyID PropertyID
	UnitIDs    []UnitID
	Kind       ObligationKind
	Frequency  Frequency
	ActiveOnly bool
}

type LateFeeConfigFilter struct {
	PropertyID PropertyID
	UnitID     *UnitID // nil = any scope, pointer to "" = property scope only
	ActiveOnly bool
}

type ChargeFilter struct {
	ObligationIDs []ObligationID
	Statuses      []ChargeStatus
	PeriodStart   *Date
}

type PaymentFilter struct {
	ObligationIDs []ObligationID
	From          *Date
	To            *Date
}

type TrustAccountFilter struct {
	PropertyID PropertyID
	ActiveOnly bool
}

type CategoryFilter struct {
	ParentID   *CategoryID
	ActiveOnly bool
}

type ExpenseFilter struct {
	PropertyID PropertyID
	UnitID     UnitID
	CategoryID *CategoryID
	Vendor     string
	Statuses   []ExpenseStatus
	From       *Date
	To         *Date
}

type UnitFilter struct {
	PropertyID PropertyID
}

type LeaseFilter struct {
	UnitIDs  []UnitID
	ActiveOn *Date
}

// ChargeUpdate is the only mutation allowed on a charge: its outstanding
// amount and status.
type ChargeUpdate struct {
	ID           ChargeID
	Amount       decimal.Decimal
	Status       ChargeStatus
	WaivedReason string
}

// =============================================================================
// STORES
// =============================================================================

type ObligationStore interface {
	InsertObligation(ctx context.Context, o RecurringObligation) error
	SetObligationActive(ctx context.Context, id ObligationID, active bool) error
	GetObligation(ctx context.Context, id ObligationID) (RecurringObligation, error)
	ListObligations(ctx context.Context, f ObligationFilter) ([]RecurringObligation, error)
	LockObligation(ctx context.Context, id ObligationID) error

	InsertLateFeeConfig(ctx context.Context, c LateFeeConfig) error
	DeactivateLateFeeConfigs(ctx context.Context, owner OwnerContext) (int, error)
	ListLateFeeConfigs(ctx context.Context, f LateFeeConfigFilter) ([]LateFeeConfig, error)
}

type ChargeStore interface {
	// InsertCharge fails with ErrDuplicateCharge if the (obligation, period)
	// pair already has a charge.
	InsertCharge(ctx context.Context, c LateFeeCharge) error
	GetCharge(ctx context.Context, id ChargeID) (LateFeeCharge, error)
	// ListCharges returns charges oldest-created first.
	ListCharges(ctx context.Context, f ChargeFilter) ([]LateFeeCharge, error)
	UpdateCharge(ctx context.Context, u ChargeUpdate) error
}

type PaymentStore interface {
	// InsertPayment fails with ErrDuplicateIdempotencyKey on a reused key.
	InsertPayment(ctx context.Context, p Payment) error
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	InsertAllocations(ctx context.Context, allocs []Allocation) error
	ListAllocations(ctx context.Context, paymentID PaymentID) ([]Allocation, error)
}

type TrustStore interface {
	InsertTrustAccount(ctx context.Context, a TrustAccount) error
	GetTrustAccount(ctx context.Context, id AccountID) (TrustAccount, error)
	ListTrustAccounts(ctx context.Context, f TrustAccountFilter) ([]TrustAccount, error)
	LockTrustAccount(ctx context.Context, id AccountID) error
	SetTrustBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error
	InsertTrustTransaction(ctx context.Context, t TrustTransaction) error
	// ListTrustTransactions returns postings in the order they were written.
	ListTrustTransactions(ctx context.Context, id AccountID) ([]TrustTransaction, error)
}

type ExpenseStore interface {
	InsertCategory(ctx context.Context, c ExpenseCategory) error
	UpdateCategory(ctx context.Context, c ExpenseCategory) error
	GetCategory(ctx context.Context, id CategoryID) (ExpenseCategory, error)
	ListCategories(ctx context.Context, f CategoryFilter) ([]ExpenseCategory, error)
	// ReparentCategories moves every child of from to to (nil = root).
	ReparentCategories(ctx context.Context, from CategoryID, to *CategoryID) (int, error)

	InsertExpense(ctx context.Context, e Expense) error
	UpdateExpense(ctx context.Context, e Expense) error
	GetExpense(ctx context.Context, id ExpenseID) (Expense, error)
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error)
	// ReassignExpenses moves every expense in from to to (nil = uncategorized).
	ReassignExpenses(ctx context.Context, from CategoryID, to *CategoryID) (int, error)

	// InsertReceiptExtraction fails with ErrDuplicateReceipt on a known receipt.
	InsertReceiptExtraction(ctx context.Context, r ReceiptExtraction) error
	GetReceiptExtraction(ctx context.Context, id ReceiptID) (ReceiptExtraction, error)
}

type PropertyStore interface {
	InsertProperty(ctx context.Context, p Property) error
	GetProperty(ctx context.Context, id PropertyID) (Property, error)
	ListProperties(ctx context.Context) ([]Property, error)
	InsertUnit(ctx context.Context, u Unit) error
	GetUnit(ctx context.Context, id UnitID) (Unit, error)
	ListUnits(ctx context.Context, f UnitFilter) ([]Unit, error)
	InsertLease(ctx context.Context, l Lease) error
	GetLease(ctx context.Context, id LeaseID) (Lease, error)
	ListLeases(ctx context.Context, f LeaseFilter) ([]Lease, error)
}

// Store is the full persistence surface.
type Store interface {
	ObligationStore
	ChargeStore
	PaymentStore
	TrustStore
	ExpenseStore
	PropertyStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ResolveOwner fills in the property of a unit-only owner context and
// rejects contexts whose unit belongs to a different property.
func ResolveOwner(ctx context.Context, s PropertyStore, owner OwnerContext) (OwnerContext, error) {
	if owner.IsEmpty() {
		return owner, NewValidationError("owner", "property or unit is required", nil)
	}
	if !owner.HasUnit() {
		if _, err := s.GetProperty(ctx, owner.PropertyID); err != nil {
			return owner, err
		}
		return owner, nil
	}

	unit, err := s.GetUnit(ctx, owner.UnitID)
	if err != nil {
		return owner, err
	}
	if owner.PropertyID != "" && owner.PropertyID != unit.PropertyID {
		return owner, NewValidationError("property_id",
			"unit "+string(unit.ID)+" belongs to property "+string(unit.PropertyID), nil)
	}
	owner.PropertyID = unit.PropertyID
	return owner, nil
}
