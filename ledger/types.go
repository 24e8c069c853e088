/*
Package ledger provides the core model of the obligation ledger engine.

PURPOSE:
  This package holds the types, pure algorithms and contracts shared by the
  billing, trust and expense ledgers. Nothing in here touches a database or
  a clock: persistence is behind the Store contracts in store.go, and every
  date is passed in by the caller.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: fixed-point decimal amounts, never float
  - Identifiers: typed ids so an obligation id can't be passed as a unit id
  - OwnerContext: the property/unit an obligation or account belongs to

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, rounded to cents at the edges
  2. Append-only: charges, payments and trust transactions are never
     edited, only status transitions and outstanding amounts move
  3. Type Safety: every id is its own string type

USAGE:
  rent := ledger.MustMoney("1000.00")
  obligation := ledger.RecurringObligation{
      ID:        ledger.ObligationID(ledger.NewID()),
      Amount:    rent,
      Frequency: ledger.Monthly,
      AnchorDay: 1,
  }

SEE ALSO:
  - period.go: Schedule resolution
  - allocation.go: FIFO payment allocation
  - store.go: Persistence contracts
*/
package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point amounts
// =============================================================================

// CentsPlaces is the number of decimal places money is rounded to.
const CentsPlaces = 2

// MustMoney parses a decimal string and panics on malformed input.
// Intended for constants and tests.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ParseMoney parses a decimal string into a money amount.
func ParseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError(field, "must be a decimal amount", err)
	}
	return d, nil
}

// Cents rounds an amount half-away-from-zero to two decimal places.
func Cents(d decimal.Decimal) decimal.Decimal { return d.Round(CentsPlaces) }

// PositiveCents reports whether d is still positive once rounded to cents.
// Amounts under half a cent round to zero and are not positive.
func PositiveCents(d decimal.Decimal) bool { return Cents(d).IsPositive() }

// Sum adds amounts together.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ObligationID string
	ConfigID     string
	ChargeID     string
	PaymentID    string
	AccountID    string
	TrustTxID    string
	CategoryID   string
	ExpenseID    string
	ReceiptID    string
	PropertyID   string
	UnitID       string
	LeaseID      string
)

// NewID returns a random UUID string for new records.
func NewID() string { return uuid.NewString() }

// =============================================================================
// OWNER CONTEXT
// =============================================================================

// OwnerContext scopes obligations, fee configurations, trust accounts and
// expenses. UnitID is optional; PropertyID is always resolved before a
// record is persisted.
type OwnerContext struct {
	PropertyID PropertyID
	UnitID     UnitID
}

// HasUnit reports whether the context is unit-scoped.
func (o OwnerContext) HasUnit() bool { return o.UnitID != "" }

// IsEmpty reports whether neither a property nor a unit is set.
func (o OwnerContext) IsEmpty() bool { return o.PropertyID == "" && o.UnitID == "" }
