package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECURRING OBLIGATION
// =============================================================================

// ObligationKind separates rent owed to the landlord from scheduled expenses.
type ObligationKind string

const (
	KindRent    ObligationKind = "rent"
	KindExpense ObligationKind = "expense"
)

func (k ObligationKind) Valid() bool { return k == KindRent || k == KindExpense }

// RecurringObligation is an amount owed on a schedule. Obligations are
// deactivated when superseded, never deleted.
type RecurringObligation struct {
	ID          ObligationID
	Owner       OwnerContext
	LeaseID     LeaseID
	Kind        ObligationKind
	Description string
	Amount      decimal.Decimal
	Frequency   Frequency
	AnchorDay   int
	StartDate   Date
	EndDate     *Date
	Active      bool
	CreatedAt   time.Time
}

// CoversDate reports whether d falls within the obligation's validity window.
func (o RecurringObligation) CoversDate(d Date) bool {
	if d.Before(o.StartDate) {
		return false
	}
	return o.EndDate == nil || d.BeforeOrEqual(*o.EndDate)
}

// =============================================================================
// LATE-FEE CONFIGURATION
// =============================================================================

type FeeType string

const (
	FeeFixed      FeeType = "fixed"
	FeePercentage FeeType = "percentage"
)

// LateFeeConfig is the late-fee policy of a property or unit. For percentage
// fees FeeValue is a rate in percent of the outstanding balance.
type LateFeeConfig struct {
	ID              ConfigID
	Owner           OwnerContext
	FeeType         FeeType
	FeeValue        decimal.Decimal
	GracePeriodDays int
	MinimumFee      *decimal.Decimal
	MaximumFee      *decimal.Decimal
	Active          bool
	CreatedAt       time.Time
}

// =============================================================================
// LATE-FEE CHARGE
// =============================================================================

type ChargeStatus string

const (
	ChargePending ChargeStatus = "pending"
	ChargePaid    ChargeStatus = "paid"
	ChargeWaived  ChargeStatus = "waived"
)

// LateFeeCharge is a late fee for one obligation and one period. Amount is
// the outstanding amount and shrinks with partial payments; OriginalAmount
// is what the sweep charged.
type LateFeeCharge struct {
	ID             ChargeID
	ObligationID   ObligationID
	Period         Period
	Amount         decimal.Decimal
	OriginalAmount decimal.Decimal
	Status         ChargeStatus
	WaivedReason   string
	CreatedAt      time.Time
}

// =============================================================================
// PAYMENT & ALLOCATION
// =============================================================================

// Payment is an immutable receipt of funds against an obligation.
type Payment struct {
	ID             PaymentID
	ObligationID   ObligationID
	Amount         decimal.Decimal
	PaymentDate    Date
	Method         string
	Reference      string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Allocation records how much of a payment went to one late-fee charge.
type Allocation struct {
	PaymentID PaymentID
	ChargeID  ChargeID
	Amount    decimal.Decimal
	Full      bool
}

// =============================================================================
// TRUST ACCOUNTS
// =============================================================================

type AccountType string

const (
	AccountEscrow          AccountType = "escrow"
	AccountReserve         AccountType = "reserve"
	AccountSecurityDeposit AccountType = "security_deposit"
	AccountOperating       AccountType = "operating"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountEscrow, AccountReserve, AccountSecurityDeposit, AccountOperating:
		return true
	}
	return false
}

// TrustAccount holds segregated funds. Balance is a cache of the running
// sum of its transactions.
type TrustAccount struct {
	ID          AccountID
	Owner       OwnerContext
	Name        string
	AccountType AccountType
	Balance     decimal.Decimal
	Active      bool
	CreatedAt   time.Time
}

type TrustTxType string

const (
	TrustDeposit    TrustTxType = "deposit"
	TrustWithdrawal TrustTxType = "withdrawal"
)

// TrustTransaction is one posting. Amount is a positive magnitude; the sign
// comes from Type.
type TrustTransaction struct {
	ID               TrustTxID
	AccountID        AccountID
	Type             TrustTxType
	Amount           decimal.Decimal
	BalanceAfter     decimal.Decimal
	RelatedAccountID AccountID
	TransferID       string
	Description      string
	Reference        string
	CreatedAt        time.Time
}

// SignedAmount is +Amount for deposits and -Amount for withdrawals.
func (t TrustTransaction) SignedAmount() decimal.Decimal {
	if t.Type == TrustWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}

// =============================================================================
// EXPENSES
// =============================================================================

// ExpenseCategory is a node in the category tree.
type ExpenseCategory struct {
	ID            CategoryID
	Name          string
	ParentID      *CategoryID
	TaxDeductible bool
	Active        bool
	CreatedAt     time.Time
}

type ExpenseStatus string

const (
	ExpensePending   ExpenseStatus = "pending"
	ExpensePaid      ExpenseStatus = "paid"
	ExpenseCancelled ExpenseStatus = "cancelled"
	ExpenseDisputed  ExpenseStatus = "disputed"
)

func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpensePending, ExpensePaid, ExpenseCancelled, ExpenseDisputed:
		return true
	}
	return false
}

// Expense is money spent against a property or unit.
type Expense struct {
	ID              ExpenseID
	CategoryID      *CategoryID
	Owner           OwnerContext
	Vendor          string
	Description     string
	Amount          decimal.Decimal
	TaxAmount       decimal.Decimal
	TransactionDate Date
	Status          ExpenseStatus
	PaymentDate     *Date
	PaymentMethod   string
	ReceiptID       ReceiptID
	CreatedAt       time.Time
}

// ReceiptExtraction is the structured output of the external receipt
// text extractor, stored once per receipt.
type ReceiptExtraction struct {
	ReceiptID  ReceiptID
	ExpenseID  ExpenseID
	Text       string
	Confidence float64
	Fields     map[string]string
	CreatedAt  time.Time
}

// =============================================================================
// PROPERTIES, UNITS, LEASES
// =============================================================================

type Property struct {
	ID        PropertyID
	Name      string
	CreatedAt time.Time
}

type Unit struct {
	ID         UnitID
	PropertyID PropertyID
	Number     string
	MarketRent decimal.Decimal
	CreatedAt  time.Time
}

type Lease struct {
	ID          LeaseID
	UnitID      UnitID
	TenantName  string
	MonthlyRent decimal.Decimal
	StartDate   Date
	EndDate     *Date
	Active      bool
	CreatedAt   time.Time
}

// ActiveOn reports whether the lease is active and d is inside its term.
func (l Lease) ActiveOn(d Date) bool {
	if !l.Active || d.Before(l.StartDate) {
		return false
	}
	return l.EndDate == nil || d.BeforeOrEqual(*l.EndDate)
}
