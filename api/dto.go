/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Amounts travel as decimal strings ("1000.00"), never JSON numbers.
  Dates are YYYY-MM-DD strings.

VALIDATION:
  Request shapes are checked with go-playground/validator struct tags
  before the handler runs. The engine re-checks every business rule, so
  the tags only catch malformed input early.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: How validation failures are reported
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/report"
	"github.com/wdeanegpt/property-sub001/trust"
)

// =============================================================================
// SHARED
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// OwnerDTO is embedded in requests and responses that carry an owner.
type OwnerDTO struct {
	PropertyID string `json:"property_id,omitempty" validate:"required_without=UnitID"`
	UnitID     string `json:"unit_id,omitempty"`
}

func (o OwnerDTO) owner() ledger.OwnerContext {
	return ledger.OwnerContext{PropertyID: ledger.PropertyID(o.PropertyID), UnitID: ledger.UnitID(o.UnitID)}
}

func ownerDTO(o ledger.OwnerContext) OwnerDTO {
	return OwnerDTO{PropertyID: string(o.PropertyID), UnitID: string(o.UnitID)}
}

func money(d decimal.Decimal) string { return d.StringFixed(ledger.CentsPlaces) }

func optionalMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

// =============================================================================
// PROPERTIES, UNITS, LEASES
// =============================================================================

type CreatePropertyRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
}

type PropertyDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateUnitRequest struct {
	ID         string `json:"id,omitempty"`
	Number     string `json:"number" validate:"required"`
	MarketRent string `json:"market_rent" validate:"required,numeric"`
}

type UnitDTO struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Number     string `json:"number"`
	MarketRent string `json:"market_rent"`
}

type CreateLeaseRequest struct {
	ID          string       `json:"id,omitempty"`
	TenantName  string       `json:"tenant_name" validate:"required"`
	MonthlyRent string       `json:"monthly_rent" validate:"required,numeric"`
	StartDate   ledger.Date  `json:"start_date"`
	EndDate     *ledger.Date `json:"end_date,omitempty"`
}

type LeaseDTO struct {
	ID          string       `json:"id"`
	UnitID      string       `json:"unit_id"`
	TenantName  string       `json:"tenant_name"`
	MonthlyRent string       `json:"monthly_rent"`
	StartDate   ledger.Date  `json:"start_date"`
	EndDate     *ledger.Date `json:"end_date,omitempty"`
	Active      bool         `json:"active"`
}

func toPropertyDTO(p ledger.Property) PropertyDTO {
	return PropertyDTO{ID: string(p.ID), Name: p.Name}
}

func toUnitDTO(u ledger.Unit) UnitDTO {
	return UnitDTO{ID: string(u.ID), PropertyID: string(u.PropertyID), Number: u.Number, MarketRent: money(u.MarketRent)}
}

func toLeaseDTO(l ledger.Lease) LeaseDTO {
	return LeaseDTO{
		ID:          string(l.ID),
		UnitID:      string(l.UnitID),
		TenantName:  l.TenantName,
		MonthlyRent: money(l.MonthlyRent),
		StartDate:   l.StartDate,
		EndDate:     l.EndDate,
		Active:      l.Active,
	}
}

// =============================================================================
// OBLIGATIONS & LATE-FEE CONFIGURATION
// =============================================================================

type CreateObligationRequest struct {
	OwnerDTO
	LeaseID     string       `json:"lease_id,omitempty"`
	Kind        string       `json:"kind" validate:"required,oneof=rent expense"`
	Description string       `json:"description"`
	Amount      string       `json:"amount" validate:"required,numeric"`
	Frequency   string       `json:"frequency" validate:"required,oneof=monthly quarterly annual"`
	AnchorDay   int          `json:"anchor_day" validate:"required,min=1,max=31"`
	StartDate   ledger.Date  `json:"start_date"`
	EndDate     *ledger.Date `json:"end_date,omitempty"`
}

// SupersedeObligationRequest replaces an obligation. The owner may be left
// out to keep the old one.
type SupersedeObligationRequest struct {
	OwnerDTO    `validate:"-"`
	LeaseID     string       `json:"lease_id,omitempty"`
	Kind        string       `json:"kind" validate:"required,oneof=rent expense"`
	Description string       `json:"description"`
	Amount      string       `json:"amount" validate:"required,numeric"`
	Frequency   string       `json:"frequency" validate:"required,oneof=monthly quarterly annual"`
	AnchorDay   int          `json:"anchor_day" validate:"required,min=1,max=31"`
	StartDate   ledger.Date  `json:"start_date"`
	EndDate     *ledger.Date `json:"end_date,omitempty"`
}

type ObligationDTO struct {
	ID string `json:"id"`
	OwnerDTO
	LeaseID     string       `json:"lease_id,omitempty"`
	Kind        string       `json:"kind"`
	Description string       `json:"description,omitempty"`
	Amount      string       `json:"amount"`
	Frequency   string       `json:"frequency"`
	AnchorDay   int          `json:"anchor_day"`
	StartDate   ledger.Date  `json:"start_date"`
	EndDate     *ledger.Date `json:"end_date,omitempty"`
	Active      bool         `json:"active"`
}

func toObligationDTO(o ledger.RecurringObligation) ObligationDTO {
	return ObligationDTO{
		ID:          string(o.ID),
		OwnerDTO:    ownerDTO(o.Owner),
		LeaseID:     string(o.LeaseID),
		Kind:        string(o.Kind),
		Description: o.Description,
		Amount:      money(o.Amount),
		Frequency:   string(o.Frequency),
		AnchorDay:   o.AnchorDay,
		StartDate:   o.StartDate,
		EndDate:     o.EndDate,
		Active:      o.Active,
	}
}

type LateFeeConfigRequest struct {
	OwnerDTO
	FeeType         string `json:"fee_type" validate:"required,oneof=fixed percentage"`
	FeeValue        string `json:"fee_value" validate:"required,numeric"`
	GracePeriodDays int    `json:"grace_period_days" validate:"min=0"`
	MinimumFee      string `json:"minimum_fee,omitempty" validate:"omitempty,numeric"`
	MaximumFee      string `json:"maximum_fee,omitempty" validate:"omitempty,numeric"`
}

type LateFeeConfigDTO struct {
	ID string `json:"id"`
	OwnerDTO
	FeeType         string  `json:"fee_type"`
	FeeValue        string  `json:"fee_value"`
	GracePeriodDays int     `json:"grace_period_days"`
	MinimumFee      *string `json:"minimum_fee,omitempty"`
	MaximumFee      *string `json:"maximum_fee,omitempty"`
	Active          bool    `json:"active"`
}

func toLateFeeConfigDTO(c ledger.LateFeeConfig) LateFeeConfigDTO {
	return LateFeeConfigDTO{
		ID:              string(c.ID),
		OwnerDTO:        ownerDTO(c.Owner),
		FeeType:         string(c.FeeType),
		FeeValue:        c.FeeValue.String(),
		GracePeriodDays: c.GracePeriodDays,
		MinimumFee:      optionalMoney(c.MinimumFee),
		MaximumFee:      optionalMoney(c.MaximumFee),
		Active:          c.Active,
	}
}

// =============================================================================
// CHARGES, PAYMENTS, SWEEP
// =============================================================================

type ChargeDTO struct {
	ID             string      `json:"id"`
	ObligationID   string      `json:"obligation_id"`
	PeriodStart    ledger.Date `json:"period_start"`
	PeriodEnd      ledger.Date `json:"period_end"`
	Amount         string      `json:"amount"`
	OriginalAmount string      `json:"original_amount"`
	Status         string      `json:"status"`
	WaivedReason   string      `json:"waived_reason,omitempty"`
}

func toChargeDTO(c ledger.LateFeeCharge) ChargeDTO {
	return ChargeDTO{
		ID:             string(c.ID),
		ObligationID:   string(c.ObligationID),
		PeriodStart:    c.Period.Start,
		PeriodEnd:      c.Period.End,
		Amount:         money(c.Amount),
		OriginalAmount: money(c.OriginalAmount),
		Status:         string(c.Status),
		WaivedReason:   c.WaivedReason,
	}
}

func toChargeDTOs(cs []ledger.LateFeeCharge) []ChargeDTO {
	out := make([]ChargeDTO, len(cs))
	for i, c := range cs {
		out[i] = toChargeDTO(c)
	}
	return out
}

// RecordPaymentRequest records a payment. The idempotency key may also be
// sent as the Idempotency-Key header.
type RecordPaymentRequest struct {
	Amount         string      `json:"amount" validate:"required,numeric"`
	PaymentDate    ledger.Date `json:"payment_date"`
	Method         string      `json:"method" validate:"required"`
	Reference      string      `json:"reference,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

type PaymentDTO struct {
	ID             string      `json:"id"`
	ObligationID   string      `json:"obligation_id"`
	Amount         string      `json:"amount"`
	PaymentDate    ledger.Date `json:"payment_date"`
	Method         string      `json:"method"`
	Reference      string      `json:"reference,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:             string(p.ID),
		ObligationID:   string(p.ObligationID),
		Amount:         money(p.Amount),
		PaymentDate:    p.PaymentDate,
		Method:         p.Method,
		Reference:      p.Reference,
		IdempotencyKey: p.IdempotencyKey,
	}
}

type AllocationDTO struct {
	ChargeID string `json:"charge_id"`
	Amount   string `json:"amount"`
	Full     bool   `json:"full"`
}

func toAllocationDTOs(as []ledger.Allocation) []AllocationDTO {
	out := make([]AllocationDTO, len(as))
	for i, a := range as {
		out[i] = AllocationDTO{ChargeID: string(a.ChargeID), Amount: money(a.Amount), Full: a.Full}
	}
	return out
}

type PaymentResultDTO struct {
	Payment     PaymentDTO      `json:"payment"`
	Allocations []AllocationDTO `json:"allocations"`
	Remainder   string          `json:"remainder"`
}

func toPaymentResultDTO(r billing.PaymentResult) PaymentResultDTO {
	return PaymentResultDTO{
		Payment:     toPaymentDTO(r.Payment),
		Allocations: toAllocationDTOs(r.Allocations),
		Remainder:   money(r.Remainder),
	}
}

type WaiveChargeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type OutstandingDTO struct {
	ObligationID    string      `json:"obligation_id"`
	AsOf            ledger.Date `json:"as_of"`
	Due             ledger.Date `json:"due"`
	PeriodStart     ledger.Date `json:"period_start"`
	PeriodEnd       ledger.Date `json:"period_end"`
	BaseAmount      string      `json:"base_amount"`
	PaidInPeriod    string      `json:"paid_in_period"`
	BaseOutstanding string      `json:"base_outstanding"`
	PendingFees     string      `json:"pending_fees"`
	PendingCharges  int         `json:"pending_charges"`
	Total           string      `json:"total"`
}

func toOutstandingDTO(b billing.OutstandingBalance) OutstandingDTO {
	return OutstandingDTO{
		ObligationID:    string(b.ObligationID),
		AsOf:            b.AsOf,
		Due:             b.Due,
		PeriodStart:     b.Period.Start,
		PeriodEnd:       b.Period.End,
		BaseAmount:      money(b.BaseAmount),
		PaidInPeriod:    money(b.PaidInPeriod),
		BaseOutstanding: money(b.BaseOutstanding),
		PendingFees:     money(b.PendingFees),
		PendingCharges:  b.PendingCharges,
		Total:           money(b.Total),
	}
}

// SweepRequest triggers a late-fee sweep. AsOf defaults to today.
type SweepRequest struct {
	AsOf ledger.Date `json:"as_of"`
}

type SweepFailureDTO struct {
	ObligationID string `json:"obligation_id"`
	Error        string `json:"error"`
}

type SweepResultDTO struct {
	AsOf      ledger.Date       `json:"as_of"`
	Evaluated int               `json:"evaluated"`
	Charges   []ChargeDTO       `json:"charges"`
	Skipped   map[string]int    `json:"skipped"`
	Failures  []SweepFailureDTO `json:"failures,omitempty"`
}

func toSweepResultDTO(r billing.SweepResult) SweepResultDTO {
	dto := SweepResultDTO{
		AsOf:      r.AsOf,
		Evaluated: r.Evaluated,
		Charges:   toChargeDTOs(r.Charges),
		Skipped:   make(map[string]int, len(r.Skipped)),
	}
	for reason, n := range r.Skipped {
		dto.Skipped[string(reason)] = n
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, SweepFailureDTO{ObligationID: string(f.ObligationID), Error: f.Err.Error()})
	}
	return dto
}

type EvaluationDTO struct {
	ObligationID string      `json:"obligation_id"`
	AsOf         ledger.Date `json:"as_of"`
	Due          ledger.Date `json:"due"`
	PeriodStart  ledger.Date `json:"period_start"`
	PeriodEnd    ledger.Date `json:"period_end"`
	Paid         string      `json:"paid"`
	Outstanding  string      `json:"outstanding"`
	Charge       *ChargeDTO  `json:"charge,omitempty"`
	Skip         string      `json:"skip,omitempty"`
}

func toEvaluationDTO(e billing.Evaluation) EvaluationDTO {
	dto := EvaluationDTO{
		ObligationID: string(e.ObligationID),
		AsOf:         e.AsOf,
		Due:          e.Due,
		PeriodStart:  e.Period.Start,
		PeriodEnd:    e.Period.End,
		Paid:         money(e.Paid),
		Outstanding:  money(e.Outstanding),
		Skip:         string(e.Skip),
	}
	if e.Charge != nil {
		c := toChargeDTO(*e.Charge)
		dto.Charge = &c
	}
	return dto
}

// =============================================================================
// TRUST ACCOUNTS
// =============================================================================

type OpenAccountRequest struct {
	OwnerDTO
	Name           string `json:"name" validate:"required"`
	AccountType    string `json:"account_type" validate:"required,oneof=escrow reserve security_deposit operating"`
	OpeningBalance string `json:"opening_balance,omitempty" validate:"omitempty,numeric"`
}

type AccountDTO struct {
	ID string `json:"id"`
	OwnerDTO
	Name        string `json:"name"`
	AccountType string `json:"account_type"`
	Balance     string `json:"balance"`
	Active      bool   `json:"active"`
}

func toAccountDTO(a ledger.TrustAccount) AccountDTO {
	return AccountDTO{
		ID:          string(a.ID),
		OwnerDTO:    ownerDTO(a.Owner),
		Name:        a.Name,
		AccountType: string(a.AccountType),
		Balance:     money(a.Balance),
		Active:      a.Active,
	}
}

// PostingRequest is a deposit or a withdrawal.
type PostingRequest struct {
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required"`
	ToAccountID   string `json:"to_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Description   string `json:"description,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

type TrustTransactionDTO struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	BalanceAfter     string `json:"balance_after"`
	RelatedAccountID string `json:"related_account_id,omitempty"`
	TransferID       string `json:"transfer_id,omitempty"`
	Description      string `json:"description,omitempty"`
	Reference        string `json:"reference,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toTrustTransactionDTO(t ledger.TrustTransaction) TrustTransactionDTO {
	return TrustTransactionDTO{
		ID:               string(t.ID),
		AccountID:        string(t.AccountID),
		Type:             string(t.Type),
		Amount:           money(t.Amount),
		BalanceAfter:     money(t.BalanceAfter),
		RelatedAccountID: string(t.RelatedAccountID),
		TransferID:       t.TransferID,
		Description:      t.Description,
		Reference:        t.Reference,
		CreatedAt:        t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type TransferDTO struct {
	TransferID string              `json:"transfer_id"`
	Withdrawal TrustTransactionDTO `json:"withdrawal"`
	Deposit    TrustTransactionDTO `json:"deposit"`
}

func toTransferDTO(r trust.TransferResult) TransferDTO {
	return TransferDTO{
		TransferID: r.TransferID,
		Withdrawal: toTrustTransactionDTO(r.Withdrawal),
		Deposit:    toTrustTransactionDTO(r.Deposit),
	}
}

type ReconciliationDTO struct {
	AccountID    string   `json:"account_id"`
	Stored       string   `json:"stored"`
	Computed     string   `json:"computed"`
	Transactions int      `json:"transactions"`
	ChainBreaks  []string `json:"chain_breaks,omitempty"`
	Balanced     bool     `json:"balanced"`
}

func toReconciliationDTO(r trust.ReconciliationReport) ReconciliationDTO {
	dto := ReconciliationDTO{
		AccountID:    string(r.AccountID),
		Stored:       money(r.Stored),
		Computed:     money(r.Computed),
		Transactions: r.Transactions,
		Balanced:     r.Balanced(),
	}
	for _, id := range r.ChainBreaks {
		dto.ChainBreaks = append(dto.ChainBreaks, string(id))
	}
	return dto
}

// =============================================================================
// EXPENSES
// =============================================================================

type CreateCategoryRequest struct {
	Name          string  `json:"name" validate:"required"`
	ParentID      *string `json:"parent_id,omitempty"`
	TaxDeductible bool    `json:"tax_deductible"`
}

// UpdateCategoryRequest changes only the fields present.
type UpdateCategoryRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1"`
	TaxDeductible *bool   `json:"tax_deductible,omitempty"`
	ParentID      *string `json:"parent_id,omitempty"`
	ClearParent   bool    `json:"clear_parent,omitempty"`
}

type CategoryDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ParentID      *string `json:"parent_id,omitempty"`
	TaxDeductible bool    `json:"tax_deductible"`
	Active        bool    `json:"active"`
}

func toCategoryDTO(c ledger.ExpenseCategory) CategoryDTO {
	return CategoryDTO{
		ID:            string(c.ID),
		Name:          c.Name,
		ParentID:      categoryString(c.ParentID),
		TaxDeductible: c.TaxDeductible,
		Active:        c.Active,
	}
}

type DeactivationDTO struct {
	Category           CategoryDTO `json:"category"`
	ExpensesReassigned int         `json:"expenses_reassigned"`
	ChildrenReparented int         `json:"children_reparented"`
}

type CreateExpenseRequest struct {
	OwnerDTO
	CategoryID      *string      `json:"category_id,omitempty"`
	Vendor          string       `json:"vendor,omitempty"`
	Description     string       `json:"description,omitempty"`
	Amount          string       `json:"amount" validate:"required,numeric"`
	TaxAmount       string       `json:"tax_amount,omitempty" validate:"omitempty,numeric"`
	TransactionDate ledger.Date  `json:"transaction_date"`
	Status          string       `json:"status,omitempty" validate:"omitempty,oneof=pending paid cancelled disputed"`
	PaymentDate     *ledger.Date `json:"payment_date,omitempty"`
	PaymentMethod   string       `json:"payment_method,omitempty"`
	ReceiptID       string       `json:"receipt_id,omitempty"`
}

type ExpenseStatusRequest struct {
	Status        string       `json:"status" validate:"required,oneof=pending paid cancelled disputed"`
	PaymentDate   *ledger.Date `json:"payment_date,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
}

// RecategorizeRequest moves an expense; a null category uncategorizes it.
type RecategorizeRequest struct {
	CategoryID *string `json:"category_id"`
}

type ExpenseDTO struct {
	ID         string  `json:"id"`
	CategoryID *string `json:"category_id,omitempty"`
	OwnerDTO
	Vendor          string       `json:"vendor,omitempty"`
	Description     string       `json:"description,omitempty"`
	Amount          string       `json:"amount"`
	TaxAmount       string       `json:"tax_amount"`
	TransactionDate ledger.Date  `json:"transaction_date"`
	Status          string       `json:"status"`
	PaymentDate     *ledger.Date `json:"payment_date,omitempty"`
	PaymentMethod   string       `json:"payment_method,omitempty"`
	ReceiptID       string       `json:"receipt_id,omitempty"`
}

func toExpenseDTO(e ledger.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:              string(e.ID),
		CategoryID:      categoryString(e.CategoryID),
		OwnerDTO:        ownerDTO(e.Owner),
		Vendor:          e.Vendor,
		Description:     e.Description,
		Amount:          money(e.Amount),
		TaxAmount:       money(e.TaxAmount),
		TransactionDate: e.TransactionDate,
		Status:          string(e.Status),
		PaymentDate:     e.PaymentDate,
		PaymentMethod:   e.PaymentMethod,
		ReceiptID:       string(e.ReceiptID),
	}
}

// SubmitReceiptRequest queues a receipt image (base64 in JSON).
type SubmitReceiptRequest struct {
	ReceiptID string `json:"receipt_id" validate:"required"`
	ExpenseID string `json:"expense_id,omitempty"`
	Image     []byte `json:"image" validate:"required"`
}

// ExpenseDraftDTO is an expense pre-filled from a receipt, for the client
// to complete and post to /expenses.
type ExpenseDraftDTO struct {
	Vendor          string      `json:"vendor,omitempty"`
	Description     string      `json:"description,omitempty"`
	Amount          string      `json:"amount,omitempty"`
	TaxAmount       string      `json:"tax_amount,omitempty"`
	TransactionDate ledger.Date `json:"transaction_date"`
	ReceiptID       string      `json:"receipt_id"`
}

func toExpenseDraftDTO(in expense.ExpenseInput) ExpenseDraftDTO {
	dto := ExpenseDraftDTO{
		Vendor:          in.Vendor,
		Description:     in.Description,
		TransactionDate: in.TransactionDate,
		ReceiptID:       string(in.ReceiptID),
	}
	if !in.Amount.IsZero() {
		dto.Amount = money(in.Amount)
	}
	if !in.TaxAmount.IsZero() {
		dto.TaxAmount = money(in.TaxAmount)
	}
	return dto
}

func categoryString(id *ledger.CategoryID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func categoryID(s *string) *ledger.CategoryID {
	if s == nil {
		return nil
	}
	id := ledger.CategoryID(*s)
	return &id
}

// =============================================================================
// REPORTS
// =============================================================================

type RentRollRowDTO struct {
	Unit          UnitDTO   `json:"unit"`
	Lease         *LeaseDTO `json:"lease,omitempty"`
	Occupied      bool      `json:"occupied"`
	ScheduledRent string    `json:"scheduled_rent"`
	Collected     string    `json:"collected"`
	Balance       string    `json:"balance"`
	PotentialRent string    `json:"potential_rent"`
}

type RentRollDTO struct {
	PropertyID    string           `json:"property_id"`
	AsOf          ledger.Date      `json:"as_of"`
	Rows          []RentRollRowDTO `json:"rows"`
	TotalUnits    int              `json:"total_units"`
	OccupiedUnits int              `json:"occupied_units"`
	OccupancyRate string           `json:"occupancy_rate"`
	ScheduledRent string           `json:"scheduled_rent"`
	Collected     string           `json:"collected"`
	Balance       string           `json:"balance"`
	PotentialRent string           `json:"potential_rent"`
}

func toRentRollDTO(r report.RentRoll) RentRollDTO {
	dto := RentRollDTO{
		PropertyID:    string(r.PropertyID),
		AsOf:          r.AsOf,
		Rows:          make([]RentRollRowDTO, len(r.Rows)),
		TotalUnits:    r.TotalUnits,
		OccupiedUnits: r.OccupiedUnits,
		OccupancyRate: r.OccupancyRate.StringFixed(4),
		ScheduledRent: money(r.ScheduledRent),
		Collected:     money(r.Collected),
		Balance:       money(r.Balance),
		PotentialRent: money(r.PotentialRent),
	}
	for i, row := range r.Rows {
		d := RentRollRowDTO{
			Unit:          toUnitDTO(row.Unit),
			Occupied:      row.Occupied,
			ScheduledRent: money(row.ScheduledRent),
			Collected:     money(row.Collected),
			Balance:       money(row.Balance),
			PotentialRent: money(row.PotentialRent),
		}
		if row.Lease != nil {
			l := toLeaseDTO(*row.Lease)
			d.Lease = &l
		}
		dto.Rows[i] = d
	}
	return dto
}

type AgingLineDTO struct {
	Charge  ChargeDTO `json:"charge"`
	UnitID  string    `json:"unit_id,omitempty"`
	AgeDays int       `json:"age_days"`
	Bucket  string    `json:"bucket"`
}

type AgingTotalDTO struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
	Total  string `json:"total"`
}

type AgingDTO struct {
	PropertyID string          `json:"property_id"`
	AsOf       ledger.Date     `json:"as_of"`
	Lines      []AgingLineDTO  `json:"lines"`
	Totals     []AgingTotalDTO `json:"totals"`
	Total      string          `json:"total"`
}

func toAgingDTO(r report.AgingReport) AgingDTO {
	dto := AgingDTO{
		PropertyID: string(r.PropertyID),
		AsOf:       r.AsOf,
		Lines:      make([]AgingLineDTO, len(r.Lines)),
		Totals:     make([]AgingTotalDTO, len(r.Totals)),
		Total:      money(r.Total),
	}
	for i, l := range r.Lines {
		dto.Lines[i] = AgingLineDTO{Charge: toChargeDTO(l.Charge), UnitID: string(l.Owner.UnitID), AgeDays: l.AgeDays, Bucket: string(l.Bucket)}
	}
	for i, t := range r.Totals {
		dto.Totals[i] = AgingTotalDTO{Bucket: string(t.Bucket), Count: t.Count, Total: money(t.Total)}
	}
	return dto
}

type ExpenseGroupDTO struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Count         int    `json:"count"`
	Total         string `json:"total"`
	Tax           string `json:"tax"`
	TaxDeductible string `json:"tax_deductible"`
}

type ExpenseReportDTO struct {
	GroupBy       string            `json:"group_by"`
	Groups        []ExpenseGroupDTO `json:"groups"`
	Count         int               `json:"count"`
	Total         string            `json:"total"`
	Tax           string            `json:"tax"`
	TaxDeductible string            `json:"tax_deductible"`
}

func toExpenseReportDTO(r report.ExpenseReport) ExpenseReportDTO {
	dto := ExpenseReportDTO{
		GroupBy:       string(r.GroupBy),
		Groups:        make([]ExpenseGroupDTO, len(r.Groups)),
		Count:         r.Count,
		Total:         money(r.Total),
		Tax:           money(r.Tax),
		TaxDeductible: money(r.TaxDeductible),
	}
	for i, g := range r.Groups {
		dto.Groups[i] = ExpenseGroupDTO{
			Key: g.Key, Label: g.Label, Count: g.Count,
			Total: money(g.Total), Tax: money(g.Tax), TaxDeductible: money(g.TaxDeductible),
		}
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ScenarioResultDTO lists what a scenario created and what it observed.
type ScenarioResultDTO struct {
	Scenario ScenarioDTO       `json:"scenario"`
	Created  map[string]string `json:"created"`
	Outcome  any               `json:"outcome"`
}
