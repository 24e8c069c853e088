package expense

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// EXPENSES
// =============================================================================

// ExpenseInput records an expense. Owner needs a property or a unit; with
// only a unit the property is derived. Status defaults to pending.
type ExpenseInput struct {
	Owner           ledger.OwnerContext
	CategoryID      *ledger.CategoryID
	Vendor          string
	Description     string
	Amount          decimal.Decimal
	TaxAmount       decimal.Decimal
	TransactionDate ledger.Date
	Status          ledger.ExpenseStatus
	PaymentDate     *ledger.Date
	PaymentMethod   string
	ReceiptID       ledger.ReceiptID
}

func (in ExpenseInput) validate() error {
	if !ledger.PositiveCents(in.Amount) {
		return ledger.NewValidationError("amount", "must be positive", ledger.ErrInvalidAmount)
	}
	if in.TaxAmount.IsNegative() {
		return ledger.NewValidationError("tax_amount", "must not be negative", ledger.ErrInvalidAmount)
	}
	if in.TransactionDate.IsZero() {
		return ledger.NewValidationError("transaction_date", "is required", nil)
	}
	return validateStatus(in.Status, in.PaymentDate, in.PaymentMethod)
}

// StatusChange moves an expense to a new status.
type StatusChange struct {
	Status        ledger.ExpenseStatus
	PaymentDate   *ledger.Date
	PaymentMethod string
}

// validateStatus enforces paid ⇒ payment date and method.
func validateStatus(s ledger.ExpenseStatus, paidOn *ledger.Date, method string) error {
	if !s.Valid() {
		return ledger.NewValidationError("status", fmt.Sprintf("unknown status %q", s), nil)
	}
	if s != ledger.ExpensePaid {
		return nil
	}
	if paidOn == nil || paidOn.IsZero() {
		return ledger.NewValidationError("payment_date", "is required for paid expenses", nil)
	}
	if strings.TrimSpace(method) == "" {
		return ledger.NewValidationError("payment_method", "is required for paid expenses", nil)
	}
	return nil
}

func (l *Ledger) RecordExpense(ctx context.Context, in ExpenseInput) (ledger.Expense, error) {
	if in.Status == "" {
		in.Status = ledger.ExpensePending
	}
	if err := in.validate(); err != nil {
		return ledger.Expense{}, err
	}

	e := ledger.Expense{
		ID:              ledger.ExpenseID(ledger.NewID()),
		CategoryID:      in.CategoryID,
		Vendor:          strings.TrimSpace(in.Vendor),
		Description:     in.Description,
		Amount:          ledger.Cents(in.Amount),
		TaxAmount:       ledger.Cents(in.TaxAmount),
		TransactionDate: in.TransactionDate,
		Status:          in.Status,
		PaymentDate:     in.PaymentDate,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		ReceiptID:       in.ReceiptID,
		CreatedAt:       l.now().UTC(),
	}
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		owner, err := ledger.ResolveOwner(ctx, tx, in.Owner)
		if err != nil {
			return err
		}
		e.Owner = owner
		if e.CategoryID != nil {
			if err := requireActiveCategory(ctx, tx, *e.CategoryID, "category_id"); err != nil {
				return err
			}
		}
		return tx.InsertExpense(ctx, e)
	})
	if err != nil {
		return ledger.Expense{}, err
	}

	l.logger.Info("expense recorded",
		zap.String("expense_id", string(e.ID)),
		zap.String("property_id", string(e.Owner.PropertyID)),
		zap.String("amount", e.Amount.StringFixed(ledger.CentsPlaces)),
		zap.String("status", string(e.Status)))
	return e, nil
}

// UpdateStatus applies a status change under the same paid rule as
// RecordExpense. Leaving paid clears the payment details.
func (l *Ledger) UpdateStatus(ctx context.Context, id ledger.ExpenseID, ch StatusChange) (ledger.Expense, error) {
	if err := validateStatus(ch.Status, ch.PaymentDate, ch.PaymentMethod); err != nil {
		return ledger.Expense{}, err
	}

	var updated ledger.Expense
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		e, err := tx.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		from := e.Status
		e.Status = ch.Status
		if ch.Status == ledger.ExpensePaid {
			e.PaymentDate = ch.PaymentDate
			e.PaymentMethod = strings.TrimSpace(ch.PaymentMethod)
		} else if from == ledger.ExpensePaid {
			e.PaymentDate = nil
			e.PaymentMethod = ""
		}
		updated = e
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return ledger.Expense{}, err
	}

	l.logger.Info("expense status changed",
		zap.String("expense_id", string(id)),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// Recategorize moves an expense to another active category, or to none.
func (l *Ledger) Recategorize(ctx context.Context, id ledger.ExpenseID, category *ledger.CategoryID) (ledger.Expense, error) {
	var updated ledger.Expense
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		e, err := tx.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if category != nil {
			if err := requireActiveCategory(ctx, tx, *category, "category_id"); err != nil {
				return err
			}
		}
		e.CategoryID = category
		updated = e
		return tx.UpdateExpense(ctx, e)
	})
	if err != nil {
		return ledger.Expense{}, err
	}
	return updated, nil
}

func (l *Ledger) Expense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	return l.store.GetExpense(ctx, id)
}

func (l *Ledger) Expenses(ctx context.Context, f ledger.ExpenseFilter) ([]ledger.Expense, error) {
	return l.store.ListExpenses(ctx, f)
}
