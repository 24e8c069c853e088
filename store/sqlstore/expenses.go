package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// EXPENSE CATEGORIES
// =============================================================================

const categoryColumns = `id, name, parent_id, tax_deductible, active, created_at`

func nullCategory(id *ledger.CategoryID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func parseNullCategory(ns sql.NullString) *ledger.CategoryID {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	id := ledger.CategoryID(ns.String)
	return &id
}

func (s *queries) InsertCategory(ctx context.Context, c ledger.ExpenseCategory) error {
	_, err := s.exec(ctx, `
		INSERT INTO expense_categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(c.ID),
		c.Name,
		nullCategory(c.ParentID),
		c.TaxDeductible,
		c.Active,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "expense category", ID: string(c.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert expense category: %w", err)
	}
	return nil
}

func (s *queries) UpdateCategory(ctx context.Context, c ledger.ExpenseCategory) error {
	res, err := s.exec(ctx, `
		UPDATE expense_categories SET name = ?, parent_id = ?, tax_deductible = ?, active = ?
		WHERE id = ?`,
		c.Name, nullCategory(c.ParentID), c.TaxDeductible, c.Active, string(c.ID))
	if err != nil {
		return fmt.Errorf("failed to update expense category: %w", err)
	}
	return requireAffected(res, "expense category", string(c.ID))
}

func (s *queries) GetCategory(ctx context.Context, id ledger.CategoryID) (ledger.ExpenseCategory, error) {
	list, err := s.queryCategories(ctx, ` WHERE id = ?`, string(id))
	if err != nil {
		return ledger.ExpenseCategory{}, err
	}
	if len(list) == 0 {
		return ledger.ExpenseCategory{}, ledger.NewNotFoundError("expense category", string(id))
	}
	return list[0], nil
}

// ListCategories filters by parent: nil ParentID means any parent, a
// pointer to "" means root categories only.
func (s *queries) ListCategories(ctx context.Context, f ledger.CategoryFilter) ([]ledger.ExpenseCategory, error) {
	var w where
	if f.ParentID != nil {
		if *f.ParentID == "" {
			w.add("parent_id IS NULL")
		} else {
			w.add("parent_id = ?", string(*f.ParentID))
		}
	}
	if f.ActiveOnly {
		w.add("active = ?", true)
	}
	return s.queryCategories(ctx, w.String(), w.args...)
}

func (s *queries) ReparentCategories(ctx context.Context, from ledger.CategoryID, to *ledger.CategoryID) (int, error) {
	res, err := s.exec(ctx, `UPDATE expense_categories SET parent_id = ? WHERE parent_id = ?`,
		nullCategory(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to reparent expense categories: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *queries) queryCategories(ctx context.Context, clause string, args ...any) ([]ledger.ExpenseCategory, error) {
	rows, err := s.query(ctx, `SELECT `+categoryColumns+` FROM expense_categories`+clause+
		` ORDER BY name ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expense categories: %w", err)
	}
	defer rows.Close()

	var result []ledger.ExpenseCategory
	for rows.Next() {
		var (
			c        ledger.ExpenseCategory
			parentID sql.NullString
			created  string
		)
		if err := rows.Scan(&c.ID, &c.Name, &parentID, &c.TaxDeductible, &c.Active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan expense category: %w", err)
		}
		c.ParentID = parseNullCategory(parentID)
		c.CreatedAt = parseTime(created)
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, category_id, property_id, unit_id, vendor, description, amount,
	tax_amount, transaction_date, status, payment_date, payment_method, receipt_id, created_at`

func (s *queries) InsertExpense(ctx context.Context, e ledger.Expense) error {
	_, err := s.exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID),
		nullCategory(e.CategoryID),
		string(e.Owner.PropertyID),
		nullString(string(e.Owner.UnitID)),
		e.Vendor,
		e.Description,
		e.Amount.String(),
		e.TaxAmount.String(),
		formatDate(e.TransactionDate),
		string(e.Status),
		nullDate(e.PaymentDate),
		nullString(e.PaymentMethod),
		nullString(string(e.ReceiptID)),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "expense", ID: string(e.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (s *queries) UpdateExpense(ctx context.Context, e ledger.Expense) error {
	res, err := s.exec(ctx, `
		UPDATE expenses SET category_id = ?, property_id = ?, unit_id = ?, vendor = ?,
			description = ?, amount = ?, tax_amount = ?, transaction_date = ?, status = ?,
			payment_date = ?, payment_method = ?, receipt_id = ?
		WHERE id = ?`,
		nullCategory(e.CategoryID),
		string(e.Owner.PropertyID),
		nullString(string(e.Owner.UnitID)),
		e.Vendor,
		e.Description,
		e.Amount.String(),
		e.TaxAmount.String(),
		formatDate(e.TransactionDate),
		string(e.Status),
		nullDate(e.PaymentDate),
		nullString(e.PaymentMethod),
		nullString(string(e.ReceiptID)),
		string(e.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireAffected(res, "expense", string(e.ID))
}

func (s *queries) GetExpense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	rows, err := s.query(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, string(id))
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("failed to query expense: %w", err)
	}
	list, err := scanExpenses(rows)
	if err != nil {
		return ledger.Expense{}, err
	}
	if len(list) == 0 {
		return ledger.Expense{}, ledger.NewNotFoundError("expense", string(id))
	}
	return list[0], nil
}

// ListExpenses orders by transaction date. A CategoryID pointing at ""
// selects uncategorized expenses.
func (s *queries) ListExpenses(ctx context.Context, f ledger.ExpenseFilter) ([]ledger.Expense, error) {
	var w where
	if f.PropertyID != "" {
		w.add("property_id = ?", string(f.PropertyID))
	}
	if f.UnitID != "" {
		w.add("unit_id = ?", string(f.UnitID))
	}
	if f.CategoryID != nil {
		if *f.CategoryID == "" {
			w.add("category_id IS NULL")
		} else {
			w.add("category_id = ?", string(*f.CategoryID))
		}
	}
	if f.Vendor != "" {
		w.add("LOWER(vendor) = LOWER(?)", f.Vendor)
	}
	whereIn(&w, "status", f.Statuses)
	if f.From != nil {
		w.add("transaction_date >= ?", formatDate(*f.From))
	}
	if f.To != nil {
		w.add("transaction_date <= ?", formatDate(*f.To))
	}

	rows, err := s.query(ctx, `SELECT `+expenseColumns+` FROM expenses`+w.String()+
		` ORDER BY transaction_date ASC, created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	return scanExpenses(rows)
}

func (s *queries) ReassignExpenses(ctx context.Context, from ledger.CategoryID, to *ledger.CategoryID) (int, error) {
	res, err := s.exec(ctx, `UPDATE expenses SET category_id = ? WHERE category_id = ?`,
		nullCategory(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to reassign expenses: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanExpenses(rows *sql.Rows) ([]ledger.Expense, error) {
	defer rows.Close()

	var result []ledger.Expense
	for rows.Next() {
		var (
			e                                  ledger.Expense
			categoryID, unitID, paymentDate    sql.NullString
			paymentMethod, receiptID           sql.NullString
			amount, taxAmount, txDate, created string
		)
		if err := rows.Scan(
			&e.ID, &categoryID, &e.Owner.PropertyID, &unitID, &e.Vendor, &e.Description, &amount,
			&taxAmount, &txDate, &e.Status, &paymentDate, &paymentMethod, &receiptID, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}

		var err error
		e.CategoryID = parseNullCategory(categoryID)
		e.Owner.UnitID = ledger.UnitID(unitID.String)
		if e.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if e.TaxAmount, err = parseDecimal(taxAmount); err != nil {
			return nil, err
		}
		if e.TransactionDate, err = parseDate(txDate); err != nil {
			return nil, err
		}
		if e.PaymentDate, err = parseNullDate(paymentDate); err != nil {
			return nil, err
		}
		e.PaymentMethod = paymentMethod.String
		e.ReceiptID = ledger.ReceiptID(receiptID.String)
		e.CreatedAt = parseTime(created)
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// RECEIPT EXTRACTIONS
// =============================================================================

func (s *queries) InsertReceiptExtraction(ctx context.Context, r ledger.ReceiptExtraction) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode receipt fields: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO receipt_extractions (receipt_id, expense_id, extracted_text, confidence, fields_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.ReceiptID),
		nullString(string(r.ExpenseID)),
		r.Text,
		r.Confidence,
		string(fields),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "receipt", ID: string(r.ReceiptID), Err: ledger.ErrDuplicateReceipt}
		}
		return fmt.Errorf("failed to insert receipt extraction: %w", err)
	}
	return nil
}

func (s *queries) GetReceiptExtraction(ctx context.Context, id ledger.ReceiptID) (ledger.ReceiptExtraction, error) {
	var (
		r               ledger.ReceiptExtraction
		expenseID       sql.NullString
		fields, created string
	)
	err := s.queryRow(ctx, `
		SELECT receipt_id, expense_id, extracted_text, confidence, fields_json, created_at
		FROM receipt_extractions WHERE receipt_id = ?`, string(id),
	).Scan(&r.ReceiptID, &expenseID, &r.Text, &r.Confidence, &fields, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ReceiptExtraction{}, ledger.NewNotFoundError("receipt", string(id))
	}
	if err != nil {
		return ledger.ReceiptExtraction{}, fmt.Errorf("failed to query receipt extraction: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return ledger.ReceiptExtraction{}, fmt.Errorf("failed to decode receipt fields: %w", err)
	}
	r.ExpenseID = ledger.ExpenseID(expenseID.String)
	r.CreatedAt = parseTime(created)
	return r, nil
}
