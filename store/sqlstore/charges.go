package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// LATE-FEE CHARGES
// =============================================================================

const chargeColumns = `id, obligation_id, period_start, period_end, amount, original_amount,
	status, waived_reason, created_at`

func (s *queries) InsertCharge(ctx context.Context, c ledger.LateFeeCharge) error {
	_, err := s.exec(ctx, `
		INSERT INTO late_fee_charges (`+chargeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID),
		string(c.ObligationID),
		formatDate(c.Period.Start),
		formatDate(c.Period.End),
		c.Amount.String(),
		c.OriginalAmount.String(),
		string(c.Status),
		c.WaivedReason,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{
				Entity: "obligation",
				ID:     string(c.ObligationID),
				Period: c.Period.Key(),
				Err:    ledger.ErrDuplicateCharge,
			}
		}
		return fmt.Errorf("failed to insert late fee charge: %w", err)
	}
	return nil
}

func (s *queries) GetCharge(ctx context.Context, id ledger.ChargeID) (ledger.LateFeeCharge, error) {
	rows, err := s.query(ctx, `SELECT `+chargeColumns+` FROM late_fee_charges WHERE id = ?`, string(id))
	if err != nil {
		return ledger.LateFeeCharge{}, fmt.Errorf("failed to query late fee charge: %w", err)
	}
	list, err := scanCharges(rows)
	if err != nil {
		return ledger.LateFeeCharge{}, err
	}
	if len(list) == 0 {
		return ledger.LateFeeCharge{}, ledger.NewNotFoundError("late fee charge", string(id))
	}
	return list[0], nil
}

// ListCharges returns matching charges oldest-created first. Payment
// allocation depends on this order.
func (s *queries) ListCharges(ctx context.Context, f ledger.ChargeFilter) ([]ledger.LateFeeCharge, error) {
	var w where
	whereIn(&w, "obligation_id", f.ObligationIDs)
	whereIn(&w, "status", f.Statuses)
	if f.PeriodStart != nil {
		w.add("period_start = ?", formatDate(*f.PeriodStart))
	}

	rows, err := s.query(ctx, `SELECT `+chargeColumns+` FROM late_fee_charges`+w.String()+
		` ORDER BY created_at ASC, period_start ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query late fee charges: %w", err)
	}
	return scanCharges(rows)
}

func (s *queries) UpdateCharge(ctx context.Context, u ledger.ChargeUpdate) error {
	res, err := s.exec(ctx, `
		UPDATE late_fee_charges SET amount = ?, status = ?, waived_reason = ?
		WHERE id = ?`,
		u.Amount.String(), string(u.Status), u.WaivedReason, string(u.ID))
	if err != nil {
		return fmt.Errorf("failed to update late fee charge: %w", err)
	}
	return requireAffected(res, "late fee charge", string(u.ID))
}

func scanCharges(rows *sql.Rows) ([]ledger.LateFeeCharge, error) {
	defer rows.Close()

	var result []ledger.LateFeeCharge
	for rows.Next() {
		var (
			c                            ledger.LateFeeCharge
			start, end, amount, original string
			created                      string
		)
		if err := rows.Scan(
			&c.ID, &c.ObligationID, &start, &end, &amount, &original,
			&c.Status, &c.WaivedReason, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan late fee charge: %w", err)
		}

		var err error
		if c.Period.Start, err = parseDate(start); err != nil {
			return nil, err
		}
		if c.Period.End, err = parseDate(end); err != nil {
			return nil, err
		}
		if c.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if c.OriginalAmount, err = parseDecimal(original); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// PAYMENTS & ALLOCATIONS (append-only)
// =============================================================================

const paymentColumns = `id, obligation_id, amount, payment_date, method, reference,
	idempotency_key, created_at`

func (s *queries) InsertPayment(ctx context.Context, p ledger.Payment) error {
	_, err := s.exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID),
		string(p.ObligationID),
		p.Amount.String(),
		formatDate(p.PaymentDate),
		p.Method,
		p.Reference,
		nullString(p.IdempotencyKey),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{
				Entity:  "payment",
				ID:      string(p.ID),
				Message: "idempotency key " + p.IdempotencyKey + " already used",
				Err:     ledger.ErrDuplicateIdempotencyKey,
			}
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *queries) GetPaymentByIdempotencyKey(ctx context.Context, key string) (ledger.Payment, error) {
	rows, err := s.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ?`, key)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("failed to query payment: %w", err)
	}
	list, err := scanPayments(rows)
	if err != nil {
		return ledger.Payment{}, err
	}
	if len(list) == 0 {
		return ledger.Payment{}, ledger.NewNotFoundError("payment", key)
	}
	return list[0], nil
}

func (s *queries) ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	var w where
	whereIn(&w, "obligation_id", f.ObligationIDs)
	if f.From != nil {
		w.add("payment_date >= ?", formatDate(*f.From))
	}
	if f.To != nil {
		w.add("payment_date <= ?", formatDate(*f.To))
	}

	rows, err := s.query(ctx, `SELECT `+paymentColumns+` FROM payments`+w.String()+
		` ORDER BY payment_date ASC, created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	return scanPayments(rows)
}

func scanPayments(rows *sql.Rows) ([]ledger.Payment, error) {
	defer rows.Close()

	var result []ledger.Payment
	for rows.Next() {
		var (
			p                     ledger.Payment
			amount, date, created string
			idempotencyKey        sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.ObligationID, &amount, &date, &p.Method, &p.Reference,
			&idempotencyKey, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}

		var err error
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if p.PaymentDate, err = parseDate(date); err != nil {
			return nil, err
		}
		p.IdempotencyKey = idempotencyKey.String
		p.CreatedAt = parseTime(created)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *queries) InsertAllocations(ctx context.Context, allocs []ledger.Allocation) error {
	for _, a := range allocs {
		_, err := s.exec(ctx, `
			INSERT INTO payment_allocations (payment_id, charge_id, amount, full_payment)
			VALUES (?, ?, ?, ?)`,
			string(a.PaymentID), string(a.ChargeID), a.Amount.String(), a.Full)
		if err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}
	return nil
}

func (s *queries) ListAllocations(ctx context.Context, paymentID ledger.PaymentID) ([]ledger.Allocation, error) {
	rows, err := s.query(ctx, `
		SELECT a.payment_id, a.charge_id, a.amount, a.full_payment
		FROM payment_allocations a
		JOIN late_fee_charges c ON c.id = a.charge_id
		WHERE a.payment_id = ?
		ORDER BY c.created_at ASC, c.period_start ASC, c.id ASC`, string(paymentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var result []ledger.Allocation
	for rows.Next() {
		var (
			a      ledger.Allocation
			amount string
		)
		if err := rows.Scan(&a.PaymentID, &a.ChargeID, &amount, &a.Full); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		var err error
		if a.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
