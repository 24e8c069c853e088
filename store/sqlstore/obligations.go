package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// OBLIGATIONS
// =============================================================================

const obligationColumns = `id, property_id, unit_id, lease_id, kind, description, amount,
	frequency, anchor_day, start_date, end_date, active, created_at`

func (s *queries) InsertObligation(ctx context.Context, o ledger.RecurringObligation) error {
	_, err := s.exec(ctx, `
		INSERT INTO obligations (`+obligationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(o.ID),
		string(o.Owner.PropertyID),
		nullString(string(o.Owner.UnitID)),
		nullString(string(o.LeaseID)),
		string(o.Kind),
		o.Description,
		o.Amount.String(),
		string(o.Frequency),
		o.AnchorDay,
		formatDate(o.StartDate),
		nullDate(o.EndDate),
		o.Active,
		formatTime(o.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "obligation", ID: string(o.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert obligation: %w", err)
	}
	return nil
}

func (s *queries) SetObligationActive(ctx context.Context, id ledger.ObligationID, active bool) error {
	res, err := s.exec(ctx, `UPDATE obligations SET active = ? WHERE id = ?`, active, string(id))
	if err != nil {
		return fmt.Errorf("failed to update obligation: %w", err)
	}
	return requireAffected(res, "obligation", string(id))
}

func (s *queries) GetObligation(ctx context.Context, id ledger.ObligationID) (ledger.RecurringObligation, error) {
	rows, err := s.query(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, string(id))
	if err != nil {
		return ledger.RecurringObligation{}, fmt.Errorf("failed to query obligation: %w", err)
	}
	list, err := scanObligations(rows)
	if err != nil {
		return ledger.RecurringObligation{}, err
	}
	if len(list) == 0 {
		return ledger.RecurringObligation{}, ledger.NewNotFoundError("obligation", string(id))
	}
	return list[0], nil
}

func (s *queries) ListObligations(ctx context.Context, f ledger.ObligationFilter) ([]ledger.RecurringObligation, error) {
	var w where
	whereIn(&w, "id", f.IDs)
	if f.PropertyID != "" {
		w.add("property_id = ?", string(f.PropertyID))
	}
	whereIn(&w, "unit_id", f.UnitIDs)
	if f.Kind != "" {
		w.add("kind = ?", string(f.Kind))
	}
	if f.Frequency != "" {
		w.add("frequency = ?", string(f.Frequency))
	}
	if f.ActiveOnly {
		w.add("active = ?", true)
	}

	rows, err := s.query(ctx, `SELECT `+obligationColumns+` FROM obligations`+w.String()+
		` ORDER BY created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	return scanObligations(rows)
}

func (s *queries) LockObligation(ctx context.Context, id ledger.ObligationID) error {
	return s.lockRow(ctx, "obligations", "obligation", string(id))
}

func scanObligations(rows *sql.Rows) ([]ledger.RecurringObligation, error) {
	defer rows.Close()

	var result []ledger.RecurringObligation
	for rows.Next() {
		var (
			o                          ledger.RecurringObligation
			unitID, leaseID, endDate   sql.NullString
			amount, startDate, created string
		)
		if err := rows.Scan(
			&o.ID, &o.Owner.PropertyID, &unitID, &leaseID, &o.Kind, &o.Description, &amount,
			&o.Frequency, &o.AnchorDay, &startDate, &endDate, &o.Active, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}

		var err error
		o.Owner.UnitID = ledger.UnitID(unitID.String)
		o.LeaseID = ledger.LeaseID(leaseID.String)
		if o.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if o.StartDate, err = parseDate(startDate); err != nil {
			return nil, err
		}
		if o.EndDate, err = parseNullDate(endDate); err != nil {
			return nil, err
		}
		o.CreatedAt = parseTime(created)
		result = append(result, o)
	}
	return result, rows.Err()
}

// =============================================================================
// LATE-FEE CONFIGURATIONS
// =============================================================================

const configColumns = `id, property_id, unit_id, fee_type, fee_value, grace_period_days,
	minimum_fee, maximum_fee, active, created_at`

func (s *queries) InsertLateFeeConfig(ctx context.Context, c ledger.LateFeeConfig) error {
	_, err := s.exec(ctx, `
		INSERT INTO late_fee_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID),
		string(c.Owner.PropertyID),
		string(c.Owner.UnitID),
		string(c.FeeType),
		c.FeeValue.String(),
		c.GracePeriodDays,
		nullDecimal(c.MinimumFee),
		nullDecimal(c.MaximumFee),
		c.Active,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert late fee config: %w", err)
	}
	return nil
}

func (s *queries) DeactivateLateFeeConfigs(ctx context.Context, owner ledger.OwnerContext) (int, error) {
	res, err := s.exec(ctx, `
		UPDATE late_fee_configs SET active = ?
		WHERE property_id = ? AND unit_id = ? AND active = ?`,
		false, string(owner.PropertyID), string(owner.UnitID), true)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate late fee configs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *queries) ListLateFeeConfigs(ctx context.Context, f ledger.LateFeeConfigFilter) ([]ledger.LateFeeConfig, error) {
	var w where
	if f.PropertyID != "" {
		w.add("property_id = ?", string(f.PropertyID))
	}
	if f.UnitID != nil {
		w.add("unit_id = ?", string(*f.UnitID))
	}
	if f.ActiveOnly {
		w.add("active = ?", true)
	}

	rows, err := s.query(ctx, `SELECT `+configColumns+` FROM late_fee_configs`+w.String()+
		` ORDER BY created_at DESC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query late fee configs: %w", err)
	}
	defer rows.Close()

	var result []ledger.LateFeeConfig
	for rows.Next() {
		var (
			c                 ledger.LateFeeConfig
			feeValue, created string
			minFee, maxFee    sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.Owner.PropertyID, &c.Owner.UnitID, &c.FeeType, &feeValue, &c.GracePeriodDays,
			&minFee, &maxFee, &c.Active, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan late fee config: %w", err)
		}
		var err error
		if c.FeeValue, err = parseDecimal(feeValue); err != nil {
			return nil, err
		}
		if c.MinimumFee, err = parseNullDecimal(minFee); err != nil {
			return nil, err
		}
		if c.MaximumFee, err = parseNullDecimal(maxFee); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		result = append(result, c)
	}
	return result, rows.Err()
}
