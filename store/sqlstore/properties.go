package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// PROPERTIES, UNITS, LEASES
// =============================================================================

func (s *queries) InsertProperty(ctx context.Context, p ledger.Property) error {
	_, err := s.exec(ctx, `INSERT INTO properties (id, name, created_at) VALUES (?, ?, ?)`,
		string(p.ID), p.Name, formatTime(p.CreatedAt))
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "property", ID: string(p.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

func (s *queries) GetProperty(ctx context.Context, id ledger.PropertyID) (ledger.Property, error) {
	var (
		p       ledger.Property
		created string
	)
	err := s.queryRow(ctx, `SELECT id, name, created_at FROM properties WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ledger.NewNotFoundError("property", string(id))
	}
	if err != nil {
		return p, fmt.Errorf("failed to query property: %w", err)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (s *queries) ListProperties(ctx context.Context) ([]ledger.Property, error) {
	rows, err := s.query(ctx, `SELECT id, name, created_at FROM properties ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var result []ledger.Property
	for rows.Next() {
		var (
			p       ledger.Property
			created string
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		p.CreatedAt = parseTime(created)
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *queries) InsertUnit(ctx context.Context, u ledger.Unit) error {
	_, err := s.exec(ctx, `
		INSERT INTO units (id, property_id, unit_number, market_rent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(u.ID), string(u.PropertyID), u.Number, u.MarketRent.String(), formatTime(u.CreatedAt))
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "unit", ID: string(u.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert unit: %w", err)
	}
	return nil
}

func (s *queries) GetUnit(ctx context.Context, id ledger.UnitID) (ledger.Unit, error) {
	units, err := s.queryUnits(ctx, `WHERE id = ?`, string(id))
	if err != nil {
		return ledger.Unit{}, err
	}
	if len(units) == 0 {
		return ledger.Unit{}, ledger.NewNotFoundError("unit", string(id))
	}
	return units[0], nil
}

func (s *queries) ListUnits(ctx context.Context, f ledger.UnitFilter) ([]ledger.Unit, error) {
	var w where
	if f.PropertyID != "" {
		w.add("property_id = ?", string(f.PropertyID))
	}
	return s.queryUnits(ctx, w.String(), w.args...)
}

func (s *queries) queryUnits(ctx context.Context, clause string, args ...any) ([]ledger.Unit, error) {
	rows, err := s.query(ctx, `
		SELECT id, property_id, unit_number, market_rent, created_at FROM units `+clause+`
		ORDER BY unit_number ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var result []ledger.Unit
	for rows.Next() {
		var (
			u                   ledger.Unit
			marketRent, created string
		)
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.Number, &marketRent, &created); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		var err error
		if u.MarketRent, err = parseDecimal(marketRent); err != nil {
			return nil, err
		}
		u.CreatedAt = parseTime(created)
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *queries) InsertLease(ctx context.Context, l ledger.Lease) error {
	_, err := s.exec(ctx, `
		INSERT INTO leases (id, unit_id, tenant_name, monthly_rent, start_date, end_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(l.ID), string(l.UnitID), l.TenantName, l.MonthlyRent.String(),
		formatDate(l.StartDate), nullDate(l.EndDate), l.Active, formatTime(l.CreatedAt))
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "lease", ID: string(l.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert lease: %w", err)
	}
	return nil
}

func (s *queries) GetLease(ctx context.Context, id ledger.LeaseID) (ledger.Lease, error) {
	leases, err := s.queryLeases(ctx, `WHERE id = ?`, string(id))
	if err != nil {
		return ledger.Lease{}, err
	}
	if len(leases) == 0 {
		return ledger.Lease{}, ledger.NewNotFoundError("lease", string(id))
	}
	return leases[0], nil
}

func (s *queries) ListLeases(ctx context.Context, f ledger.LeaseFilter) ([]ledger.Lease, error) {
	var w where
	whereIn(&w, "unit_id", f.UnitIDs)
	if f.ActiveOn != nil {
		on := formatDate(*f.ActiveOn)
		w.add("active = ?", true)
		w.add("start_date <= ?", on)
		w.add("(end_date IS NULL OR end_date >= ?)", on)
	}
	return s.queryLeases(ctx, w.String(), w.args...)
}

func (s *queries) queryLeases(ctx context.Context, clause string, args ...any) ([]ledger.Lease, error) {
	rows, err := s.query(ctx, `
		SELECT id, unit_id, tenant_name, monthly_rent, start_date, end_date, active, created_at
		FROM leases `+clause+` ORDER BY start_date ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leases: %w", err)
	}
	defer rows.Close()

	var result []ledger.Lease
	for rows.Next() {
		var (
			l                         ledger.Lease
			rent, startDate, created string
			endDate                  sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.UnitID, &l.TenantName, &rent, &startDate, &endDate, &l.Active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		var err error
		if l.MonthlyRent, err = parseDecimal(rent); err != nil {
			return nil, err
		}
		if l.StartDate, err = parseDate(startDate); err != nil {
			return nil, err
		}
		if l.EndDate, err = parseNullDate(endDate); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(created)
		result = append(result, l)
	}
	return result, rows.Err()
}
