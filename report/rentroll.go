/*
Package report computes read-only projections over the ledgers.

Reports never write. Each is a pure aggregation over store reads taken at
call time, so two calls with the same arguments and no writes in between
return the same result.

  RentRoll       per-unit lease, scheduled rent, collections and occupancy
  Aging          pending late fees by age since their period started
  ExpenseReport  expenses grouped by category, vendor, property, unit or month

XLSX export of the rent roll and expense report lives in export.go.
*/
package report

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// Aggregator builds reports from a store.
type Aggregator struct {
	store  ledger.Store
	logger *zap.Logger
}

func NewAggregator(store ledger.Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger.Named("report")}
}

// =============================================================================
// RENT ROLL
// =============================================================================

// RentRollRow is one unit of the rent roll.
type RentRollRow struct {
	Unit     ledger.Unit
	Lease    *ledger.Lease
	Occupied bool
	// ScheduledRent is the sum of active monthly rent obligations.
	ScheduledRent decimal.Decimal
	// Collected is what was paid to the unit's obligations in the as-of month.
	Collected decimal.Decimal
	Balance   decimal.Decimal
	// PotentialRent is the lease rent when occupied, market rent otherwise.
	PotentialRent decimal.Decimal
}

type RentRoll struct {
	PropertyID    ledger.PropertyID
	AsOf          ledger.Date
	Rows          []RentRollRow
	TotalUnits    int
	OccupiedUnits int
	// OccupancyRate is occupied / total, 0 for a property without units.
	OccupancyRate decimal.Decimal
	ScheduledRent decimal.Decimal
	Collected     decimal.Decimal
	Balance       decimal.Decimal
	PotentialRent decimal.Decimal
}

func (a *Aggregator) RentRoll(ctx context.Context, propertyID ledger.PropertyID, asOf ledger.Date) (RentRoll, error) {
	if _, err := a.store.GetProperty(ctx, propertyID); err != nil {
		return RentRoll{}, err
	}
	units, err := a.store.ListUnits(ctx, ledger.UnitFilter{PropertyID: propertyID})
	if err != nil {
		return RentRoll{}, err
	}

	roll := RentRoll{
		PropertyID:    propertyID,
		AsOf:          asOf,
		TotalUnits:    len(units),
		OccupancyRate: decimal.Zero,
		ScheduledRent: decimal.Zero,
		Collected:     decimal.Zero,
		Balance:       decimal.Zero,
		PotentialRent: decimal.Zero,
	}
	if len(units) == 0 {
		return roll, nil
	}

	unitIDs := make([]ledger.UnitID, len(units))
	for i, u := range units {
		unitIDs[i] = u.ID
	}

	leases, err := a.store.ListLeases(ctx, ledger.LeaseFilter{UnitIDs: unitIDs, ActiveOn: &asOf})
	if err != nil {
		return RentRoll{}, err
	}
	leaseByUnit := map[ledger.UnitID]ledger.Lease{}
	for _, l := range leases {
		// Latest start wins if terms overlap.
		if cur, ok := leaseByUnit[l.UnitID]; !ok || l.StartDate.After(cur.StartDate) {
			leaseByUnit[l.UnitID] = l
		}
	}

	obligations, err := a.store.ListObligations(ctx, ledger.ObligationFilter{PropertyID: propertyID, UnitIDs: unitIDs})
	if err != nil {
		return RentRoll{}, err
	}
	scheduled := map[ledger.UnitID]decimal.Decimal{}
	unitOf := map[ledger.ObligationID]ledger.UnitID{}
	ids := make([]ledger.ObligationID, 0, len(obligations))
	for _, o := range obligations {
		unitOf[o.ID] = o.Owner.UnitID
		ids = append(ids, o.ID)
		if o.Active && o.Kind == ledger.KindRent && o.Frequency == ledger.Monthly && o.CoversDate(asOf) {
			scheduled[o.Owner.UnitID] = scheduled[o.Owner.UnitID].Add(o.Amount)
		}
	}

	collected := map[ledger.UnitID]decimal.Decimal{}
	if len(ids) > 0 {
		from := ledger.StartOfMonth(asOf.Year(), asOf.Month())
		to := ledger.EndOfMonth(asOf.Year(), asOf.Month())
		payments, err := a.store.ListPayments(ctx, ledger.PaymentFilter{ObligationIDs: ids, From: &from, To: &to})
		if err != nil {
			return RentRoll{}, err
		}
		for _, p := range payments {
			u := unitOf[p.ObligationID]
			collected[u] = collected[u].Add(p.Amount)
		}
	}

	for _, u := range units {
		row := RentRollRow{
			Unit:          u,
			ScheduledRent: scheduled[u.ID],
			Collected:     collected[u.ID],
			PotentialRent: u.MarketRent,
		}
		if l, ok := leaseByUnit[u.ID]; ok {
			lease := l
			row.Lease = &lease
			row.Occupied = true
			row.PotentialRent = l.MonthlyRent
			roll.OccupiedUnits++
		}
		row.Balance = row.ScheduledRent.Sub(row.Collected)

		roll.Rows = append(roll.Rows, row)
		roll.ScheduledRent = roll.ScheduledRent.Add(row.ScheduledRent)
		roll.Collected = roll.Collected.Add(row.Collected)
		roll.Balance = roll.Balance.Add(row.Balance)
		roll.PotentialRent = roll.PotentialRent.Add(row.PotentialRent)
	}
	sort.SliceStable(roll.Rows, func(i, j int) bool { return roll.Rows[i].Unit.Number < roll.Rows[j].Unit.Number })
	roll.OccupancyRate = decimal.NewFromInt(int64(roll.OccupiedUnits)).
		DivRound(decimal.NewFromInt(int64(roll.TotalUnits)), 4)

	a.logger.Debug("rent roll built",
		zap.String("property_id", string(propertyID)),
		zap.String("as_of", asOf.String()),
		zap.Int("units", roll.TotalUnits),
		zap.Int("occupied", roll.OccupiedUnits))
	return roll, nil
}
