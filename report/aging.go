package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// LATE-FEE AGING
// =============================================================================

type AgingBucket string

const (
	Bucket0To30  AgingBucket = "0-30"
	Bucket31To60 AgingBucket = "31-60"
	Bucket61To90 AgingBucket = "61-90"
	BucketOver90 AgingBucket = "90+"
)

// AgingBuckets lists the buckets in display order.
var AgingBuckets = []AgingBucket{Bucket0To30, Bucket31To60, Bucket61To90, BucketOver90}

// BucketFor places an age in days. Negative ages count as current.
func BucketFor(days int) AgingBucket {
	switch {
	case days <= 30:
		return Bucket0To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

type AgingLine struct {
	Charge  ledger.LateFeeCharge
	Owner   ledger.OwnerContext
	AgeDays int
	Bucket  AgingBucket
}

type AgingTotal struct {
	Bucket AgingBucket
	Count  int
	Total  decimal.Decimal
}

type AgingReport struct {
	PropertyID ledger.PropertyID
	AsOf       ledger.Date
	Lines      []AgingLine
	// Totals has one entry per bucket, in AgingBuckets order.
	Totals []AgingTotal
	Total  decimal.Decimal
}

// Aging buckets every pending late fee of the property by days elapsed
// since the start of the charge's period.
func (a *Aggregator) Aging(ctx context.Context, propertyID ledger.PropertyID, asOf ledger.Date) (AgingReport, error) {
	if _, err := a.store.GetProperty(ctx, propertyID); err != nil {
		return AgingReport{}, err
	}
	rep := AgingReport{PropertyID: propertyID, AsOf: asOf, Total: decimal.Zero}
	index := map[AgingBucket]int{}
	for i, b := range AgingBuckets {
		rep.Totals = append(rep.Totals, AgingTotal{Bucket: b, Total: decimal.Zero})
		index[b] = i
	}

	obligations, err := a.store.ListObligations(ctx, ledger.ObligationFilter{PropertyID: propertyID})
	if err != nil {
		return AgingReport{}, err
	}
	if len(obligations) == 0 {
		return rep, nil
	}
	owners := make(map[ledger.ObligationID]ledger.OwnerContext, len(obligations))
	ids := make([]ledger.ObligationID, 0, len(obligations))
	for _, o := range obligations {
		owners[o.ID] = o.Owner
		ids = append(ids, o.ID)
	}

	charges, err := a.store.ListCharges(ctx, ledger.ChargeFilter{
		ObligationIDs: ids,
		Statuses:      []ledger.ChargeStatus{ledger.ChargePending},
	})
	if err != nil {
		return AgingReport{}, err
	}
	for _, c := range charges {
		age := max(asOf.DaysSince(c.Period.Start), 0)
		line := AgingLine{Charge: c, Owner: owners[c.ObligationID], AgeDays: age, Bucket: BucketFor(age)}
		rep.Lines = append(rep.Lines, line)

		t := &rep.Totals[index[line.Bucket]]
		t.Count++
		t.Total = t.Total.Add(c.Amount)
		rep.Total = rep.Total.Add(c.Amount)
	}
	return rep, nil
}
