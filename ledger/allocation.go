package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIFO ALLOCATOR - Waterfall of a payment across pending charges
// =============================================================================

// AllocationLine is the share of a payment applied to one charge.
type AllocationLine struct {
	ChargeID         ChargeID
	Amount           decimal.Decimal
	Full             bool
	OutstandingAfter decimal.Decimal
}

// AllocationPlan describes how a payment splits across charges. Allocated
// plus Remainder always equals the payment amount.
type AllocationPlan struct {
	Payment       decimal.Decimal
	Lines         []AllocationLine
	Allocated     decimal.Decimal
	Remainder     decimal.Decimal
	FullyPaid     int
	PartiallyPaid int
}

// Allocator splits a payment over outstanding charges.
type Allocator interface {
	Allocate(amount decimal.Decimal, charges []LateFeeCharge) AllocationPlan
}

// FIFOAllocator pays the oldest-created charge first. The ordering decides
// which charges get satisfied when funds are short.
type FIFOAllocator struct{}

// Allocate walks charges oldest first, taking min(remaining, outstanding)
// from each. Whatever is left after the last charge is the remainder
// applied to the base obligation.
func (FIFOAllocator) Allocate(amount decimal.Decimal, charges []LateFeeCharge) AllocationPlan {
	plan := AllocationPlan{Payment: amount, Allocated: decimal.Zero, Remainder: amount}
	if !amount.IsPositive() {
		return plan
	}

	remaining := amount
	for _, c := range SortChargesFIFO(charges) {
		if !remaining.IsPositive() {
			break
		}
		if c.Status != ChargePending || !c.Amount.IsPositive() {
			continue
		}

		take := decimal.Min(remaining, c.Amount)
		full := take.Equal(c.Amount)
		plan.Lines = append(plan.Lines, AllocationLine{
			ChargeID:         c.ID,
			Amount:           take,
			Full:             full,
			OutstandingAfter: c.Amount.Sub(take),
		})
		if full {
			plan.FullyPaid++
		} else {
			plan.PartiallyPaid++
		}
		plan.Allocated = plan.Allocated.Add(take)
		remaining = remaining.Sub(take)
	}

	plan.Remainder = remaining
	return plan
}

// SortChargesFIFO returns a copy of charges ordered oldest-created first,
// breaking ties by period start and then id.
func SortChargesFIFO(charges []LateFeeCharge) []LateFeeCharge {
	sorted := append([]LateFeeCharge(nil), charges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if !a.Period.Start.Equal(b.Period.Start) {
			return a.Period.Start.Before(b.Period.Start)
		}
		return a.ID < b.ID
	})
	return sorted
}
