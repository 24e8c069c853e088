package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// EXPENSE REPORT
// =============================================================================

type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByVendor   GroupBy = "vendor"
	GroupByProperty GroupBy = "property"
	GroupByUnit     GroupBy = "unit"
	GroupByMonth    GroupBy = "month"
)

func (g GroupBy) Valid() bool {
	switch g {
	case GroupByCategory, GroupByVendor, GroupByProperty, GroupByUnit, GroupByMonth:
		return true
	}
	return false
}

// ExpenseReportQuery selects and groups expenses. Cancelled expenses are
// left out unless Filter.Statuses is set.
type ExpenseReportQuery struct {
	Filter  ledger.ExpenseFilter
	GroupBy GroupBy
}

type ExpenseGroup struct {
	Key   string
	Label string
	Count int
	Total decimal.Decimal
	Tax   decimal.Decimal
	// TaxDeductible is the part of Total booked to tax-deductible categories.
	TaxDeductible decimal.Decimal
}

type ExpenseReport struct {
	GroupBy GroupBy
	// Groups are sorted by Total descending, then by Key.
	Groups        []ExpenseGroup
	Count         int
	Total         decimal.Decimal
	Tax           decimal.Decimal
	TaxDeductible decimal.Decimal
}

const (
	uncategorized = "Uncategorized"
	noVendor      = "(no vendor)"
	propertyLevel = "(property level)"
)

func (a *Aggregator) ExpenseReport(ctx context.Context, q ExpenseReportQuery) (ExpenseReport, error) {
	if !q.GroupBy.Valid() {
		return ExpenseReport{}, ledger.NewValidationError("group_by", fmt.Sprintf("unknown grouping %q", q.GroupBy), nil)
	}
	f := q.Filter
	if len(f.Statuses) == 0 {
		f.Statuses = []ledger.ExpenseStatus{ledger.ExpensePending, ledger.ExpensePaid, ledger.ExpenseDisputed}
	}

	expenses, err := a.store.ListExpenses(ctx, f)
	if err != nil {
		return ExpenseReport{}, err
	}
	categories, err := a.store.ListCategories(ctx, ledger.CategoryFilter{})
	if err != nil {
		return ExpenseReport{}, err
	}
	byID := make(map[ledger.CategoryID]ledger.ExpenseCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	rep := ExpenseReport{GroupBy: q.GroupBy, Total: decimal.Zero, Tax: decimal.Zero, TaxDeductible: decimal.Zero}
	groups := map[string]*ExpenseGroup{}
	for _, e := range expenses {
		key, label := groupKey(q.GroupBy, e, byID)
		g, ok := groups[key]
		if !ok {
			g = &ExpenseGroup{Key: key, Label: label, Total: decimal.Zero, Tax: decimal.Zero, TaxDeductible: decimal.Zero}
			groups[key] = g
		}
		deductible := decimal.Zero
		if e.CategoryID != nil && byID[*e.CategoryID].TaxDeductible {
			deductible = e.Amount
		}

		g.Count++
		g.Total = g.Total.Add(e.Amount)
		g.Tax = g.Tax.Add(e.TaxAmount)
		g.TaxDeductible = g.TaxDeductible.Add(deductible)

		rep.Count++
		rep.Total = rep.Total.Add(e.Amount)
		rep.Tax = rep.Tax.Add(e.TaxAmount)
		rep.TaxDeductible = rep.TaxDeductible.Add(deductible)
	}

	for _, g := range groups {
		rep.Groups = append(rep.Groups, *g)
	}
	sort.Slice(rep.Groups, func(i, j int) bool {
		gi, gj := rep.Groups[i], rep.Groups[j]
		if c := gi.Total.Cmp(gj.Total); c != 0 {
			return c > 0
		}
		return gi.Key < gj.Key
	})
	return rep, nil
}

func groupKey(by GroupBy, e ledger.Expense, categories map[ledger.CategoryID]ledger.ExpenseCategory) (key, label string) {
	switch by {
	case GroupByCategory:
		if e.CategoryID == nil {
			return "", uncategorized
		}
		c, ok := categories[*e.CategoryID]
		if !ok {
			return string(*e.CategoryID), string(*e.CategoryID)
		}
		return string(c.ID), c.Name
	case GroupByVendor:
		if e.Vendor == "" {
			return "", noVendor
		}
		return e.Vendor, e.Vendor
	case GroupByProperty:
		return string(e.Owner.PropertyID), string(e.Owner.PropertyID)
	case GroupByUnit:
		if e.Owner.UnitID == "" {
			return "", propertyLevel
		}
		return string(e.Owner.UnitID), string(e.Owner.UnitID)
	default:
		m := e.TransactionDate.Format("2006-01")
		return m, m
	}
}
