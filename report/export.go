package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// XLSX EXPORT
// =============================================================================

const (
	rentRollSheet = "Rent Roll"
	expenseSheet  = "Expenses"
)

// WriteRentRollXLSX writes the rent roll as a one-sheet workbook.
func WriteRentRollXLSX(w io.Writer, roll RentRoll) error {
	headers := []string{"Unit", "Tenant", "Occupied", "Lease Rent", "Market Rent", "Scheduled", "Collected", "Balance", "Potential"}
	rows := make([][]any, 0, len(roll.Rows)+1)
	for _, r := range roll.Rows {
		var tenant, leaseRent any
		if r.Lease != nil {
			tenant = r.Lease.TenantName
			leaseRent = num(r.Lease.MonthlyRent)
		}
		rows = append(rows, []any{
			r.Unit.Number, tenant, r.Occupied, leaseRent, num(r.Unit.MarketRent),
			num(r.ScheduledRent), num(r.Collected), num(r.Balance), num(r.PotentialRent),
		})
	}
	rows = append(rows, []any{
		"Total", fmt.Sprintf("%d/%d occupied", roll.OccupiedUnits, roll.TotalUnits), roll.OccupancyRate.InexactFloat64(), nil, nil,
		num(roll.ScheduledRent), num(roll.Collected), num(roll.Balance), num(roll.PotentialRent),
	})
	return writeSheet(w, rentRollSheet, headers, rows)
}

// WriteExpenseReportXLSX writes one row per group plus a total row.
func WriteExpenseReportXLSX(w io.Writer, rep ExpenseReport) error {
	headers := []string{string(rep.GroupBy), "Count", "Total", "Tax", "Tax Deductible"}
	rows := make([][]any, 0, len(rep.Groups)+1)
	for _, g := range rep.Groups {
		rows = append(rows, []any{g.Label, g.Count, num(g.Total), num(g.Tax), num(g.TaxDeductible)})
	}
	rows = append(rows, []any{"Total", rep.Count, num(rep.Total), num(rep.Tax), num(rep.TaxDeductible)})
	return writeSheet(w, expenseSheet, headers, rows)
}

func writeSheet(w io.Writer, sheet string, headers []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	for col, h := range headers {
		if err := setCell(f, sheet, col+1, 1, h); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for col, v := range row {
			if v == nil {
				continue
			}
			if err := setCell(f, sheet, col+1, i+2, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx: write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("xlsx: set %s: %w", cell, err)
	}
	return nil
}

// num converts an amount for a spreadsheet cell. The ledger keeps the exact
// value; the workbook is for reading.
func num(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
