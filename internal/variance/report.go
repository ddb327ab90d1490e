package variance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shiftrecon/backend/internal/domain"
	"shiftrecon/backend/internal/usage"
)

const (
	TotalBunsRow = "Total Buns Used"
	TotalMeatRow = "Total Meat Used (grams)"
)

// SalesVsPOS compares staff-entered money against the POS shift totals.
// A missing form compares as all zeros.
func SalesVsPOS(form *domain.StaffShiftForm, pos domain.POSShiftReport) []domain.SalesComparison {
	var f domain.StaffShiftForm
	if form != nil {
		f = *form
	}

	fields := []struct {
		name string
		form decimal.Decimal
		pos  decimal.Decimal
	}{
		{"Gross Sales", f.TotalSales, pos.GrossSales},
		{"Net Sales", f.TotalSales, pos.NetSales},
		{"Cash Payments", f.CashSales, pos.CashSales},
		{"QR Sales", f.QRSales, pos.QRSales},
		{"Grab Sales", f.GrabSales, pos.GrabSales},
		{"Discounts", decimal.Zero, pos.Discounts},
		{"Refunds", decimal.Zero, pos.Refunds},
		{"Paid Out", decimal.Zero, pos.PaidOut},
	}

	rows := make([]domain.SalesComparison, 0, len(fields))
	for _, field := range fields {
		delta, status := CompareMoney(field.form, field.pos)
		rows = append(rows, domain.SalesComparison{
			Field:  field.name,
			Form:   field.form,
			POS:    field.pos,
			Delta:  delta,
			Status: status,
		})
	}
	return rows
}

// StockUsage is the three-row summary kept for older dashboards.
func (p Policy) StockUsage(u usage.Usage, actualBuns int, actualMeatGrams int, actualDrinks int) []domain.StockUsageRow {
	rows := []struct {
		item      string
		expected  int
		actual    int
		tolerance int
	}{
		{"Rolls", u.TotalBunsNeeded(), actualBuns, p.LegacyRolls},
		{"Meat (g)", u.TotalMeatGrams(), actualMeatGrams, p.LegacyMeatGrams},
		{"Drinks", u.TotalDrinksSold(), actualDrinks, p.LegacyDrinks},
	}

	out := make([]domain.StockUsageRow, 0, len(rows))
	for _, row := range rows {
		res := Compare(row.expected, row.actual, row.tolerance)
		out = append(out, domain.StockUsageRow{
			Item:      row.item,
			Expected:  row.expected,
			Actual:    row.actual,
			Variance:  res.Variance,
			Tolerance: row.tolerance,
			Status:    res.Status,
		})
	}
	return out
}

// Drinks has one row per drink sold; actual is keyed by canonical drink name.
func (p Policy) Drinks(u usage.Usage, actual map[string]int) []domain.ItemAnalysisRow {
	rows := make([]domain.ItemAnalysisRow, 0, len(u.Drinks))
	for _, d := range u.Drinks {
		tolerance := p.Drink.For(d.QtySold)
		res := Compare(d.QtySold, actual[d.Name], tolerance)
		rows = append(rows, domain.ItemAnalysisRow{
			ItemName:      d.Name,
			QtySold:       d.QtySold,
			ExpectedUsage: d.QtySold,
			ActualCount:   actual[d.Name],
			Variance:      res.Variance,
			Tolerance:     tolerance,
			Status:        res.Status,
		})
	}
	return rows
}

// Rolls has one apportioned row per burger type plus the TotalBunsRow summary.
func (p Policy) Rolls(u usage.Usage, actualBuns int) []domain.ItemAnalysisRow {
	expected := make([]int, len(u.Burgers))
	for i, b := range u.Burgers {
		expected[i] = b.BunsNeeded
	}
	estimated := Apportion(actualBuns, expected)

	rows := make([]domain.ItemAnalysisRow, 0, len(u.Burgers)+1)
	for i, b := range u.Burgers {
		tolerance := p.BunType.For(b.BunsNeeded)
		res := Compare(b.BunsNeeded, estimated[i], tolerance)
		rows = append(rows, domain.ItemAnalysisRow{
			ItemName:      b.Name,
			QtySold:       b.Count,
			ExpectedUsage: b.BunsNeeded,
			ActualCount:   estimated[i],
			Variance:      res.Variance,
			Tolerance:     tolerance,
			Status:        res.Status,
		})
	}

	total := u.TotalBunsNeeded()
	tolerance := p.BunTotal.For(total)
	res := Compare(total, actualBuns, tolerance)
	rows = append(rows, domain.ItemAnalysisRow{
		ItemName:      TotalBunsRow,
		QtySold:       u.TotalBurgersSold(),
		ExpectedUsage: total,
		ActualCount:   actualBuns,
		Variance:      res.Variance,
		Tolerance:     tolerance,
		Status:        res.Status,
	})
	return rows
}

// Meat has one apportioned row per beef burger type plus the TotalMeatRow summary.
func (p Policy) Meat(u usage.Usage, actualGrams int) []domain.ItemAnalysisRow {
	expected := make([]int, len(u.Meat))
	for i, m := range u.Meat {
		expected[i] = m.GramsNeeded
	}
	estimated := Apportion(actualGrams, expected)

	rows := make([]domain.ItemAnalysisRow, 0, len(u.Meat)+1)
	for i, m := range u.Meat {
		tolerance := p.MeatType.For(m.GramsNeeded)
		res := Compare(m.GramsNeeded, estimated[i], tolerance)
		rows = append(rows, domain.ItemAnalysisRow{
			ItemName:      m.Name,
			QtySold:       m.Count,
			ExpectedUsage: m.GramsNeeded,
			ActualCount:   estimated[i],
			Variance:      res.Variance,
			Tolerance:     tolerance,
			Status:        res.Status,
		})
	}

	total := u.TotalMeatGrams()
	tolerance := p.MeatTotal.For(total)
	res := Compare(total, actualGrams, tolerance)
	rows = append(rows, domain.ItemAnalysisRow{
		ItemName:      TotalMeatRow,
		QtySold:       u.TotalMeatBurgersSold(),
		ExpectedUsage: total,
		ActualCount:   actualGrams,
		Variance:      res.Variance,
		Tolerance:     tolerance,
		Status:        res.Status,
	})
	return rows
}

// Flags lists a readable line for every flagged row across all sub-reports.
func Flags(rec domain.ReconciliationRecord) []string {
	flags := make([]string, 0, 8)
	for _, row := range rec.SalesVsPOS {
		if row.Flagged() {
			flags = append(flags, fmt.Sprintf("%s mismatch %s", row.Field, row.Status))
		}
	}
	for _, row := range rec.StockUsage {
		if row.Status == domain.StatusFlagged {
			flags = append(flags, fmt.Sprintf("%s variance %d", row.Item, row.Variance))
		}
	}
	for _, row := range rec.DrinksAnalysis {
		if row.Status == domain.StatusFlagged {
			flags = append(flags, fmt.Sprintf("%s drink variance %d", row.ItemName, row.Variance))
		}
	}
	for _, row := range rec.RollsAnalysis {
		if row.Status == domain.StatusFlagged {
			flags = append(flags, fmt.Sprintf("%s bun variance %d", soldLabel(row), row.Variance))
		}
	}
	for _, row := range rec.MeatAnalysis {
		if row.Status == domain.StatusFlagged {
			flags = append(flags, fmt.Sprintf("%s meat variance %dg", soldLabel(row), row.Variance))
		}
	}
	return flags
}

func soldLabel(row domain.ItemAnalysisRow) string {
	if row.ItemName == TotalBunsRow || row.ItemName == TotalMeatRow {
		return row.ItemName
	}
	return fmt.Sprintf("%s (%d sold)", row.ItemName, row.QtySold)
}
