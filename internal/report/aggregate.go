// Package report reduces transaction lists into the summary values consumed
// by dashboard widgets. All computations are pure: they read immutable
// snapshots of fetched data and produce fresh derived values.
package report

import (
	"time"

	"kakeibo/internal/core"
)

// MonthlyTotals holds the per-type sums and counts for a set of transactions.
// Balance is derived, never stored back into the accumulator.
type MonthlyTotals struct {
	Income       core.Money
	Expense      core.Money
	IncomeCount  int
	ExpenseCount int
}

// Balance returns income minus expense.
func (t MonthlyTotals) Balance() core.Money {
	return core.Money{Cents: t.Income.Cents - t.Expense.Cents}
}

// CategorySlice is one row of an expense breakdown for pie-chart display.
type CategorySlice struct {
	Name  string
	Value core.Money
	Color string
}

// MonthPoint is one month of a yearly trend series.
type MonthPoint struct {
	Month   int // 1-12
	Income  core.Money
	Expense core.Money
	Balance core.Money
}

// ComputeMonthlyTotals reduces a transaction list, already filtered by the
// caller to the date range of interest, into income/expense sums and counts.
// Transactions whose type matches neither recognized tag are silently
// skipped. Runs in O(n) and does not mutate its input.
func ComputeMonthlyTotals(transactions []core.Transaction) MonthlyTotals {
	var t MonthlyTotals
	for _, txn := range transactions {
		switch txn.Type {
		case core.Income:
			t.Income.Cents += txn.Amount.Cents
			t.IncomeCount++
		case core.Expense:
			t.Expense.Cents += txn.Amount.Cents
			t.ExpenseCount++
		}
	}
	return t
}

// ComputeCategoryBreakdown sums expense transactions grouped by category and
// maps every known category to a named, colored slice. Categories whose sum
// is zero are omitted rather than shown as zero-height slices. A transaction
// referencing no category, or a category not in the given set, contributes
// to no row.
func ComputeCategoryBreakdown(transactions []core.Transaction, categories []core.Category) []CategorySlice {
	sums := make(map[int64]int64)
	for _, txn := range transactions {
		if txn.Type != core.Expense || txn.CategoryID == nil {
			continue
		}
		sums[*txn.CategoryID] += txn.Amount.Cents
	}

	var out []CategorySlice
	for _, c := range categories {
		cents := sums[c.ID]
		if cents <= 0 {
			continue
		}
		out = append(out, CategorySlice{
			Name:  c.Name,
			Value: core.Money{Cents: cents},
			Color: c.Color,
		})
	}
	return out
}

// ComputeMonthlySeries filters to transactions dated within the given
// calendar year and produces exactly twelve ordered points, January through
// December. Months with no transactions are all-zero rather than omitted, so
// a trend chart always has twelve data points. Balance is per month, not
// cumulative.
func ComputeMonthlySeries(transactions []core.Transaction, year int) []MonthPoint {
	points := make([]MonthPoint, 12)
	for i := range points {
		points[i].Month = i + 1
	}
	for _, txn := range transactions {
		if txn.Date.Year() != year {
			continue
		}
		p := &points[txn.Date.Month()-1]
		switch txn.Type {
		case core.Income:
			p.Income.Cents += txn.Amount.Cents
		case core.Expense:
			p.Expense.Cents += txn.Amount.Cents
		}
	}
	for i := range points {
		points[i].Balance.Cents = points[i].Income.Cents - points[i].Expense.Cents
	}
	return points
}

// MonthRange returns the first and last calendar day of a month. The last
// day uses the actual day count of that month, so February and leap years
// come out right (day 0 of the following month normalizes backwards).
func MonthRange(year, month int) (core.Date, core.Date) {
	first := core.NewDate(year, month, 1)
	last := core.Date{Time: time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)}
	return first, last
}
