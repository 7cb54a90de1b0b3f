package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kakeibo/internal/report"
)

// yearMonth reads year/month query parameters, defaulting to the current
// UTC month. Out-of-range values are reported as field errors.
func yearMonth(r *http.Request) (int, int, map[string]string) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())

	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1970 || parsed > 9999 {
			return 0, 0, map[string]string{"year": "must be a four digit year"}
		}
		year = parsed
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, map[string]string{"month": "must be between 1 and 12"}
		}
		month = parsed
	}
	return year, month, nil
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	year, month, fields := yearMonth(r)
	if fields != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	key := fmt.Sprintf("%smonth:%d-%02d", userCachePrefix(user.ID), year, month)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	from, to := report.MonthRange(year, month)
	txns, err := s.storage.ListTransactions(r.Context(), user.ID, from, to)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	totals := report.ComputeMonthlyTotals(txns)
	summary := MonthSummary{
		Year:         year,
		Month:        month,
		IncomeCents:  totals.Income.Cents,
		ExpenseCents: totals.Expense.Cents,
		BalanceCents: totals.Balance().Cents,
		IncomeCount:  totals.IncomeCount,
		ExpenseCount: totals.ExpenseCount,
	}

	s.summaryCache.Set(key, summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	year, month, fields := yearMonth(r)
	if fields != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	key := fmt.Sprintf("%sbreakdown:%d-%02d", userCachePrefix(user.ID), year, month)
	if cached, ok := s.breakdownCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	from, to := report.MonthRange(year, month)
	txns, err := s.storage.ListTransactions(r.Context(), user.ID, from, to)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	categories, err := s.storage.ListCategories(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	breakdown := report.ComputeCategoryBreakdown(txns, categories)
	out := make([]CategorySlice, 0, len(breakdown))
	for _, slice := range breakdown {
		out = append(out, CategorySlice{
			Name:       slice.Name,
			ValueCents: slice.Value.Cents,
			Color:      slice.Color,
		})
	}

	s.breakdownCache.Set(key, out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	year, _, fields := yearMonth(r)
	if fields != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	key := fmt.Sprintf("%sseries:%d", userCachePrefix(user.ID), year)
	if cached, ok := s.seriesCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	txns, err := s.storage.ListTransactionsByYear(r.Context(), user.ID, year)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	series := report.ComputeMonthlySeries(txns, year)
	out := make([]MonthPoint, 0, len(series))
	for _, point := range series {
		out = append(out, MonthPoint{
			Month:        point.Month,
			IncomeCents:  point.Income.Cents,
			ExpenseCents: point.Expense.Cents,
			BalanceCents: point.Balance.Cents,
		})
	}

	s.seriesCache.Set(key, out)
	writeJSON(w, http.StatusOK, out)
}
