// Package csvimport parses transaction rows from uploaded CSV files.
//
// Expected header: Date,Type,Amount,Category,Memo. Category and Memo may
// be empty. Amounts use decimal units, dates are YYYY-MM-DD.
package csvimport

import (
	"encoding/csv"
	"fmt"
	"strings"

	"kakeibo/internal/core"
)

// Row is one parsed line, not yet bound to stored category IDs. Category
// stays a name here, the import handler resolves it per user.
type Row struct {
	Date     core.Date
	Type     core.TransactionType
	Amount   core.Money
	Category string
	Memo     string
}

// Parse reads the CSV content and returns the valid rows plus one error
// message per rejected row. A broken file returns a single error.
func Parse(content string) ([]Row, []string) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, []string{fmt.Sprintf("failed to read CSV: %v", err)}
	}

	if len(records) < 2 {
		return []Row{}, nil // empty or header only
	}

	headers := parseHeaders(records[0])
	var rows []Row
	var errs []string

	for i, record := range records[1:] {
		rowNum := i + 2 // 1-based, after the header
		rowMap := make(map[string]string)
		for j, header := range headers {
			if j < len(record) {
				rowMap[header] = strings.TrimSpace(record[j])
			}
		}

		row, err := mapToRow(rowMap)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs
}

func parseHeaders(row []string) []string {
	headers := make([]string, len(row))
	for i, h := range row {
		headers[i] = strings.TrimSpace(h)
	}
	return headers
}

func mapToRow(row map[string]string) (Row, error) {
	dateStr := row["Date"]
	if dateStr == "" {
		return Row{}, fmt.Errorf("missing Date")
	}
	date, err := core.ParseDate(dateStr)
	if err != nil {
		return Row{}, fmt.Errorf("invalid Date: %s", dateStr)
	}

	typeStr := strings.ToLower(row["Type"])
	txnType := core.TransactionType(typeStr)
	if !txnType.Recognized() {
		return Row{}, fmt.Errorf("invalid Type: %s", row["Type"])
	}

	amountStr := row["Amount"]
	if amountStr == "" {
		return Row{}, fmt.Errorf("missing Amount")
	}
	amount, err := core.ParseAmount(amountStr)
	if err != nil {
		return Row{}, fmt.Errorf("invalid Amount: %s", amountStr)
	}

	return Row{
		Date:     date,
		Type:     txnType,
		Amount:   amount,
		Category: row["Category"],
		Memo:     row["Memo"],
	}, nil
}
