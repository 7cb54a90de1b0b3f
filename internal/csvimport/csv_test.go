package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
)

func TestParseValid(t *testing.T) {
	content := `Date,Type,Amount,Category,Memo
2025-08-17,expense,42.50,Groceries,weekly shop
2025-08-18,income,3000,Salary,
2025-08-19,expense,"10,50",,`

	rows, errs := Parse(content)

	require.Empty(t, errs)
	require.Len(t, rows, 3)

	assert.Equal(t, "2025-08-17", rows[0].Date.String())
	assert.Equal(t, core.Expense, rows[0].Type)
	assert.Equal(t, int64(4250), rows[0].Amount.Cents)
	assert.Equal(t, "Groceries", rows[0].Category)
	assert.Equal(t, "weekly shop", rows[0].Memo)

	assert.Equal(t, core.Income, rows[1].Type)
	assert.Equal(t, int64(300000), rows[1].Amount.Cents)
	assert.Empty(t, rows[1].Memo)

	assert.Equal(t, int64(1050), rows[2].Amount.Cents)
	assert.Empty(t, rows[2].Category)
}

func TestParseWhitespaceAndCase(t *testing.T) {
	content := ` Date , Type , Amount , Category , Memo
 2025-08-17 , EXPENSE , 42.5 , Groceries , padded `

	rows, errs := Parse(content)

	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, core.Expense, rows[0].Type)
	assert.Equal(t, int64(4250), rows[0].Amount.Cents)
	assert.Equal(t, "padded", rows[0].Memo)
}

func TestParseRowErrorsDoNotStopOtherRows(t *testing.T) {
	content := `Date,Type,Amount,Category,Memo
2025-08-17,expense,42.50,Groceries,ok
not-a-date,expense,1.00,,
2025-08-18,transfer,1.00,,
2025-08-19,expense,-5,,
2025-08-20,income,100,,also ok`

	rows, errs := Parse(content)

	assert.Len(t, rows, 2)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "row 3")
	assert.Contains(t, errs[0], "invalid Date")
	assert.Contains(t, errs[1], "invalid Type")
	assert.Contains(t, errs[2], "invalid Amount")
}

func TestParseEmptyAndHeaderOnly(t *testing.T) {
	rows, errs := Parse("")
	assert.Empty(t, rows)
	assert.Empty(t, errs)

	rows, errs = Parse("Date,Type,Amount,Category,Memo\n")
	assert.Empty(t, rows)
	assert.Empty(t, errs)
}

func TestParseMissingColumns(t *testing.T) {
	content := `Date,Type,Amount,Category,Memo
2025-08-17,expense`

	rows, errs := Parse(content)
	assert.Empty(t, rows)
	assert.NotEmpty(t, errs)
}
