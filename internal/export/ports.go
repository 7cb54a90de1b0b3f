// Package export defines the outbound ports for spreadsheet export.
package export

import "context"

// Row is one exported ledger line. Amounts stay in cents until the
// adapter formats them for its target.
type Row struct {
	Date        string
	Type        string
	AmountCents int64
	Category    string
	Memo        string
	UserEmail   string
}

// RowAppender appends a row to the export target and returns a reference
// to where it landed.
type RowAppender interface {
	AppendRow(ctx context.Context, row Row) (rowRef string, err error)
}
