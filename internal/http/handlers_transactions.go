package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/csvimport"
	"kakeibo/internal/report"
)

type transactionRequest struct {
	CategoryID  *int64    `json:"category_id"`
	Date        core.Date `json:"date"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo"`
}

func (req transactionRequest) toDomain(userID int64) core.Transaction {
	return core.Transaction{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Date:       req.Date,
		Type:       core.TransactionType(req.Type),
		Amount:     core.Money{Cents: req.AmountCents},
		Memo:       strings.TrimSpace(req.Memo),
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	from, to, err := dateRange(r)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	txns, err := s.storage.ListTransactions(r.Context(), user.ID, from, to)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txns))
}

// dateRange reads the from/to query bounds, defaulting to the current
// calendar month when absent.
func dateRange(r *http.Request) (core.Date, core.Date, error) {
	now := time.Now().UTC()
	from, to := report.MonthRange(now.Year(), int(now.Month()))

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := core.ParseDate(raw)
		if err != nil {
			return core.Date{}, core.Date{}, err
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := core.ParseDate(raw)
		if err != nil {
			return core.Date{}, core.Date{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), req.toDomain(user.ID))
	if err != nil {
		writeDomainError(w, r, err, fieldForTransactionError(err))
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusCreated, toTransactionDTO(created))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	txn, err := s.storage.GetTransaction(r.Context(), user.ID, pathID(r))
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(txn))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	txn := req.toDomain(user.ID)
	txn.ID = pathID(r)

	updated, err := s.ledger.UpdateTransaction(r.Context(), txn)
	if err != nil {
		writeDomainError(w, r, err, fieldForTransactionError(err))
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusOK, toTransactionDTO(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := s.ledger.DeleteTransaction(r.Context(), user.ID, pathID(r)); err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusNoContent, nil)
}

// maxImportBytes caps a CSV upload, roughly a decade of daily statements.
const maxImportBytes = 5 << 20

type importResponse struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// handleImportTransactions ingests a CSV statement posted as the raw
// request body. Rows are committed independently, so a bad row reports
// an error without discarding its neighbors.
func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", nil)
		return
	}

	rows, rowErrors := csvimport.Parse(string(body))

	categoryIDs, err := s.categoryIDsByName(r, user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	imported := 0
	for _, row := range rows {
		txn := core.Transaction{
			UserID: user.ID,
			Date:   row.Date,
			Type:   row.Type,
			Amount: row.Amount,
			Memo:   row.Memo,
		}
		if row.Category != "" {
			if id, ok := categoryIDs[strings.ToLower(row.Category)]; ok {
				txn.CategoryID = &id
			}
		}
		if _, err := s.ledger.CreateTransaction(r.Context(), txn); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row dated %s: %v", row.Date, err))
			continue
		}
		imported++
	}

	if imported > 0 {
		s.invalidateUserCaches(user.ID)
	}
	if rowErrors == nil {
		rowErrors = []string{}
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: imported, Errors: rowErrors})
}

func (s *Server) categoryIDsByName(r *http.Request, userID int64) (map[string]int64, error) {
	categories, err := s.storage.ListCategories(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(categories))
	for _, c := range categories {
		byName[strings.ToLower(c.Name)] = c.ID
	}
	return byName, nil
}

func fieldForTransactionError(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidDate):
		return "date"
	case errors.Is(err, core.ErrInvalidType), errors.Is(err, core.ErrTypeMismatch):
		return "type"
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount_cents"
	case errors.Is(err, core.ErrTooLong):
		return "memo"
	default:
		return ""
	}
}
