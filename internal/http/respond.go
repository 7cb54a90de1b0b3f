package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kakeibo/internal/auth"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// errorEnvelope is the shape of every non-2xx body.
type errorEnvelope struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorEnvelope{Error: msg, Fields: fields})
}

// writeDomainError maps known domain and storage errors onto statuses.
// Anything unrecognized becomes a 500 with a generic message, the cause
// goes to the log only.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, field string) {
	var fields map[string]string
	if field != "" {
		fields = map[string]string{field: err.Error()}
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, storage.ErrEmailTaken):
		writeError(w, http.StatusUnprocessableEntity, "email already registered",
			map[string]string{"email": "already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusUnprocessableEntity, "validation failed",
			map[string]string{"password": err.Error()})
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"url", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidDate,
		core.ErrInvalidType,
		core.ErrInvalidAmount,
		core.ErrEmptyName,
		core.ErrTooLong,
		core.ErrInvalidColor,
		core.ErrInvalidEmail,
		core.ErrTypeMismatch,
		core.ErrInvalidCurrency,
		core.ErrInvalidRepetition,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func userCachePrefix(userID int64) string {
	return fmt.Sprintf("%d:", userID)
}

// --- response DTOs ---

type UserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CategoryDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

type TransactionDTO struct {
	ID          int64     `json:"id"`
	CategoryID  *int64    `json:"category_id"`
	Date        string    `json:"date"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Memo        string    `json:"memo,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type MonthSummary struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	IncomeCents  int64 `json:"income_cents"`
	ExpenseCents int64 `json:"expense_cents"`
	BalanceCents int64 `json:"balance_cents"`
	IncomeCount  int   `json:"income_count"`
	ExpenseCount int   `json:"expense_count"`
}

type CategorySlice struct {
	Name       string `json:"name"`
	ValueCents int64  `json:"value_cents"`
	Color      string `json:"color"`
}

type MonthPoint struct {
	Month        int   `json:"month"`
	IncomeCents  int64 `json:"income_cents"`
	ExpenseCents int64 `json:"expense_cents"`
	BalanceCents int64 `json:"balance_cents"`
}

type SettingsDTO struct {
	Currency       string `json:"currency"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

func toUserDTO(u core.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email, Name: u.Name}
}

func toCategoryDTO(c core.Category) CategoryDTO {
	return CategoryDTO{ID: c.ID, Name: c.Name, Type: string(c.Type), Color: c.Color}
}

func toTransactionDTO(t core.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Date:        t.Date.String(),
		Type:        string(t.Type),
		AmountCents: t.Amount.Cents,
		Amount:      t.Amount.String(),
		Memo:        t.Memo,
		CreatedAt:   t.CreatedAt,
	}
}

func toTransactionDTOs(txns []core.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txns))
	for i, t := range txns {
		out[i] = toTransactionDTO(t)
	}
	return out
}
