package http

import (
	"errors"
	"net/http"
	"strings"

	"kakeibo/internal/core"
)

type recurringRequest struct {
	CategoryID  *int64    `json:"category_id"`
	StartDate   core.Date `json:"start_date"`
	EndDate     core.Date `json:"end_date"`
	Every       string    `json:"every"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo"`
}

type RecurringDTO struct {
	ID          int64  `json:"id"`
	CategoryID  *int64 `json:"category_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Every       string `json:"every"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Memo        string `json:"memo,omitempty"`
}

func toRecurringDTO(rt core.RecurringTransaction) RecurringDTO {
	dto := RecurringDTO{
		ID:          rt.ID,
		CategoryID:  rt.CategoryID,
		StartDate:   rt.StartDate.String(),
		Every:       string(rt.Every),
		Type:        string(rt.Type),
		AmountCents: rt.Amount.Cents,
		Memo:        rt.Memo,
	}
	if !rt.EndDate.IsZero() {
		dto.EndDate = rt.EndDate.String()
	}
	return dto
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	templates, err := s.storage.ListRecurring(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	out := make([]RecurringDTO, 0, len(templates))
	for _, rt := range templates {
		out = append(out, toRecurringDTO(rt))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req recurringRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	template := core.RecurringTransaction{
		UserID:     user.ID,
		CategoryID: req.CategoryID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Every:      core.RepetitionTypes(req.Every),
		Type:       core.TransactionType(req.Type),
		Amount:     core.Money{Cents: req.AmountCents},
		Memo:       strings.TrimSpace(req.Memo),
	}
	if err := template.Validate(); err != nil {
		writeDomainError(w, r, err, fieldForRecurringError(err))
		return
	}

	created, err := s.storage.CreateRecurring(r.Context(), template)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringDTO(created))
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := s.storage.DeleteRecurring(r.Context(), user.ID, pathID(r)); err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func fieldForRecurringError(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidDate):
		return "start_date"
	case errors.Is(err, core.ErrInvalidRepetition):
		return "every"
	case errors.Is(err, core.ErrInvalidType):
		return "type"
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount_cents"
	case errors.Is(err, core.ErrTooLong):
		return "memo"
	default:
		return ""
	}
}
