package http

import (
	"log/slog"
	"net/http"
	"strings"

	"kakeibo/internal/core"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	settings, err := s.storage.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		Currency:       settings.Currency,
		TelegramChatID: settings.TelegramChatID,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req SettingsDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	settings := core.UserSettings{
		UserID:         user.ID,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		TelegramChatID: req.TelegramChatID,
	}
	if err := settings.Validate(); err != nil {
		writeDomainError(w, r, err, "currency")
		return
	}

	if err := s.storage.UpdateSettings(r.Context(), settings); err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		Currency:       settings.Currency,
		TelegramChatID: settings.TelegramChatID,
	})
}

type suggestRequest struct {
	Memo string `json:"memo"`
}

type suggestResponse struct {
	Category string `json:"category"`
}

// handleSuggestCategory asks the configured model for a category name
// matching the memo. Without a configured suggester the endpoint reports
// itself unavailable; model failures degrade to an empty suggestion.
func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	if s.suggester == nil {
		writeError(w, http.StatusServiceUnavailable, "category suggestion is not configured", nil)
		return
	}

	user := userFrom(r.Context())

	var req suggestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	categories, err := s.storage.ListCategories(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}

	suggestion, err := s.suggester.SuggestCategory(r.Context(), req.Memo, names)
	if err != nil {
		slog.WarnContext(r.Context(), "Category suggestion failed", "error", err)
		suggestion = ""
	}
	writeJSON(w, http.StatusOK, suggestResponse{Category: suggestion})
}
