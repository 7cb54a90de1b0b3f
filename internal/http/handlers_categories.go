package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"kakeibo/internal/core"
)

type categoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	categories, err := s.storage.ListCategories(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	out := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	category := core.Category{
		UserID: user.ID,
		Name:   req.Name,
		Type:   core.TransactionType(req.Type),
		Color:  req.Color,
	}
	if err := category.Validate(); err != nil {
		writeDomainError(w, r, err, fieldForCategoryError(err))
		return
	}

	created, err := s.storage.CreateCategory(r.Context(), category)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusCreated, toCategoryDTO(created))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Type is fixed at creation, so start from the stored row and only
	// take over the mutable fields.
	category, err := s.storage.GetCategory(r.Context(), user.ID, pathID(r))
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	category.Name = req.Name
	category.Color = req.Color

	if err := category.Validate(); err != nil {
		writeDomainError(w, r, err, fieldForCategoryError(err))
		return
	}

	updated, err := s.storage.UpdateCategory(r.Context(), category)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusOK, toCategoryDTO(updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	if err := s.storage.DeleteCategory(r.Context(), user.ID, pathID(r)); err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	s.invalidateUserCaches(user.ID)
	writeJSON(w, http.StatusNoContent, nil)
}

func fieldForCategoryError(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrTooLong):
		return "name"
	case errors.Is(err, core.ErrInvalidType):
		return "type"
	case errors.Is(err, core.ErrInvalidColor):
		return "color"
	default:
		return ""
	}
}
