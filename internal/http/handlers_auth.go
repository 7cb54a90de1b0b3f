package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"kakeibo/internal/core"
)

// maxBodyBytes caps request bodies. CSV imports get a larger budget in
// their own handler.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.auth.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeDomainError(w, r, err, fieldForUserError(err))
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserDTO(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserDTO(user)})
}

// fieldForUserError names the signup field a validation error refers to,
// so the client can highlight the right input.
func fieldForUserError(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidEmail):
		return "email"
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrTooLong):
		return "name"
	default:
		return ""
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), tokenFrom(r.Context())); err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
