package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/yourorg/bookingsystem/internal/security/middleware"
	"github.com/yourorg/bookingsystem/internal/service"
)

// Identity is the slice of the auth service the HTTP layer uses.
type Identity interface {
	Register(ctx context.Context, email, password string) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// AuthHandler serves registration, login, and password changes
type AuthHandler struct {
	identity Identity
	logger   *slog.Logger
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(identity Identity, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, logger: logger}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}

	result, err := h.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "registration_failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}

	result, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Always the same shape for bad email vs bad password.
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication_failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ChangePassword handles POST /api/auth/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerFromContext(r.Context())
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication_required"})
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}

	if err := h.identity.ChangePassword(r.Context(), caller.ID, req.OldPassword, req.NewPassword); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "password_change_failed", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}
