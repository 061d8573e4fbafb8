package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/studex/apiserver/internal/services"
)

// UserHandler serves profile and account administration endpoints.
type UserHandler struct {
	users *services.UserService
	Responder
}

func NewUserHandler(users *services.UserService, rs Responder) *UserHandler {
	return &UserHandler{users: users, Responder: rs}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, h *UserHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Put("/me", h.UpdateProfile)
	r.Put("/me/password", h.ChangePassword)
	r.With(RequireAdmin).Put("/{userID}/role", h.SetRole)
	r.With(RequireAdmin).Put("/{userID}/block", h.SetBlocked)
}

type UpdateProfileRequest struct {
	Name       *string `json:"name"`
	University *string `json:"university"`
	AvatarURL  *string `json:"avatarUrl"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

type SetBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	updated, err := h.users.UpdateProfile(r.Context(), user.ID, services.ProfileUpdate{
		Name:       req.Name,
		University: req.University,
		AvatarURL:  req.AvatarURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.users.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}

func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.SetRole(r.Context(), id, req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (h *UserHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetBlockedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := userFromContext(r.Context())
	user, err := h.users.SetBlocked(r.Context(), actor.ID, id, req.Blocked)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}
