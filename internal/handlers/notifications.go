package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/studex/apiserver/internal/services"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	notifications *services.NotificationService
	Responder
}

func NewNotificationHandler(notifications *services.NotificationService, rs Responder) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, Responder: rs}
}

func NotificationRouter(r chi.Router, h *NotificationHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Get("/", h.List)
	r.Get("/unread-count", h.UnreadCount)
	r.Put("/read-all", h.MarkAllRead)
	r.Put("/{notificationID}/read", h.MarkRead)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	notifications, err := h.notifications.List(r.Context(), user.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	count, err := h.notifications.UnreadCount(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "notificationID", "notification")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.notifications.MarkRead(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "notification marked as read")
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	updated, err := h.notifications.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"updated": updated})
}
