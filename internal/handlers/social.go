package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/types"
)

type projectRequest struct {
	ProjectID int `json:"projectId"`
}

func decodeProjectRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.ProjectID < 1 {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return 0, false
	}
	return req.ProjectID, true
}

// FavoriteHandler serves the favorites endpoints.
type FavoriteHandler struct {
	favorites *services.FavoriteService
	Responder
}

func NewFavoriteHandler(favorites *services.FavoriteService, rs Responder) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites, Responder: rs}
}

func FavoriteRouter(r chi.Router, h *FavoriteHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Get("/check/{projectID}", h.Check)
	r.Delete("/{projectID}", h.Remove)
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	favorites, err := h.favorites.List(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, favorites)
}

func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	projectID, ok := decodeProjectRequest(w, r)
	if !ok {
		return
	}
	user, _ := userFromContext(r.Context())
	favorite, err := h.favorites.Add(r.Context(), user.ID, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, favorite)
}

func (h *FavoriteHandler) Check(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	favorite, err := h.favorites.IsFavorite(r.Context(), user.ID, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"isFavorite": favorite})
}

func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.favorites.Remove(r.Context(), user.ID, projectID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "removed from favorites")
}

// CartHandler serves the shopping cart endpoints.
type CartHandler struct {
	cart *services.CartService
	Responder
}

func NewCartHandler(cart *services.CartService, rs Responder) *CartHandler {
	return &CartHandler{cart: cart, Responder: rs}
}

func CartRouter(r chi.Router, h *CartHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Delete("/", h.Clear)
	r.Delete("/{projectID}", h.Remove)
}

type CartResponse struct {
	Items []types.CartItem `json:"items"`
	Total float64          `json:"total"`
	Count int              `json:"count"`
}

func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	items, total, err := h.cart.List(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, CartResponse{Items: items, Total: total, Count: len(items)})
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	projectID, ok := decodeProjectRequest(w, r)
	if !ok {
		return
	}
	user, _ := userFromContext(r.Context())
	item, err := h.cart.Add(r.Context(), user.ID, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, item)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.cart.Remove(r.Context(), user.ID, projectID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "removed from cart")
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	removed, err := h.cart.Clear(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"removed": removed})
}

// CommentHandler serves listing comments.
type CommentHandler struct {
	comments *services.CommentService
	Responder
}

func NewCommentHandler(comments *services.CommentService, rs Responder) *CommentHandler {
	return &CommentHandler{comments: comments, Responder: rs}
}

func CommentRouter(r chi.Router, h *CommentHandler, auth *Authenticator) {
	r.Get("/project/{projectID}", h.List)
	r.With(auth.RequireAuth).Post("/", h.Create)
	r.With(auth.RequireAuth).Delete("/{commentID}", h.Delete)
}

type CreateCommentRequest struct {
	ProjectID int    `json:"projectId"`
	Content   string `json:"content"`
}

func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	comments, err := h.comments.List(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, comments)
}

func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID < 1 {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}
	user, _ := userFromContext(r.Context())
	comment, err := h.comments.Create(r.Context(), user, req.ProjectID, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, comment)
}

func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "commentID", "comment")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.comments.Delete(r.Context(), user, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "comment deleted")
}

// SearchHistoryHandler serves a user's recent searches.
type SearchHistoryHandler struct {
	history *services.SearchHistoryService
	Responder
}

func NewSearchHistoryHandler(history *services.SearchHistoryService, rs Responder) *SearchHistoryHandler {
	return &SearchHistoryHandler{history: history, Responder: rs}
}

func SearchHistoryRouter(r chi.Router, h *SearchHistoryHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Get("/", h.List)
	r.Post("/", h.Record)
	r.Delete("/", h.Clear)
	r.Delete("/{entryID}", h.Delete)
}

type RecordSearchRequest struct {
	Term string `json:"term"`
}

func (h *SearchHistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	entries, err := h.history.List(r.Context(), user.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (h *SearchHistoryHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	entry, err := h.history.Record(r.Context(), user.ID, req.Term)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, entry)
}

func (h *SearchHistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "entryID", "search")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	if err := h.history.Delete(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "search removed")
}

func (h *SearchHistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	cleared, err := h.history.Clear(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"cleared": cleared})
}
