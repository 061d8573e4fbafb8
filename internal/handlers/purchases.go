package handlers

import (
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/types"
)

// PurchaseHandler serves the purchase and sales endpoints.
type PurchaseHandler struct {
	purchases *services.PurchaseService
	Responder
}

func NewPurchaseHandler(purchases *services.PurchaseService, rs Responder) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, Responder: rs}
}

// PurchaseRouter registers purchase routes. Every route requires a session.
func PurchaseRouter(r chi.Router, h *PurchaseHandler, auth *Authenticator) {
	r.Use(auth.RequireAuth)

	r.Post("/", h.Purchase)
	r.Post("/cart", h.PurchaseCart)
	r.Get("/user/{userID}", h.History)
	r.Get("/check/{projectID}", h.Check)
	r.Get("/stats", h.Stats)
	r.Get("/sales", h.Sales)
	r.With(RequireAdmin).Post("/validate", h.Validate)
	r.With(RequireAdmin).Get("/pending", h.Pending)
}

type PurchaseRequest struct {
	ProjectID     int     `json:"projectId"`
	PaymentMethod string  `json:"paymentMethod"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

type CartPurchaseItem struct {
	ProjectID int     `json:"projectId"`
	Amount    float64 `json:"amount"`
}

type CartPurchaseRequest struct {
	Projects      []CartPurchaseItem `json:"projects"`
	PaymentMethod string             `json:"paymentMethod"`
}

type ValidatePaymentRequest struct {
	SaleID  int    `json:"saleId"`
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

type CartPurchaseResponse struct {
	Sales []types.Sale `json:"sales"`
	Total float64      `json:"total"`
}

func parsePaymentMethod(raw string) types.PaymentMethod {
	return types.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
}

func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID < 1 {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}

	user, _ := userFromContext(r.Context())
	sale, err := h.purchases.Purchase(
		r.Context(),
		user.ID,
		services.PurchaseItem{ProjectID: req.ProjectID, Amount: req.Amount},
		parsePaymentMethod(req.PaymentMethod),
		req.Currency,
	)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{
		Success: true,
		Data:    sale,
		Message: "purchase registered, payment pending",
	})
}

func (h *PurchaseHandler) PurchaseCart(w http.ResponseWriter, r *http.Request) {
	var req CartPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := lo.Map(req.Projects, func(item CartPurchaseItem, _ int) services.PurchaseItem {
		return services.PurchaseItem{ProjectID: item.ProjectID, Amount: item.Amount}
	})
	user, _ := userFromContext(r.Context())
	sales, err := h.purchases.PurchaseCart(r.Context(), user.ID, items, parsePaymentMethod(req.PaymentMethod))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	total := lo.SumBy(sales, func(sale types.Sale) float64 { return sale.SalePrice })
	total = math.Round(total*100) / 100
	writeJSON(w, http.StatusCreated, Envelope{
		Success: true,
		Data:    CartPurchaseResponse{Sales: sales, Total: total},
		Message: "purchase registered, payment pending",
	})
}

func (h *PurchaseHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	sales, err := h.purchases.History(r.Context(), user, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sales)
}

func (h *PurchaseHandler) Check(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, _ := userFromContext(r.Context())
	purchased, err := h.purchases.HasPurchased(r.Context(), user.ID, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"hasPurchased": purchased})
}

func (h *PurchaseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	stats, err := h.purchases.Stats(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (h *PurchaseHandler) Sales(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sales, err := h.purchases.SellerSales(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sales)
}

// Validate lets an admin settle a pending sale by hand.
func (h *PurchaseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SaleID < 1 {
		writeError(w, http.StatusBadRequest, "saleId is required")
		return
	}

	sale, err := h.purchases.ValidatePayment(r.Context(), req.SaleID, req.Approve, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	message := "payment rejected"
	if req.Approve {
		message = "payment approved"
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: sale, Message: message})
}

func (h *PurchaseHandler) Pending(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sales, err := h.purchases.Pending(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sales)
}
