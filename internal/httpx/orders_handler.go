package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-branch-stock.git/internal/auth"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
)

type OrdersHandler struct {
	Svc      *orders.Service
	Verifier auth.Verifier
}

type checkoutReq struct {
	CartID string `json:"cart_id"`
	orders.NewOrder
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.checkout)
	r.Get("/orders/{orderNo}", h.get)
	r.Get("/orders/{orderNo}/status", h.getStatus)
	r.Post("/orders/{orderNo}/pay", h.pay)

	admin := RequireRole(h.Verifier, auth.RoleAdmin)
	r.With(admin).Get("/orders", h.list)
	r.With(admin).Put("/orders/{orderNo}/status", h.updateStatus)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Checkout(ctx, req.CartID, req.NewOrder, r.Header.Get("X-Request-Id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	no, err := orderNo(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.Get(ctx, no)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus: fast path dari cache redis, fallback DB.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	no, err := orderNo(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if cached, ok := h.Svc.CachedStatus(ctx, no); ok {
		writeJSON(w, http.StatusOK, json.RawMessage(cached))
		return
	}
	o, err := h.Svc.Get(ctx, no)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_status":   o.OrderStatus,
		"payment_status": o.PaymentStatus,
	})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	no, err := orderNo(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order number"})
		return
	}
	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, no, req.Status, r.Header.Get("X-Request-Id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	no, err := orderNo(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order number"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	o, err := h.Svc.Pay(ctx, no, r.Header.Get("X-Request-Id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func orderNo(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orderNo"), 10, 64)
}
