package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type CartHandler struct {
	Svc *cart.Service
}

type reserveReq struct {
	CartID string       `json:"cart_id,omitempty"`
	Items  []stock.Line `json:"items"`
}

type reserveResp struct {
	CartID string `json:"cart_id"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Post("/cart/reserve", h.reserve)
	r.Post("/cart/simulate", h.simulate)
	r.Get("/cart/{id}", h.get)
	r.Delete("/cart/{id}", h.release)
}

func (h *CartHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := h.Svc.Reserve(ctx, req.CartID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveResp{CartID: id})
}

func (h *CartHandler) simulate(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	avail, err := h.Svc.Simulate(ctx, req.CartID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"simulation": avail})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Svc.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) release(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Release(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart released"})
}
