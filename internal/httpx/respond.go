package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/catalog"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr memetakan taksonomi error domain ke status HTTP. Insufficient
// stock selalu menyebut line yang gagal supaya client bisa re-render.
func writeErr(w http.ResponseWriter, err error) {
	var insufficient *cart.InsufficientStockError
	var badTransition *orders.BadTransitionError

	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "insufficient stock",
			"details": insufficient.Shortages,
		})
	case errors.Is(err, cart.ErrValidation),
		errors.Is(err, orders.ErrValidation),
		errors.Is(err, catalog.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrCartNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &badTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrPaymentDeclined):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
