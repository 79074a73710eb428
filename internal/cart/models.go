// Package cart adalah reservation manager: sebuah cart yang hidup berarti
// stok sudah dikurangi di ledger, bukan wishlist.
package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type Cart struct {
	ID        string       `json:"cart_id"`
	Items     []stock.Line `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

var (
	ErrNotFound   = errors.New("cart not found")
	ErrValidation = errors.New("validation")
)

// InsufficientStockError menyebut line mana yang gagal supaya client bisa
// re-render ketersediaan.
type InsufficientStockError struct {
	Shortages []stock.Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("variant=%s branch=%s required=%d available=%d",
			s.VariantID, s.BranchID, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func validateLines(items []stock.Line) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: empty items", ErrValidation)
	}
	seen := map[[2]string]bool{}
	for i, it := range items {
		if it.ProductID == "" || it.VariantID == "" || it.BranchID == "" {
			return fmt.Errorf("%w: item %d missing reference", ErrValidation, i)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("%w: item %d qty must be positive", ErrValidation, i)
		}
		k := [2]string{it.VariantID, it.BranchID}
		if seen[k] {
			return fmt.Errorf("%w: duplicate line variant=%s branch=%s", ErrValidation, it.VariantID, it.BranchID)
		}
		seen[k] = true
	}
	return nil
}
