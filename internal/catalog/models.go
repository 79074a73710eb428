// Package catalog: produk, varian, stok per branch, dan branch (pickup
// point) itu sendiri. Mutasi quantity lewat admin di sini tetap memakai
// ledger + re-aggregate, sama seperti jalur reservasi.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation")
)

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Link              string    `json:"link"`
	Brand             string    `json:"brand,omitempty"`
	SellingPriceCents int       `json:"selling_price_cents"`
	ListPriceCents    int       `json:"list_price_cents,omitempty"`
	CategoryID        string    `json:"category_id,omitempty"`
	SubcategoryID     string    `json:"subcategory_id,omitempty"`
	TotalStock        int       `json:"total_stock"`
	Variants          []Variant `json:"variants"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Variant struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Stock []BranchStock `json:"stock_by_branch"`
}

type BranchStock struct {
	BranchID  string `json:"branch_id"`
	Quantity  int    `json:"quantity"`
	TotalSold int    `json:"total_sold"`
}

type Branch struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	WorkingHours string    `json:"working_hours"`
	Contact      string    `json:"contact"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *Product) validate() error {
	if p.Name == "" || p.Link == "" {
		return fmt.Errorf("%w: name and link are required", ErrValidation)
	}
	if p.SellingPriceCents <= 0 {
		return fmt.Errorf("%w: selling price must be positive", ErrValidation)
	}
	for _, v := range p.Variants {
		for _, bs := range v.Stock {
			if bs.Quantity < 0 {
				return fmt.Errorf("%w: negative stock for branch %s", ErrValidation, bs.BranchID)
			}
		}
	}
	return nil
}

func (b *Branch) validate() error {
	if b.Address == "" || b.WorkingHours == "" || b.Contact == "" {
		return fmt.Errorf("%w: address, working_hours and contact are required", ErrValidation)
	}
	return nil
}
