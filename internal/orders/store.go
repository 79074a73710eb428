package orders

import (
	"context"
	"time"
)

// Store adalah backend order. Checkout mengkonsumsi cart di unit atomik yang
// sama dengan pembuatan order: cart hilang, ledger TIDAK di-restore (hold
// stoknya pindah kepemilikan ke order).
type Store interface {
	CreateFromCart(ctx context.Context, cartID string, in NewOrder, now time.Time) (*Order, error)

	Get(ctx context.Context, orderNo int64) (*Order, error)
	List(ctx context.Context) ([]Order, error)

	// UpdateStatus menjalankan state machine. Masuk ke confirmed mencatat
	// penjualan (total_sold naik); masuk ke canceled me-restore stok dan,
	// kalau penjualan sudah tercatat, menurunkannya lagi. canceled ->
	// canceled adalah no-op (changed=false) supaya stok tidak pernah
	// di-restore dua kali untuk satu pembatalan.
	UpdateStatus(ctx context.Context, orderNo int64, to Status, now time.Time) (o *Order, changed bool, err error)

	SetPaymentStatus(ctx context.Context, orderNo int64, ps PaymentStatus, ref string, now time.Time) (*Order, error)
}
