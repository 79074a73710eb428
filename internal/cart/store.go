package cart

import (
	"context"
	"time"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

// Store adalah backend reservasi. Implementasi postgres ada di store_pg.go;
// implementasi memory (untuk unit test) di internal/memstore.
type Store interface {
	// Reserve: ganti-total (bukan merge) isi cart dengan items, all-or-nothing
	// dalam satu unit atomik. Holding lama di-restore dan line baru di-reserve
	// di unit yang sama; kalau ada line gagal, tidak ada efek yang terlihat
	// dan holding lama tetap utuh. Cart dibuat kalau cartID kosong / sudah
	// tidak ada. Return *InsufficientStockError saat stok kurang.
	Reserve(ctx context.Context, cartID string, items []stock.Line, now time.Time) (string, error)

	// Simulate: cek ketersediaan per line tanpa mutasi apa pun, dengan
	// self-exclusion terhadap holding cart sendiri.
	Simulate(ctx context.Context, cartID string, items []stock.Line) ([]stock.Availability, error)

	Get(ctx context.Context, cartID string) (*Cart, error)

	// Release: restore semua item lalu hapus cart. Restore yang gagal karena
	// barisnya hilang (branch dihapus) dilog, tidak memblokir penghapusan.
	Release(ctx context.Context, cartID string) error

	// SweepExpired: restore + hapus semua cart yang updated_at-nya lebih tua
	// dari now-ttl. Return jumlah cart yang disapu.
	SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}
