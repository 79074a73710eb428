// Package stock adalah ledger stok per (variant, branch): satu-satunya
// tempat quantity & total_sold boleh berubah. Semua fungsi menerima Querier
// supaya bisa dipanggil di dalam transaksi caller.
package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier dipenuhi oleh *pgxpool.Pool maupun pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrLineNotFound = errors.New("stock line not found")

// Line mengidentifikasi satu baris reservasi: qty selalu terhadap satu
// pasangan (variant, branch), tidak pernah di-pool lintas branch.
type Line struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	BranchID  string `json:"branch_id"`
	Qty       int    `json:"qty"`
}

type Shortage struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	BranchID  string `json:"branch_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type Availability struct {
	Line
	Available      int  `json:"available"`
	StockAvailable bool `json:"stock_available"`
}

// ReserveLine: decrement terjaga dalam satu statement. Kondisi quantity >= qty
// di WHERE clause yang mencegah oversell, bukan pengecekan di aplikasi.
// Return Shortage (bukan error) kalau stok kurang, ErrLineNotFound kalau
// barisnya tidak ada.
func ReserveLine(ctx context.Context, q Querier, l Line) (*Shortage, error) {
	ct, err := q.Exec(ctx, `
		UPDATE branch_stock SET quantity = quantity - $3
		WHERE variant_id=$1 AND branch_id=$2 AND quantity >= $3`,
		l.VariantID, l.BranchID, l.Qty)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 1 {
		return nil, nil
	}

	var avail int
	err = q.QueryRow(ctx, `SELECT quantity FROM branch_stock WHERE variant_id=$1 AND branch_id=$2`,
		l.VariantID, l.BranchID).Scan(&avail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Shortage{
		ProductID: l.ProductID, VariantID: l.VariantID, BranchID: l.BranchID,
		Required: l.Qty, Available: avail,
	}, nil
}

// RestoreLine: increment tanpa syarat. Ledger tidak menjamin idempotency;
// caller yang wajib memastikan restore maksimal sekali per reservasi.
func RestoreLine(ctx context.Context, q Querier, l Line) error {
	ct, err := q.Exec(ctx, `
		UPDATE branch_stock SET quantity = quantity + $3
		WHERE variant_id=$1 AND branch_id=$2`,
		l.VariantID, l.BranchID, l.Qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// RecordSale menaikkan total_sold sebesar delta (negatif saat order dibatalkan).
func RecordSale(ctx context.Context, q Querier, l Line, delta int) error {
	ct, err := q.Exec(ctx, `
		UPDATE branch_stock SET total_sold = total_sold + $3
		WHERE variant_id=$1 AND branch_id=$2`,
		l.VariantID, l.BranchID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// CheckAvailability: read-only. availableForCaller = quantity ledger + qty yang
// sudah dipegang cart yang sama untuk line itu (self-exclusion: cart tidak
// boleh melihat holding-nya sendiri sebagai "habis").
func CheckAvailability(ctx context.Context, q Querier, cartID string, lines []Line) ([]Availability, error) {
	out := make([]Availability, 0, len(lines))
	var cart any
	if cartID != "" {
		cart = cartID
	}
	for _, l := range lines {
		var avail int
		err := q.QueryRow(ctx, `
			SELECT bs.quantity + COALESCE((
				SELECT ci.qty FROM cart_items ci
				WHERE ci.cart_id=$3 AND ci.variant_id=$1 AND ci.branch_id=$2
			), 0)
			FROM branch_stock bs
			WHERE bs.variant_id=$1 AND bs.branch_id=$2`,
			l.VariantID, l.BranchID, cart).Scan(&avail)
		if errors.Is(err, pgx.ErrNoRows) {
			out = append(out, Availability{Line: l, Available: 0, StockAvailable: false})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Availability{Line: l, Available: avail, StockAvailable: avail >= l.Qty})
	}
	return out, nil
}

// RemoveBranch menghapus semua baris ledger milik satu branch dan
// mengembalikan product id yang terdampak supaya caller bisa re-aggregate
// dalam transaksi yang sama.
func RemoveBranch(ctx context.Context, q Querier, branchID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		DELETE FROM branch_stock bs
		USING variants v
		WHERE bs.branch_id=$1 AND v.id = bs.variant_id
		RETURNING v.product_id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// ReaggregateProducts menyamakan products.total_stock dengan jumlah quantity
// di ledger. Write di-skip kalau nilainya tidak berubah (predikat <>), supaya
// tidak ada write & trigger turunan yang sia-sia.
func ReaggregateProducts(ctx context.Context, q Querier, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE products p SET total_stock = x.total, updated_at = now()
		FROM (
			SELECT p2.id, COALESCE(SUM(bs.quantity), 0) AS total
			FROM products p2
			LEFT JOIN variants v ON v.product_id = p2.id
			LEFT JOIN branch_stock bs ON bs.variant_id = v.id
			WHERE p2.id = ANY($1::uuid[])
			GROUP BY p2.id
		) x
		WHERE p.id = x.id AND p.total_stock <> x.total`, productIDs)
	return err
}

// TotalStock: recompute murni dari ledger, dipakai sebagai fallback saat read.
func TotalStock(ctx context.Context, q Querier, productID string) (int, error) {
	var total int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(bs.quantity), 0)
		FROM variants v
		LEFT JOIN branch_stock bs ON bs.variant_id = v.id
		WHERE v.product_id = $1`, productID).Scan(&total)
	return total, err
}

// IsConcurrencyConflict: serialization/deadlock failure dari Postgres.
// Caller boleh retry terbatas; kalau habis, dilaporkan sebagai insufficient
// stock (konservatif) dan bukan oversell diam-diam.
func IsConcurrencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
