package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

// retry terbatas untuk serialization/deadlock failure; habis -> error terakhir
// naik ke caller (handler melaporkan insufficient, bukan oversell).
const maxReserveAttempts = 3

type PGStore struct {
	DB  *pgxpool.Pool
	Log *logrus.Logger
}

func (s *PGStore) Reserve(ctx context.Context, cartID string, items []stock.Line, now time.Time) (string, error) {
	var (
		id  string
		err error
	)
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		id, err = s.reserveOnce(ctx, cartID, items, now)
		if err == nil || !stock.IsConcurrencyConflict(err) {
			return id, err
		}
		s.Log.WithError(err).WithField("cart_id", cartID).Warn("reserve conflict, retrying")
	}
	// retries habis: dilaporkan sebagai insufficient yang menyebut line-nya
	// (konservatif), bukan error internal yang buram
	s.Log.WithError(err).WithField("cart_id", cartID).Warn("reserve conflict retries exhausted")
	return "", s.conflictInsufficient(ctx, cartID, items)
}

// conflictInsufficient membungkus kegagalan contention jadi
// InsufficientStockError. Available diisi dari pembacaan best-effort; gagal
// baca berarti 0 (line tetap tersebut di response).
func (s *PGStore) conflictInsufficient(ctx context.Context, cartID string, items []stock.Line) error {
	avail, err := stock.CheckAvailability(ctx, s.DB, cartID, items)
	if err != nil {
		avail = nil
	}
	return &InsufficientStockError{Shortages: shortagesUnderContention(items, avail)}
}

func shortagesUnderContention(items []stock.Line, avail []stock.Availability) []stock.Shortage {
	byKey := map[[2]string]int{}
	for _, a := range avail {
		byKey[[2]string{a.VariantID, a.BranchID}] = a.Available
	}
	out := make([]stock.Shortage, 0, len(items))
	for _, l := range items {
		out = append(out, stock.Shortage{
			ProductID: l.ProductID, VariantID: l.VariantID, BranchID: l.BranchID,
			Required: l.Qty, Available: byKey[[2]string{l.VariantID, l.BranchID}],
		})
	}
	return out
}

func (s *PGStore) reserveOnce(ctx context.Context, cartID string, items []stock.Line, now time.Time) (string, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	touched := map[string]bool{}

	// 1) lock cart kalau ada; cart id yang tidak dikenal = cart baru
	exists := false
	if cartID != "" {
		err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE id=$1 FOR UPDATE`, cartID).Scan(&cartID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
		exists = err == nil
	}

	if exists {
		// 2) restore holding lama lalu kosongkan; kalau reserve baru gagal,
		// rollback mengembalikan holding lama utuh (ganti-total jadi atomik)
		old, err := cartLines(ctx, tx, cartID)
		if err != nil {
			return "", err
		}
		for _, l := range old {
			if err := stock.RestoreLine(ctx, tx, l); err != nil && !errors.Is(err, stock.ErrLineNotFound) {
				return "", err
			}
			touched[l.ProductID] = true
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
			return "", err
		}
		// touch: perpanjang jendela expiry untuk seluruh operasi ini
		if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at=$2 WHERE id=$1`, cartID, now); err != nil {
			return "", err
		}
	} else {
		cartID = uuid.NewString()
		if _, err := tx.Exec(ctx, `INSERT INTO carts(id, created_at, updated_at) VALUES ($1,$2,$2)`, cartID, now); err != nil {
			return "", err
		}
	}

	// 3) reserve per line, urutan lock deterministik biar minim deadlock
	lines := make([]stock.Line, len(items))
	copy(lines, items)
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].VariantID != lines[j].VariantID {
			return lines[i].VariantID < lines[j].VariantID
		}
		return lines[i].BranchID < lines[j].BranchID
	})

	var shortages []stock.Shortage
	for _, l := range lines {
		sh, err := stock.ReserveLine(ctx, tx, l)
		if errors.Is(err, stock.ErrLineNotFound) {
			return "", fmt.Errorf("variant %s at branch %s: %w", l.VariantID, l.BranchID, ErrNotFound)
		}
		if err != nil {
			return "", err
		}
		if sh != nil {
			shortages = append(shortages, *sh)
			continue
		}
		touched[l.ProductID] = true
	}
	if len(shortages) > 0 {
		// rollback via defer: line yang sudah didecrement di pass ini batal semua
		return "", &InsufficientStockError{Shortages: shortages}
	}

	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_items(cart_id, product_id, variant_id, branch_id, qty)
			VALUES ($1,$2,$3,$4,$5)`,
			cartID, l.ProductID, l.VariantID, l.BranchID, l.Qty); err != nil {
			return "", err
		}
	}

	if err := stock.ReaggregateProducts(ctx, tx, keys(touched)); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return cartID, nil
}

func (s *PGStore) Simulate(ctx context.Context, cartID string, items []stock.Line) ([]stock.Availability, error) {
	return stock.CheckAvailability(ctx, s.DB, cartID, items)
}

func (s *PGStore) Get(ctx context.Context, cartID string) (*Cart, error) {
	c := Cart{ID: cartID}
	err := s.DB.QueryRow(ctx, `SELECT created_at, updated_at FROM carts WHERE id=$1`, cartID).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Items, err = cartLines(ctx, s.DB, cartID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) Release(ctx context.Context, cartID string) error {
	claimed, err := s.releaseOne(ctx, cartID, nil)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	cutoff := now.Add(-ttl)
	rows, err := s.DB.Query(ctx, `SELECT id FROM carts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		claimed, err := s.releaseOne(ctx, id, &cutoff)
		if err != nil {
			// satu cart macet jangan menghentikan sweep sisanya
			s.Log.WithError(err).WithField("cart_id", id).Warn("sweep release failed")
			continue
		}
		if claimed {
			swept++
		}
	}
	return swept, nil
}

// releaseOne: restore semua item lalu hapus cart, dalam satu transaksi.
// cutoff != nil berarti mode sweep: cart hanya di-claim kalau masih expired
// setelah locknya didapat, jadi dua sweeper tidak pernah restore dua kali.
func (s *PGStore) releaseOne(ctx context.Context, cartID string, cutoff *time.Time) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var locked string
	if cutoff != nil {
		err = tx.QueryRow(ctx, `SELECT id FROM carts WHERE id=$1 AND updated_at < $2 FOR UPDATE`, cartID, *cutoff).Scan(&locked)
	} else {
		err = tx.QueryRow(ctx, `SELECT id FROM carts WHERE id=$1 FOR UPDATE`, cartID).Scan(&locked)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	items, err := cartLines(ctx, tx, cartID)
	if err != nil {
		return false, err
	}
	touched := map[string]bool{}
	for _, l := range items {
		if err := stock.RestoreLine(ctx, tx, l); err != nil {
			if errors.Is(err, stock.ErrLineNotFound) {
				// branch/variant sudah dihapus; cart tetap harus hilang
				s.Log.WithFields(logrus.Fields{
					"cart_id": cartID, "variant_id": l.VariantID, "branch_id": l.BranchID,
				}).Warn("restore target missing, skipping")
				continue
			}
			return false, err
		}
		touched[l.ProductID] = true
	}
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return false, err
	}
	if err := stock.ReaggregateProducts(ctx, tx, keys(touched)); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func cartLines(ctx context.Context, q stock.Querier, cartID string) ([]stock.Line, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stock.Line
	for rows.Next() {
		var l stock.Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.BranchID, &l.Qty); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
