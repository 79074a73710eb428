package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type PGStore struct {
	DB  *pgxpool.Pool
	Log *logrus.Logger
}

func (s *PGStore) CreateFromCart(ctx context.Context, cartID string, in NewOrder, now time.Time) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// claim cart: lock dulu supaya tidak balapan dengan reserve/sweep
	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM carts WHERE id=$1 FOR UPDATE`, cartID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return nil, err
	}
	var items []stock.Line
	for rows.Next() {
		var l stock.Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.BranchID, &l.Qty); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	// harga diambil dari table products, hindari trust dari client
	productIDs := make([]string, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}
	prows, err := tx.Query(ctx, `SELECT id, selling_price_cents FROM products WHERE id = ANY($1::uuid[])`, productIDs)
	if err != nil {
		return nil, err
	}
	prices := map[string]int{}
	for prows.Next() {
		var id string
		var price int
		if err := prows.Scan(&id, &price); err != nil {
			prows.Close()
			return nil, err
		}
		prices[id] = price
	}
	prows.Close()
	if err := prows.Err(); err != nil {
		return nil, err
	}

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Buyer:         in.Buyer,
		OrderStatus:   StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: in.PaymentMethod,
		Logistics:     in.Logistics,
	}
	for _, it := range items {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
		}
		o.Lines = append(o.Lines, Line{Line: it, PriceCents: price})
		o.TotalCents += price * it.Qty
	}

	// cart dikonsumsi: dihapus TANPA restore, stoknya sekarang milik order
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, buyer_name, buyer_phone, total_cents,
			order_status, payment_status, payment_method,
			logistics_method, delivery_address, pickup_branch_id,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING order_no`,
		o.ID, o.UserID, o.Buyer.Name, o.Buyer.Phone, o.TotalCents,
		o.OrderStatus, o.PaymentStatus, o.PaymentMethod,
		o.Logistics.Method, o.Logistics.DeliveryAddress, o.Logistics.PickupBranchID,
		now).Scan(&o.OrderNo)
	if err != nil {
		return nil, err
	}
	o.CreatedAt, o.UpdatedAt = now, now

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, variant_id, branch_id, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, l.ProductID, l.VariantID, l.BranchID, l.Qty, l.PriceCents); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) Get(ctx context.Context, orderNo int64) (*Order, error) {
	return getByNo(ctx, s.DB, orderNo)
}

func (s *PGStore) List(ctx context.Context) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT order_no FROM orders ORDER BY order_no`)
	if err != nil {
		return nil, err
	}
	var nos []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		nos = append(nos, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Order, 0, len(nos))
	for _, n := range nos {
		o, err := getByNo(ctx, s.DB, n)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, orderNo int64, to Status, now time.Time) (*Order, bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var (
		id   string
		from Status
	)
	err = tx.QueryRow(ctx, `SELECT id, order_status FROM orders WHERE order_no=$1 FOR UPDATE`, orderNo).Scan(&id, &from)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}

	// cancel ulang = no-op; restore dua kali untuk satu pembatalan itu bug
	if from == StatusCanceled && to == StatusCanceled {
		o, err := getByNo(ctx, tx, orderNo)
		return o, false, err
	}
	if !CanTransition(from, to) {
		return nil, false, &BadTransitionError{From: from, To: to}
	}

	lines, err := orderLines(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	switch {
	case to == StatusConfirmed:
		for _, l := range lines {
			if err := stock.RecordSale(ctx, tx, l.Line, l.Qty); err != nil && !errors.Is(err, stock.ErrLineNotFound) {
				return nil, false, err
			}
		}
	case to == StatusCanceled:
		touched := map[string]bool{}
		for _, l := range lines {
			// baris ledger bisa sudah hilang (branch dihapus): status cancel
			// tetap jalan, selisih stok dilog untuk rekonsiliasi manual
			if err := stock.RestoreLine(ctx, tx, l.Line); err != nil {
				if errors.Is(err, stock.ErrLineNotFound) {
					s.Log.WithFields(logrus.Fields{
						"order_no": orderNo, "variant_id": l.VariantID, "branch_id": l.BranchID, "qty": l.Qty,
					}).Warn("cancel restore target missing, stock drift")
					continue
				}
				return nil, false, err
			}
			touched[l.ProductID] = true
			if saleRecorded(from) {
				if err := stock.RecordSale(ctx, tx, l.Line, -l.Qty); err != nil && !errors.Is(err, stock.ErrLineNotFound) {
					return nil, false, err
				}
			}
		}
		ids := make([]string, 0, len(touched))
		for pid := range touched {
			ids = append(ids, pid)
		}
		if err := stock.ReaggregateProducts(ctx, tx, ids); err != nil {
			return nil, false, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET order_status=$2, updated_at=$3 WHERE order_no=$1`,
		orderNo, to, now); err != nil {
		return nil, false, err
	}

	o, err := getByNo(ctx, tx, orderNo)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (s *PGStore) SetPaymentStatus(ctx context.Context, orderNo int64, ps PaymentStatus, ref string, now time.Time) (*Order, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE orders SET payment_status=$2, payment_ref=$3, updated_at=$4 WHERE order_no=$1`,
		orderNo, ps, ref, now)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return getByNo(ctx, s.DB, orderNo)
}

func getByNo(ctx context.Context, q stock.Querier, orderNo int64) (*Order, error) {
	var o Order
	err := q.QueryRow(ctx, `
		SELECT id, order_no, user_id, buyer_name, buyer_phone, total_cents,
			order_status, payment_status, payment_method, payment_ref,
			logistics_method, delivery_address, pickup_branch_id,
			created_at, updated_at
		FROM orders WHERE order_no=$1`, orderNo).Scan(
		&o.ID, &o.OrderNo, &o.UserID, &o.Buyer.Name, &o.Buyer.Phone, &o.TotalCents,
		&o.OrderStatus, &o.PaymentStatus, &o.PaymentMethod, &o.PaymentRef,
		&o.Logistics.Method, &o.Logistics.DeliveryAddress, &o.Logistics.PickupBranchID,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Lines, err = orderLines(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func orderLines(ctx context.Context, q stock.Querier, orderID string) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, variant_id, branch_id, qty, price_cents
		FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.VariantID, &l.BranchID, &l.Qty, &l.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
