// Package memstore adalah implementasi memory dari cart.Store dan
// orders.Store dengan ledger bersama. Dipakai unit test untuk memverifikasi
// invariant reservasi tanpa Postgres; semantiknya sengaja dibuat sama persis
// dengan implementasi pg. Satu Store, dua view: CartStore() dan OrderStore().
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type lineKey struct{ variantID, branchID string }

type entry struct {
	productID string
	quantity  int
	totalSold int
}

type productRec struct {
	priceCents int
	totalStock int
}

type cartRec struct {
	items     []stock.Line
	createdAt time.Time
	updatedAt time.Time
}

type Store struct {
	mu       sync.Mutex
	ledger   map[lineKey]*entry
	products map[string]*productRec
	carts    map[string]*cartRec
	orders   map[int64]*orders.Order
	nextNo   int64
}

func New() *Store {
	return &Store{
		ledger:   map[lineKey]*entry{},
		products: map[string]*productRec{},
		carts:    map[string]*cartRec{},
		orders:   map[int64]*orders.Order{},
		nextNo:   1,
	}
}

// CartStore / OrderStore: dua interface punya method Get dengan signature
// beda, jadi tiap peran dapat view sendiri di atas state yang sama.
func (s *Store) CartStore() cart.Store    { return cartView{s} }
func (s *Store) OrderStore() orders.Store { return orderView{s} }

type cartView struct{ s *Store }
type orderView struct{ s *Store }

// ---- seeding & inspeksi untuk test ----

func (s *Store) AddProduct(id string, priceCents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &productRec{priceCents: priceCents}
}

func (s *Store) SetStock(productID, variantID, branchID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		s.products[productID] = &productRec{}
	}
	s.ledger[lineKey{variantID, branchID}] = &entry{productID: productID, quantity: qty}
	s.reaggregate(productID)
}

func (s *Store) Quantity(variantID, branchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.ledger[lineKey{variantID, branchID}]; ok {
		return e.quantity
	}
	return -1
}

func (s *Store) TotalSold(variantID, branchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.ledger[lineKey{variantID, branchID}]; ok {
		return e.totalSold
	}
	return -1
}

// TotalStock: nilai rollup yang dipelihara aggregator (bukan recompute).
func (s *Store) TotalStock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		return p.totalStock
	}
	return -1
}

// LedgerSum: recompute murni dari ledger, pembanding untuk TotalStock.
func (s *Store) LedgerSum(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, e := range s.ledger {
		if e.productID == productID {
			sum += e.quantity
		}
	}
	return sum
}

func (s *Store) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

func (s *Store) reaggregate(productID string) {
	p, ok := s.products[productID]
	if !ok {
		return
	}
	sum := 0
	for _, e := range s.ledger {
		if e.productID == productID {
			sum += e.quantity
		}
	}
	p.totalStock = sum
}

// ---- cart.Store ----

func (v cartView) Reserve(_ context.Context, cartID string, items []stock.Line, now time.Time) (string, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.carts[cartID]
	if cartID == "" || !exists {
		c, exists = nil, false
	}

	// hitung dulu di atas snapshot virtual: holding lama dianggap kembali,
	// baru line baru dicek. Tidak ada mutasi sebelum semua line lolos.
	virtual := map[lineKey]int{}
	avail := func(k lineKey) (int, bool) {
		if v, ok := virtual[k]; ok {
			return v, true
		}
		e, ok := s.ledger[k]
		if !ok {
			return 0, false
		}
		return e.quantity, true
	}
	if exists {
		for _, l := range c.items {
			k := lineKey{l.VariantID, l.BranchID}
			if q, ok := avail(k); ok {
				virtual[k] = q + l.Qty
			}
		}
	}

	var shortages []stock.Shortage
	for _, l := range items {
		k := lineKey{l.VariantID, l.BranchID}
		q, ok := avail(k)
		if !ok {
			return "", fmt.Errorf("variant %s at branch %s: %w", l.VariantID, l.BranchID, cart.ErrNotFound)
		}
		if q < l.Qty {
			shortages = append(shortages, stock.Shortage{
				ProductID: l.ProductID, VariantID: l.VariantID, BranchID: l.BranchID,
				Required: l.Qty, Available: q,
			})
			continue
		}
		virtual[k] = q - l.Qty
	}
	if len(shortages) > 0 {
		// tidak ada efek parsial: holding lama tetap utuh
		return "", &cart.InsufficientStockError{Shortages: shortages}
	}

	touched := map[string]bool{}
	for k, q := range virtual {
		e := s.ledger[k]
		e.quantity = q
		touched[e.productID] = true
	}
	if !exists {
		cartID = uuid.NewString()
		c = &cartRec{createdAt: now}
		s.carts[cartID] = c
	}
	c.items = append([]stock.Line(nil), items...)
	c.updatedAt = now
	for pid := range touched {
		s.reaggregate(pid)
	}
	return cartID, nil
}

func (v cartView) Simulate(_ context.Context, cartID string, items []stock.Line) ([]stock.Availability, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	held := map[lineKey]int{}
	if c, ok := s.carts[cartID]; ok {
		for _, l := range c.items {
			held[lineKey{l.VariantID, l.BranchID}] = l.Qty
		}
	}
	out := make([]stock.Availability, 0, len(items))
	for _, l := range items {
		k := lineKey{l.VariantID, l.BranchID}
		e, ok := s.ledger[k]
		if !ok {
			out = append(out, stock.Availability{Line: l})
			continue
		}
		a := e.quantity + held[k]
		out = append(out, stock.Availability{Line: l, Available: a, StockAvailable: a >= l.Qty})
	}
	return out, nil
}

func (v cartView) Get(_ context.Context, cartID string) (*cart.Cart, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return &cart.Cart{
		ID:        cartID,
		Items:     append([]stock.Line(nil), c.items...),
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}, nil
}

func (v cartView) Release(_ context.Context, cartID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cartID]; !ok {
		return cart.ErrNotFound
	}
	s.releaseLocked(cartID)
	return nil
}

func (v cartView) SweepExpired(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-ttl)
	swept := 0
	for id, c := range s.carts {
		if c.updatedAt.Before(cutoff) {
			s.releaseLocked(id)
			swept++
		}
	}
	return swept, nil
}

func (s *Store) releaseLocked(cartID string) {
	c := s.carts[cartID]
	touched := map[string]bool{}
	for _, l := range c.items {
		if e, ok := s.ledger[lineKey{l.VariantID, l.BranchID}]; ok {
			e.quantity += l.Qty
			touched[e.productID] = true
		}
	}
	delete(s.carts, cartID)
	for pid := range touched {
		s.reaggregate(pid)
	}
}

// ---- orders.Store ----

func (v orderView) CreateFromCart(_ context.Context, cartID string, in orders.NewOrder, now time.Time) (*orders.Order, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return nil, orders.ErrCartNotFound
	}
	if len(c.items) == 0 {
		return nil, orders.ErrEmptyCart
	}

	o := &orders.Order{
		ID:            uuid.NewString(),
		OrderNo:       s.nextNo,
		UserID:        in.UserID,
		Buyer:         in.Buyer,
		OrderStatus:   orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		PaymentMethod: in.PaymentMethod,
		Logistics:     in.Logistics,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range c.items {
		p, ok := s.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, orders.ErrNotFound)
		}
		o.Lines = append(o.Lines, orders.Line{Line: it, PriceCents: p.priceCents})
		o.TotalCents += p.priceCents * it.Qty
	}

	// cart dikonsumsi tanpa restore; nomor order monotonic
	s.nextNo++
	delete(s.carts, cartID)
	s.orders[o.OrderNo] = o
	cp := *o
	return &cp, nil
}

func (v orderView) Get(_ context.Context, orderNo int64) (*orders.Order, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderNo]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (v orderView) List(_ context.Context) ([]orders.Order, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.orders))
	for no := int64(1); no < s.nextNo; no++ {
		if o, ok := s.orders[no]; ok {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (v orderView) UpdateStatus(_ context.Context, orderNo int64, to orders.Status, now time.Time) (*orders.Order, bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderNo]
	if !ok {
		return nil, false, orders.ErrNotFound
	}
	from := o.OrderStatus

	if from == orders.StatusCanceled && to == orders.StatusCanceled {
		cp := *o
		return &cp, false, nil
	}
	if !orders.CanTransition(from, to) {
		return nil, false, &orders.BadTransitionError{From: from, To: to}
	}

	recorded := from == orders.StatusConfirmed || from == orders.StatusShipped || from == orders.StatusDelivered
	switch to {
	case orders.StatusConfirmed:
		for _, l := range o.Lines {
			if e, ok := s.ledger[lineKey{l.VariantID, l.BranchID}]; ok {
				e.totalSold += l.Qty
			}
		}
	case orders.StatusCanceled:
		touched := map[string]bool{}
		for _, l := range o.Lines {
			e, ok := s.ledger[lineKey{l.VariantID, l.BranchID}]
			if !ok {
				continue
			}
			e.quantity += l.Qty
			touched[e.productID] = true
			if recorded {
				e.totalSold -= l.Qty
			}
		}
		for pid := range touched {
			s.reaggregate(pid)
		}
	}

	o.OrderStatus = to
	o.UpdatedAt = now
	cp := *o
	return &cp, true, nil
}

func (v orderView) SetPaymentStatus(_ context.Context, orderNo int64, ps orders.PaymentStatus, ref string, now time.Time) (*orders.Order, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderNo]
	if !ok {
		return nil, orders.ErrNotFound
	}
	o.PaymentStatus = ps
	o.PaymentRef = ref
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}
