package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/memstore"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
	"github.com/ariefcatur/go-branch-stock.git/internal/payment"
	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

const (
	prodA    = "11111111-1111-1111-1111-111111111111"
	variantA = "22222222-2222-2222-2222-222222222222"
	branchX  = "33333333-3333-3333-3333-333333333333"
)

// capturePublisher menangkap event yang dipublish tanpa broker.
type capturePublisher struct {
	mu   sync.Mutex
	envs []orders.Envelope
	keys []string
}

func (p *capturePublisher) Publish(key, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ev orders.Envelope
	if err := json.Unmarshal(value, &ev); err != nil {
		return
	}
	p.envs = append(p.envs, ev)
	p.keys = append(p.keys, string(key))
}

func (p *capturePublisher) last() *orders.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.envs) == 0 {
		return nil
	}
	return &p.envs[len(p.envs)-1]
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envs)
}

type fakeGateway struct {
	conf  *payment.Confirmation
	err   error
	calls int
}

func (g *fakeGateway) Charge(_ context.Context, _ payment.Charge) (*payment.Confirmation, error) {
	g.calls++
	return g.conf, g.err
}

type fixture struct {
	svc     *orders.Service
	carts   *cart.Service
	store   *memstore.Store
	created *capturePublisher
	status  *capturePublisher
	gateway *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cartSvc := &cart.Service{Store: st.CartStore(), TTL: 10 * time.Minute, Log: log}
	f := &fixture{
		store:   st,
		carts:   cartSvc,
		created: &capturePublisher{},
		status:  &capturePublisher{},
		gateway: &fakeGateway{conf: &payment.Confirmation{Ref: "pay-1", Status: "approved"}},
	}
	f.svc = &orders.Service{
		Store:          st.OrderStore(),
		Carts:          cartSvc,
		Producer:       f.created,
		StatusProducer: f.status,
		Gateway:        f.gateway,
		ServiceName:    "commerce-test",
		Log:            log,
	}
	return f
}

func validNewOrder() orders.NewOrder {
	return orders.NewOrder{
		UserID:        "user-1",
		Buyer:         orders.Buyer{Name: "Arief", Phone: "0812"},
		Logistics:     orders.Logistics{Method: orders.LogisticsDelivery, DeliveryAddress: "Jl. Sudirman 1"},
		PaymentMethod: "transfer",
	}
}

func (f *fixture) reserveCart(t *testing.T, qty int) string {
	t.Helper()
	id, err := f.carts.Reserve(context.Background(), "", []stock.Line{
		{ProductID: prodA, VariantID: variantA, BranchID: branchX, Qty: qty},
	})
	require.NoError(t, err)
	return id
}

func TestCheckoutConsumesCartWithoutRestore(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 2500)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	cartID := f.reserveCart(t, 4)
	require.Equal(t, 6, f.store.Quantity(variantA, branchX))

	o, err := f.svc.Checkout(ctx, cartID, validNewOrder(), "trace-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.OrderStatus)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, 4*2500, o.TotalCents)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 2500, o.Lines[0].PriceCents)

	// stok tetap milik order, cart hilang
	assert.Equal(t, 6, f.store.Quantity(variantA, branchX))
	assert.Equal(t, 0, f.store.CartCount())

	// checkout kedua dengan cart yang sama -> 404
	_, err = f.svc.Checkout(ctx, cartID, validNewOrder(), "trace-1")
	assert.ErrorIs(t, err, orders.ErrCartNotFound)

	ev := f.created.last()
	require.NotNil(t, ev)
	assert.Equal(t, orders.EventOrderCreated, ev.EventType)
	assert.Equal(t, "commerce-test", ev.Producer)
	assert.Equal(t, "trace-1", ev.TraceID)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "", validNewOrder(), "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	in := validNewOrder()
	in.PaymentMethod = ""
	_, err = f.svc.Checkout(ctx, "some-cart", in, "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	in = validNewOrder()
	in.Logistics = orders.Logistics{Method: orders.LogisticsPickup}
	_, err = f.svc.Checkout(ctx, "some-cart", in, "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	in = validNewOrder()
	in.Logistics.Method = "teleport"
	_, err = f.svc.Checkout(ctx, "some-cart", in, "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	_, err = f.svc.Checkout(ctx, "no-such-cart", validNewOrder(), "")
	assert.ErrorIs(t, err, orders.ErrCartNotFound)
	assert.Equal(t, 0, f.created.count())
}

func TestCheckoutSweepsExpiredCartFirst(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	cartID := f.reserveCart(t, 4)

	// cart dibiarkan basi: sweep lazy di jalan checkout harus menolaknya
	_, err := f.store.CartStore().SweepExpired(ctx, time.Now().Add(11*time.Minute), 10*time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, cartID, validNewOrder(), "")
	assert.ErrorIs(t, err, orders.ErrCartNotFound)
	assert.Equal(t, 10, f.store.Quantity(variantA, branchX))
}

func TestOrderNoMonotonic(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 100)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		cartID := f.reserveCart(t, 1)
		o, err := f.svc.Checkout(ctx, cartID, validNewOrder(), "")
		require.NoError(t, err)
		assert.Greater(t, o.OrderNo, prev)
		prev = o.OrderNo
	}
}

func TestConfirmRecordsSale(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 3), validNewOrder(), "")
	require.NoError(t, err)

	o2, err := f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusConfirmed, "trace-2")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o2.OrderStatus)
	assert.Equal(t, 3, f.store.TotalSold(variantA, branchX))
	assert.Equal(t, 7, f.store.Quantity(variantA, branchX), "confirm tidak mengubah quantity")

	ev := f.status.last()
	require.NotNil(t, ev)
	assert.Equal(t, orders.EventOrderStatusChanged, ev.EventType)
}

func TestCancelAfterConfirmRestoresAndUnsells(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 3), validNewOrder(), "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusConfirmed, "")
	require.NoError(t, err)

	o2, err := f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusCanceled, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, o2.OrderStatus)
	assert.Equal(t, 10, f.store.Quantity(variantA, branchX))
	assert.Equal(t, 0, f.store.TotalSold(variantA, branchX))
	assert.Equal(t, f.store.LedgerSum(prodA), f.store.TotalStock(prodA))
}

func TestCancelBeforeConfirmOnlyRestores(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 3), validNewOrder(), "")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusCanceled, "")
	require.NoError(t, err)
	assert.Equal(t, 10, f.store.Quantity(variantA, branchX))
	assert.Equal(t, 0, f.store.TotalSold(variantA, branchX), "belum pernah confirmed, totalSold tidak boleh negatif")
}

// Cancel kedua harus no-op: stok tidak boleh balik dua kali.
func TestCancelIdempotent(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 3), validNewOrder(), "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusCanceled, "")
	require.NoError(t, err)
	before := f.status.count()

	o2, err := f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusCanceled, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, o2.OrderStatus)
	assert.Equal(t, 10, f.store.Quantity(variantA, branchX))
	assert.Equal(t, before, f.status.count(), "no-op tidak publish event")
}

func TestBadTransitionRejected(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 1), validNewOrder(), "")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusDelivered, "")
	var bad *orders.BadTransitionError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, orders.StatusPending, bad.From)

	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.Status("paid"), "")
	assert.ErrorIs(t, err, orders.ErrValidation)

	_, err = f.svc.UpdateStatus(ctx, 99999, orders.StatusConfirmed, "")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestPayApproved(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1500)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 2), validNewOrder(), "")
	require.NoError(t, err)

	paid, err := f.svc.Pay(ctx, o.OrderNo, "trace-pay")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, "pay-1", paid.PaymentRef)
	assert.Equal(t, 1, f.gateway.calls)

	ev := f.status.last()
	require.NotNil(t, ev)
	assert.Equal(t, orders.EventPaymentConfirmed, ev.EventType)

	// bayar ulang: idempotent, gateway tidak ditagih lagi
	paid2, err := f.svc.Pay(ctx, o.OrderNo, "trace-pay")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, paid2.PaymentStatus)
	assert.Equal(t, 1, f.gateway.calls)
}

func TestPayDeclined(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1500)
	f.store.SetStock(prodA, variantA, branchX, 10)
	f.gateway.conf = &payment.Confirmation{Status: "rejected"}
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 2), validNewOrder(), "")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, o.OrderNo, "")
	assert.ErrorIs(t, err, orders.ErrPaymentDeclined)

	got, err := f.svc.Get(ctx, o.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentFailed, got.PaymentStatus)
	// pembayaran gagal tidak menyentuh inventory
	assert.Equal(t, 8, f.store.Quantity(variantA, branchX))
}

func TestPayGatewayError(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1500)
	f.store.SetStock(prodA, variantA, branchX, 10)
	f.gateway.conf = nil
	f.gateway.err = errors.New("connection refused")
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 2), validNewOrder(), "")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, o.OrderNo, "")
	assert.ErrorIs(t, err, orders.ErrPaymentDeclined)
}

func TestPayCanceledOrder(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1500)
	f.store.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, f.reserveCart(t, 2), validNewOrder(), "")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.OrderNo, orders.StatusCanceled, "")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, o.OrderNo, "")
	assert.ErrorIs(t, err, orders.ErrValidation)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(prodA, 1000)
	f.store.SetStock(prodA, variantA, branchX, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Checkout(ctx, f.reserveCart(t, 1), validNewOrder(), "")
		require.NoError(t, err)
	}
	out, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}
