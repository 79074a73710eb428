package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	kafkax "github.com/ariefcatur/go-branch-stock.git/internal/kafka"
	"github.com/ariefcatur/go-branch-stock.git/internal/metrics"
	"github.com/ariefcatur/go-branch-stock.git/internal/payment"
	"github.com/ariefcatur/go-branch-stock.git/internal/redisx"
)

// Publisher dipenuhi *kafkax.Producer; interface kecil supaya test bisa
// menangkap event tanpa broker.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store          Store
	Carts          *cart.Service // sweep lazy sebelum checkout
	Producer       Publisher     // commerce.order.created
	StatusProducer Publisher     // commerce.order.status
	Redis          *redis.Client
	Gateway        payment.Gateway
	ServiceName    string
	Log            *logrus.Logger
}

// Checkout mengubah cart hidup jadi order. Cart dihapus tanpa restore:
// hold stoknya sudah terjadi saat reserve dan sekarang milik order.
func (s *Service) Checkout(ctx context.Context, cartID string, in NewOrder, traceID string) (*Order, error) {
	if cartID == "" {
		return nil, fmt.Errorf("%w: missing cart_id", ErrValidation)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if s.Carts != nil {
		// cart yang sudah lewat 10 menit disapu dulu; checkout-nya jadi 404
		s.Carts.Sweep(ctx)
	}

	o, err := s.Store.CreateFromCart(ctx, cartID, in, time.Now().UTC())
	if errors.Is(err, ErrCartNotFound) {
		// retry klien setelah sukses: cart-nya sudah dikonsumsi, tapi ada
		// jejak idempotency -> kembalikan order yang sama, bukan 404
		if prev, ok := s.checkoutByIdem(ctx, cartID); ok {
			return prev, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.rememberCheckout(ctx, cartID, o.OrderNo)
	metrics.OrdersTotal.WithLabelValues(string(StatusPending)).Inc()
	s.cacheStatus(ctx, o)
	s.publish(s.Producer, EventOrderCreated, o.OrderNo, traceID, OrderCreatedPayload{
		OrderNo: o.OrderNo, UserID: o.UserID, Buyer: o.Buyer, Lines: o.Lines, TotalCents: o.TotalCents,
	})
	s.Log.WithFields(logrus.Fields{"order_no": o.OrderNo, "total_cents": o.TotalCents}).Info("order created")
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderNo int64) (*Order, error) {
	return s.Store.Get(ctx, orderNo)
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.Store.List(ctx)
}

func (s *Service) UpdateStatus(ctx context.Context, orderNo int64, to Status, traceID string) (*Order, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	o, changed, err := s.Store.UpdateStatus(ctx, orderNo, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}
	metrics.OrdersTotal.WithLabelValues(string(to)).Inc()
	s.cacheStatus(ctx, o)
	s.publish(s.StatusProducer, EventOrderStatusChanged, o.OrderNo, traceID, OrderStatusChangedPayload{
		OrderNo: o.OrderNo, To: to,
	})
	return o, nil
}

// Pay menagih gateway lalu menulis payment_status. Kegagalan gateway tidak
// menyentuh inventory/order core selain payment_status itu sendiri.
func (s *Service) Pay(ctx context.Context, orderNo int64, traceID string) (*Order, error) {
	o, err := s.Store.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		return o, nil // sudah dibayar, idempotent
	}
	if o.OrderStatus == StatusCanceled {
		return nil, fmt.Errorf("%w: order canceled", ErrValidation)
	}

	conf, err := s.Gateway.Charge(ctx, payment.Charge{
		OrderNo:     o.OrderNo,
		AmountCents: o.TotalCents,
		Method:      o.PaymentMethod,
		PayerName:   o.Buyer.Name,
		PayerPhone:  o.Buyer.Phone,
	})
	now := time.Now().UTC()
	if err != nil || conf.Status != "approved" {
		if err != nil {
			s.Log.WithError(err).WithField("order_no", orderNo).Warn("payment gateway failure")
		}
		if _, serr := s.Store.SetPaymentStatus(ctx, orderNo, PaymentFailed, "", now); serr != nil {
			s.Log.WithError(serr).WithField("order_no", orderNo).Error("record failed payment")
		}
		return nil, ErrPaymentDeclined
	}

	o, err = s.Store.SetPaymentStatus(ctx, orderNo, PaymentPaid, conf.Ref, now)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, o)
	s.publish(s.StatusProducer, EventPaymentConfirmed, o.OrderNo, traceID, PaymentConfirmedPayload{
		OrderNo: o.OrderNo, PaymentRef: conf.Ref, AmountCents: o.TotalCents,
	})
	return o, nil
}

func (s *Service) rememberCheckout(ctx context.Context, cartID string, orderNo int64) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, cartID)
	if err := s.Redis.Set(ctx, key, orderNo, redisx.TTLIdempotency).Err(); err != nil {
		s.Log.WithError(err).Warn("checkout idempotency write")
	}
}

func (s *Service) checkoutByIdem(ctx context.Context, cartID string) (*Order, bool) {
	if s.Redis == nil {
		return nil, false
	}
	no, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, cartID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.Log.WithError(err).Warn("checkout idempotency read")
		}
		return nil, false
	}
	o, err := s.Store.Get(ctx, no)
	if err != nil {
		return nil, false
	}
	return o, true
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.OrderNo)
	val := fmt.Sprintf(`{"order_status":%q,"payment_status":%q}`, o.OrderStatus, o.PaymentStatus)
	if err := s.Redis.Set(ctx, key, val, redisx.TTLStatusCache).Err(); err != nil {
		s.Log.WithError(err).Warn("order status cache")
	}
}

func (s *Service) publish(p Publisher, eventType string, orderNo int64, traceID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID,
		CorrelationID: string(PartitionKey(orderNo)),
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderNo), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// CachedStatus: fast path GET status dari redis; miss -> (nil, false).
func (s *Service) CachedStatus(ctx context.Context, orderNo int64) (string, bool) {
	if s.Redis == nil {
		return "", false
	}
	v, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderNo)).Result()
	if err != nil || v == "" {
		if err != nil && !errors.Is(err, redis.Nil) {
			s.Log.WithError(err).Warn("order status cache read")
		}
		return "", false
	}
	return v, true
}
