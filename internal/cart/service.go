package cart

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/metrics"
	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type Service struct {
	Store Store
	TTL   time.Duration
	Log   *logrus.Logger
}

// Reserve memvalidasi input, menyapu cart kadaluarsa (lazy, tanpa timer
// background), lalu menyerahkan reservasi ke store.
func (s *Service) Reserve(ctx context.Context, cartID string, items []stock.Line) (string, error) {
	if err := validateLines(items); err != nil {
		return "", err
	}
	s.sweep(ctx)

	id, err := s.Store.Reserve(ctx, cartID, items, time.Now().UTC())
	var insufficient *InsufficientStockError
	switch {
	case err == nil:
		metrics.ReservationsTotal.WithLabelValues("ok").Inc()
	case errors.As(err, &insufficient):
		metrics.ReservationsTotal.WithLabelValues("insufficient").Inc()
	default:
		metrics.ReservationsTotal.WithLabelValues("error").Inc()
	}
	return id, err
}

// Simulate bebas efek samping: tidak ada sweep, tidak ada mutasi.
func (s *Service) Simulate(ctx context.Context, cartID string, items []stock.Line) ([]stock.Availability, error) {
	if err := validateLines(items); err != nil {
		return nil, err
	}
	return s.Store.Simulate(ctx, cartID, items)
}

func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.Store.Get(ctx, cartID)
}

func (s *Service) Release(ctx context.Context, cartID string) error {
	s.sweep(ctx)
	return s.Store.Release(ctx, cartID)
}

// Sweep dipanggil jalur lain (mis. sebelum checkout) lewat method ini.
func (s *Service) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.Store.SweepExpired(ctx, time.Now().UTC(), s.TTL)
	if err != nil {
		s.Log.WithError(err).Warn("cart sweep failed")
		return
	}
	if n > 0 {
		metrics.SweptCartsTotal.Add(float64(n))
		s.Log.WithField("count", n).Info("expired carts swept")
	}
}
