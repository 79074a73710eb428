package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_reservations_total",
		Help: "Reservation attempts by result (ok, insufficient, error).",
	}, []string{"result"})

	SweptCartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_swept_carts_total",
		Help: "Expired carts reclaimed by the lazy sweep.",
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_orders_total",
		Help: "Order status transitions applied.",
	}, []string{"status"})
)

func Handler() http.Handler { return promhttp.Handler() }
