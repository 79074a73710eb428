package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/auth"
	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/catalog"
	"github.com/ariefcatur/go-branch-stock.git/internal/config"
	"github.com/ariefcatur/go-branch-stock.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-branch-stock.git/internal/kafka"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
	"github.com/ariefcatur/go-branch-stock.git/internal/payment"
	"github.com/ariefcatur/go-branch-stock.git/internal/postgres"
	"github.com/ariefcatur/go-branch-stock.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("db schema")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	pCreated.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024, log)
	pStatus.Start(ctx)

	// Collaborators eksternal
	verifier := auth.NewHTTPVerifier(cfg.AuthVerifyURL)
	gateway := payment.NewHTTPGateway(cfg.PaymentURL)

	// Services
	cartSvc := &cart.Service{
		Store: &cart.PGStore{DB: db, Log: log},
		TTL:   cfg.CartTTL,
		Log:   log,
	}
	orderSvc := &orders.Service{
		Store:          &orders.PGStore{DB: db, Log: log},
		Carts:          cartSvc,
		Producer:       pCreated,
		StatusProducer: pStatus,
		Redis:          rdb,
		Gateway:        gateway,
		ServiceName:    cfg.ServiceName,
		Log:            log,
	}
	catalogRepo := &catalog.Repo{DB: db, Log: log}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CartHandler{Svc: cartSvc}).Register(router)
	(&httpx.OrdersHandler{Svc: orderSvc, Verifier: verifier}).Register(router)
	(&httpx.CatalogHandler{Repo: catalogRepo, Verifier: verifier}).Register(router)
	(&httpx.BranchHandler{Repo: catalogRepo, Verifier: verifier}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close() // tutup inbox -> flush & close writer
	pStatus.Close()
	pCreated.WaitClosed() // drain
	pStatus.WaitClosed()
	cancel()
}
