package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/config"
	kafkax "github.com/ariefcatur/go-branch-stock.git/internal/kafka"
	"github.com/ariefcatur/go-branch-stock.git/internal/notify"
	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
	"github.com/ariefcatur/go-branch-stock.git/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (dedup event)
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis:       rdb,
		Mailer:      &notify.LogMailer{Log: log},
		ServiceName: cfg.ServiceName + "-notifier",
		Log:         log,
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCreated, workers, log)

	go func() {
		log.WithFields(logrus.Fields{
			"group": group, "topic": orders.TopicOrderCreated, "workers": workers,
		}).Info("notifier consumer started")
		if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
			log.WithError(err).Warn("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
