// Package notify mengubah event OrderCreated jadi pesan konfirmasi ke buyer.
// Fire-and-forget: gagal kirim tidak pernah menggagalkan order-nya.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/orders"
	"github.com/ariefcatur/go-branch-stock.git/internal/redisx"
)

// Mailer adalah kolaborator eksternal dengan interface sempit.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer: default tanpa SMTP, cukup dilog.
type LogMailer struct{ Log *logrus.Logger }

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info(body)
	return nil
}

type Service struct {
	Redis       *redis.Client
	Mailer      Mailer
	ServiceName string
	Log         *logrus.Logger
}

// HandleOrderCreated: dipasang sebagai handler consumer.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	} // ignore

	// dedup via Redis (pakai event_id); tanpa redis, andalkan commit offset
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	var p orders.OrderCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}

	subject := fmt.Sprintf("Pesanan #%d diterima", p.OrderNo)
	body := fmt.Sprintf("Halo %s, pesanan #%d (%d item, total %d) sedang kami proses.",
		p.Buyer.Name, p.OrderNo, len(p.Lines), p.TotalCents)
	if err := s.Mailer.Send(ctx, p.Buyer.Phone, subject, body); err != nil {
		// jangan requeue: notifikasi bukan bagian dari kebenaran inventory
		s.Log.WithError(err).WithField("order_no", p.OrderNo).Warn("notification failed")
	}
	return nil
}
