package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentConfirmed   = "PaymentConfirmed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "commerce-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_no
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type OrderCreatedPayload struct {
	OrderNo    int64  `json:"order_no"`
	UserID     string `json:"user_id"`
	Buyer      Buyer  `json:"buyer"`
	Lines      []Line `json:"lines"`
	TotalCents int    `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderNo int64  `json:"order_no"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type PaymentConfirmedPayload struct {
	OrderNo     int64  `json:"order_no"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int    `json:"amount_cents"`
}
