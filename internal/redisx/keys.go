package redisx

import "time"

const (
	// Idempotency checkout: idem:order:checkout:{cart_id} -> order_no
	KeyIdemCheckout = "idem:order:checkout:%s"

	// Cache status order: order_status:{order_no} -> {"order_status":"...","payment_status":"..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
