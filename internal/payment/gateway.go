// Package payment membungkus gateway pembayaran eksternal di balik interface
// sempit: core cuma perlu tahu "payment confirmed" atau tidak.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Charge struct {
	OrderNo     int64  `json:"order_no"`
	AmountCents int    `json:"amount_cents"`
	Method      string `json:"method"`
	PayerName   string `json:"payer_name"`
	PayerPhone  string `json:"payer_phone"`
}

type Confirmation struct {
	Ref    string `json:"ref"`
	Status string `json:"status"` // approved | rejected
}

type Gateway interface {
	Charge(ctx context.Context, c Charge) (*Confirmation, error)
}

type HTTPGateway struct {
	c *resty.Client
}

func NewHTTPGateway(baseURL string) *HTTPGateway {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &HTTPGateway{c: c}
}

func (g *HTTPGateway) Charge(ctx context.Context, ch Charge) (*Confirmation, error) {
	var conf Confirmation
	resp, err := g.c.R().
		SetContext(ctx).
		SetBody(ch).
		SetResult(&conf).
		Post("/create-payment")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("payment gateway: %s", resp.Status())
	}
	return &conf, nil
}
