// Package orders adalah order finalizer: catatan permanen hasil checkout,
// plus jalur balik (cancel) yang mengembalikan stok ke ledger.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

const (
	LogisticsDelivery = "delivery"
	LogisticsPickup   = "pickup"
)

type Order struct {
	ID            string        `json:"-"`
	OrderNo       int64         `json:"order_no"`
	UserID        string        `json:"user_id"`
	Buyer         Buyer         `json:"buyer"`
	Lines         []Line        `json:"lines"`
	TotalCents    int           `json:"total_cents"`
	OrderStatus   Status        `json:"order_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	Logistics     Logistics     `json:"logistics"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Line adalah kopi beku dari cart item saat checkout; tidak ikut berubah
// kalau harga atau branch-nya berubah belakangan.
type Line struct {
	stock.Line
	PriceCents int `json:"price_cents"`
}

type Buyer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Logistics struct {
	Method          string `json:"method"` // delivery | pickup
	DeliveryAddress string `json:"delivery_address,omitempty"`
	PickupBranchID  string `json:"pickup_branch_id,omitempty"`
}

type NewOrder struct {
	UserID        string    `json:"user_id"`
	Buyer         Buyer     `json:"buyer"`
	Logistics     Logistics `json:"logistics"`
	PaymentMethod string    `json:"payment_method"`
}

var (
	ErrNotFound        = errors.New("order not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrValidation      = errors.New("validation")
	ErrPaymentDeclined = errors.New("payment declined")
)

type BadTransitionError struct {
	From, To Status
}

func (e *BadTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

func (in NewOrder) validate() error {
	if in.PaymentMethod == "" {
		return fmt.Errorf("%w: missing payment_method", ErrValidation)
	}
	switch in.Logistics.Method {
	case LogisticsDelivery:
		if in.Logistics.DeliveryAddress == "" {
			return fmt.Errorf("%w: delivery needs an address", ErrValidation)
		}
	case LogisticsPickup:
		if in.Logistics.PickupBranchID == "" {
			return fmt.Errorf("%w: pickup needs a branch", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: logistics method must be delivery or pickup", ErrValidation)
	}
	return nil
}
