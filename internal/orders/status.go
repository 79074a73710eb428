package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusShipped: true, StatusCanceled: true},
	StatusShipped:   {StatusDelivered: true, StatusCanceled: true},
	StatusDelivered: {},
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

// saleRecorded: status yang sudah pernah melewati transisi confirmed, jadi
// total_sold-nya sudah naik dan harus diturunkan lagi saat cancel.
func saleRecorded(s Status) bool {
	return s == StatusConfirmed || s == StatusShipped || s == StatusDelivered
}
