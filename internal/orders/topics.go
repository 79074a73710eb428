package orders

import "strconv"

const (
	TopicOrderCreated = "commerce.order.created"
	TopicOrderStatus  = "commerce.order.status"
)

// Partition key = order_no, supaya semua event 1 order maintain urutan.
func PartitionKey(orderNo int64) []byte {
	return []byte(strconv.FormatInt(orderNo, 10))
}
