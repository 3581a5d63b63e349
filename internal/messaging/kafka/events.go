package kafka

import "time"

// EventType определяет тип события заказа.
type EventType string

const (
	// EventTypeOrderCreated публикуется после успешного оформления.
	EventTypeOrderCreated EventType = "order.created"
	// EventTypeOrderStatusChanged публикуется на каждом переходе статуса.
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	// EventTypeOrderCanceled публикуется при отмене заказа.
	EventTypeOrderCanceled EventType = "order.canceled"
	// EventTypePaymentStatusChanged публикуется при смене платёжного статуса.
	EventTypePaymentStatusChanged EventType = "order.payment_status_changed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "fulfillment.order.events"
	TopicDeadLetterQueue = "fulfillment.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа для внешних потребителей.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа с текущим временем.
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
