package types

// CabinetStatus represents the lifecycle state of a connected seller cabinet.
type CabinetStatus string

const (
	CabinetActive CabinetStatus = "active"
	CabinetPaused CabinetStatus = "paused"
	CabinetError  CabinetStatus = "error"
)

// OrderStatus is the normalized Wildberries order lifecycle state.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderBuyout    OrderStatus = "buyout"
	OrderCancelled OrderStatus = "cancelled"
	OrderReturned  OrderStatus = "returned"
)

// EntityType identifies the kind of entity a change event refers to.
// It is part of the event dedupe key.
type EntityType string

const (
	EntityOrder  EntityType = "order"
	EntitySale   EntityType = "sale"
	EntityReview EntityType = "review"
	EntityStock  EntityType = "stock"
)

// EventType identifies the kind of notification event.
type EventType string

const (
	EventNewOrder          EventType = "new_order"
	EventOrderStatusChange EventType = "order_status_change"
	EventOrderBuyout       EventType = "order_buyout"
	EventOrderCancellation EventType = "order_cancellation"
	EventOrderReturn       EventType = "order_return"
	EventSaleBuyout        EventType = "sale_buyout"
	EventSaleReturn        EventType = "sale_return"
	EventNegativeReview    EventType = "negative_review"
	EventCriticalStock     EventType = "critical_stock"

	// EventWebhookTest is only produced by the webhook test endpoint and
	// never enters the queue.
	EventWebhookTest EventType = "webhook_test"
)

// Priority orders notification delivery. CRITICAL is drained before HIGH,
// HIGH before MEDIUM, MEDIUM before LOW; within a priority delivery is FIFO.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists all priorities in drain order, highest first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Rank returns the drain rank of the priority (0 = drained first).
// Unknown values rank last so a corrupted item never starves real traffic.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// PriorityFor maps an event type to its delivery priority.
func PriorityFor(et EventType) Priority {
	switch et {
	case EventCriticalStock:
		return PriorityCritical
	case EventNegativeReview, EventOrderCancellation, EventOrderReturn, EventSaleReturn:
		return PriorityHigh
	case EventNewOrder, EventOrderBuyout, EventSaleBuyout:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// DeliveryStatus represents the webhook delivery state of a notification.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)
