package notify

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"wbpulse/internal/types"
)

// Generator maps raw change events to user-facing notifications: title,
// body, delivery priority and a grouping hint for webhook consumers.
type Generator struct {
	clock types.Clock
}

// NewGenerator creates a Generator with the real clock.
func NewGenerator() *Generator {
	return &Generator{clock: types.RealClock{}}
}

// SetClock overrides the clock for testing.
func (g *Generator) SetClock(c types.Clock) {
	g.clock = c
}

// Generate builds a Notification from a change event. The notification ID is
// assigned here and stays stable across delivery retries, so consumers can
// dedupe re-deliveries on it.
func (g *Generator) Generate(ev types.ChangeEvent) (types.Notification, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return types.Notification{}, fmt.Errorf("generator: marshal payload: %w", err)
	}

	title, body := renderMessage(ev)

	return types.Notification{
		ID:         "notif_" + uuid.New().String(),
		CabinetID:  ev.CabinetID,
		EventType:  ev.Type,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Transition: ev.Transition,
		Priority:   types.PriorityFor(ev.Type),
		Title:      title,
		Body:       body,
		GroupKey:   groupKey(ev),
		Payload:    payload,
		Status:     types.DeliveryPending,
		CreatedAt:  g.clock.Now(),
	}, nil
}

// groupKey collapses related notifications: all events for one order share a
// key, as do all stock alerts for one product.
func groupKey(ev types.ChangeEvent) string {
	return fmt.Sprintf("%s_%s", ev.EntityType, ev.EntityID)
}

func renderMessage(ev types.ChangeEvent) (title, body string) {
	article, _ := ev.Payload["article"].(string)

	switch ev.Type {
	case types.EventNewOrder:
		title = "New order"
		body = fmt.Sprintf("Order %s placed for %s (%s)",
			ev.EntityID, article, payloadMoney(ev.Payload, "total_price"))

	case types.EventOrderBuyout:
		title = "Order bought out"
		body = fmt.Sprintf("Order %s was bought out for %s",
			ev.EntityID, payloadMoney(ev.Payload, "total_price"))

	case types.EventOrderCancellation:
		title = "Order cancelled"
		body = fmt.Sprintf("Order %s for %s was cancelled", ev.EntityID, article)

	case types.EventOrderReturn:
		title = "Order returned"
		body = fmt.Sprintf("Order %s for %s is being returned", ev.EntityID, article)

	case types.EventOrderStatusChange:
		title = "Order status changed"
		body = fmt.Sprintf("Order %s moved %s", ev.EntityID, ev.Transition)

	case types.EventSaleBuyout:
		title = "Sale"
		body = fmt.Sprintf("Sale %s: %s, payout %s",
			ev.EntityID, article, payloadMoney(ev.Payload, "for_pay"))

	case types.EventSaleReturn:
		title = "Return"
		body = fmt.Sprintf("Return %s: %s (%s)",
			ev.EntityID, article, payloadMoney(ev.Payload, "total_price"))

	case types.EventNegativeReview:
		name, _ := ev.Payload["product_name"].(string)
		title = fmt.Sprintf("Negative review (%d/5)", payloadInt(ev.Payload, "rating"))
		text, _ := ev.Payload["text"].(string)
		body = fmt.Sprintf("%s: %s", name, truncate(text, 200))

	case types.EventCriticalStock:
		title = "Critical stock"
		body = fmt.Sprintf("Product %s is running out: sizes below threshold", article)

	default:
		title = string(ev.Type)
		body = fmt.Sprintf("%s %s: %s", ev.EntityType, ev.EntityID, ev.Transition)
	}
	return title, body
}

// payloadMoney formats a numeric payload field as rubles. Detector payloads
// carry float64; payloads decoded from JSON do too.
func payloadMoney(payload map[string]any, key string) string {
	v, ok := payload[key].(float64)
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f RUB", v)
}

// payloadInt reads an int field that may arrive as int (detector) or
// float64 (JSON round-trip).
func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
