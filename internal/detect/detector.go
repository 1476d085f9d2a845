// Package detect implements snapshot diffing for the notification pipeline.
//
// The detector functions are pure: they compare the previous and current
// snapshot of one cabinet's data (orders, sales, reviews, stocks) and emit
// typed ChangeEvents for semantically meaningful transitions. Persistence of
// snapshots and dedup of emitted events is the caller's concern.
package detect

import (
	"fmt"
	"time"

	"wbpulse/internal/types"
)

// TransitionNew is the transition string used for entities that appear for
// the first time in the current snapshot.
const TransitionNew = "new"

// DetectNewOrders emits one event per order present in curr but absent from
// prev, keyed by SRID.
func DetectNewOrders(prev, curr []types.Order) []types.ChangeEvent {
	seen := make(map[string]struct{}, len(prev))
	for _, o := range prev {
		seen[o.SRID] = struct{}{}
	}

	var events []types.ChangeEvent
	for _, o := range curr {
		if _, ok := seen[o.SRID]; ok {
			continue
		}
		events = append(events, types.ChangeEvent{
			Type:       types.EventNewOrder,
			CabinetID:  o.CabinetID,
			EntityType: types.EntityOrder,
			EntityID:   o.SRID,
			Transition: TransitionNew,
			OccurredAt: o.OrderedAt,
			Payload:    orderPayload(o),
		})
	}
	return events
}

// DetectStatusChanges emits exactly one event per order whose status differs
// between snapshots. Orders present in only one snapshot are ignored; those
// are DetectNewOrders territory. Identical snapshots produce no events.
func DetectStatusChanges(prev, curr []types.Order) []types.ChangeEvent {
	prevByID := make(map[string]types.Order, len(prev))
	for _, o := range prev {
		prevByID[o.SRID] = o
	}

	var events []types.ChangeEvent
	for _, o := range curr {
		before, ok := prevByID[o.SRID]
		if !ok || before.Status == o.Status {
			continue
		}
		events = append(events, types.ChangeEvent{
			Type:       ClassifyOrderTransition(before.Status, o.Status),
			CabinetID:  o.CabinetID,
			EntityType: types.EntityOrder,
			EntityID:   o.SRID,
			Transition: Transition(before.Status, o.Status),
			OccurredAt: o.LastChangeDate,
			Payload:    orderPayload(o),
		})
	}
	return events
}

// Transition renders a from->to status pair as the canonical transition
// string stored in the dedupe key.
func Transition(from, to types.OrderStatus) string {
	return fmt.Sprintf("%s->%s", from, to)
}

// ClassifyOrderTransition maps a status pair to the event type users see.
// Buyouts, cancellations and returns get their own types; everything else is
// a generic status change.
func ClassifyOrderTransition(from, to types.OrderStatus) types.EventType {
	switch to {
	case types.OrderBuyout:
		return types.EventOrderBuyout
	case types.OrderCancelled:
		return types.EventOrderCancellation
	case types.OrderReturned:
		return types.EventOrderReturn
	default:
		return types.EventOrderStatusChange
	}
}

// DetectNewSales emits one event per sale record new in curr, keyed by
// SaleID. "S"-prefixed records are buyouts, "R"-prefixed are returns.
func DetectNewSales(prev, curr []types.Sale) []types.ChangeEvent {
	seen := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		seen[s.SaleID] = struct{}{}
	}

	var events []types.ChangeEvent
	for _, s := range curr {
		if _, ok := seen[s.SaleID]; ok {
			continue
		}
		et := types.EventSaleBuyout
		if s.IsReturn() {
			et = types.EventSaleReturn
		}
		events = append(events, types.ChangeEvent{
			Type:       et,
			CabinetID:  s.CabinetID,
			EntityType: types.EntitySale,
			EntityID:   s.SaleID,
			Transition: TransitionNew,
			OccurredAt: s.SoldAt,
			Payload: map[string]any{
				"srid":        s.SRID,
				"nm_id":       s.NmID,
				"article":     s.Article,
				"brand":       s.Brand,
				"total_price": s.TotalPrice,
				"for_pay":     s.ForPay,
			},
		})
	}
	return events
}

// DetectNegativeReviews emits one event per review with rating <= maxRating
// that is new in curr, keyed by ReviewID.
func DetectNegativeReviews(prev, curr []types.Review, maxRating int) []types.ChangeEvent {
	seen := make(map[string]struct{}, len(prev))
	for _, r := range prev {
		seen[r.ReviewID] = struct{}{}
	}

	var events []types.ChangeEvent
	for _, r := range curr {
		if _, ok := seen[r.ReviewID]; ok {
			continue
		}
		if r.Rating > maxRating {
			continue
		}
		events = append(events, types.ChangeEvent{
			Type:       types.EventNegativeReview,
			CabinetID:  r.CabinetID,
			EntityType: types.EntityReview,
			EntityID:   r.ReviewID,
			Transition: fmt.Sprintf("rating_%d", r.Rating),
			OccurredAt: r.CreatedDate,
			Payload: map[string]any{
				"nm_id":        r.NmID,
				"product_name": r.ProductName,
				"rating":       r.Rating,
				"text":         r.Text,
				"user_name":    r.UserName,
			},
		})
	}
	return events
}

// DetectCriticalStocks emits one event per product (nm_id) where any size
// quantity is strictly below threshold in curr and the product was not
// already critical in prev. A product absent from prev that arrives already
// low counts as newly critical.
func DetectCriticalStocks(prev, curr []types.Stock, threshold int) []types.ChangeEvent {
	prevCritical := make(map[int64]bool, len(prev))
	for _, s := range prev {
		prevCritical[s.NmID] = anySizeBelow(s, threshold)
	}

	var events []types.ChangeEvent
	for _, s := range curr {
		if !anySizeBelow(s, threshold) {
			continue
		}
		if prevCritical[s.NmID] {
			continue
		}
		events = append(events, types.ChangeEvent{
			Type:       types.EventCriticalStock,
			CabinetID:  s.CabinetID,
			EntityType: types.EntityStock,
			EntityID:   fmt.Sprintf("%d", s.NmID),
			Transition: fmt.Sprintf("below_%d", threshold),
			OccurredAt: stockTime(s),
			Payload: map[string]any{
				"nm_id":     s.NmID,
				"article":   s.Article,
				"subject":   s.Subject,
				"sizes":     criticalSizes(s, threshold),
				"threshold": threshold,
			},
		})
	}
	return events
}

func anySizeBelow(s types.Stock, threshold int) bool {
	for _, sz := range s.Sizes {
		if sz.Quantity < threshold {
			return true
		}
	}
	return false
}

// criticalSizes returns only the sizes under threshold for the payload, so
// webhook consumers see which sizes actually need restocking.
func criticalSizes(s types.Stock, threshold int) []types.StockSize {
	var out []types.StockSize
	for _, sz := range s.Sizes {
		if sz.Quantity < threshold {
			out = append(out, sz)
		}
	}
	return out
}

func stockTime(s types.Stock) time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return time.Now().UTC()
}

func orderPayload(o types.Order) map[string]any {
	return map[string]any{
		"nm_id":       o.NmID,
		"article":     o.Article,
		"subject":     o.Subject,
		"brand":       o.Brand,
		"status":      string(o.Status),
		"total_price": o.TotalPrice,
		"warehouse":   o.Warehouse,
		"region":      o.Region,
	}
}
