package notify

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/types"
)

func TestGenerate_NewOrder(t *testing.T) {
	gen := NewGenerator()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	gen.SetClock(clock)

	n, err := gen.Generate(types.ChangeEvent{
		Type:       types.EventNewOrder,
		CabinetID:  "cab_1",
		EntityType: types.EntityOrder,
		EntityID:   "srid-1",
		Transition: "new",
		Payload: map[string]any{
			"article":     "ART-1",
			"total_price": 1500.0,
		},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(n.ID, "notif_"))
	assert.Equal(t, "cab_1", n.CabinetID)
	assert.Equal(t, types.PriorityMedium, n.Priority)
	assert.Equal(t, "New order", n.Title)
	assert.Contains(t, n.Body, "srid-1")
	assert.Contains(t, n.Body, "1500.00 RUB")
	assert.Equal(t, "order_srid-1", n.GroupKey)
	assert.Equal(t, types.DeliveryPending, n.Status)
	assert.Equal(t, clock.now, n.CreatedAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, "ART-1", payload["article"])
}

func TestGenerate_PriorityMapping(t *testing.T) {
	tests := []struct {
		event types.EventType
		want  types.Priority
	}{
		{types.EventCriticalStock, types.PriorityCritical},
		{types.EventNegativeReview, types.PriorityHigh},
		{types.EventOrderCancellation, types.PriorityHigh},
		{types.EventOrderReturn, types.PriorityHigh},
		{types.EventSaleReturn, types.PriorityHigh},
		{types.EventNewOrder, types.PriorityMedium},
		{types.EventOrderBuyout, types.PriorityMedium},
		{types.EventSaleBuyout, types.PriorityMedium},
		{types.EventOrderStatusChange, types.PriorityLow},
	}

	gen := NewGenerator()
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			n, err := gen.Generate(types.ChangeEvent{
				Type:       tt.event,
				EntityType: types.EntityOrder,
				EntityID:   "x",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Priority)
		})
	}
}

func TestGenerate_NegativeReviewMessage(t *testing.T) {
	gen := NewGenerator()

	n, err := gen.Generate(types.ChangeEvent{
		Type:       types.EventNegativeReview,
		EntityType: types.EntityReview,
		EntityID:   "rev-1",
		Transition: "rating_1",
		Payload: map[string]any{
			"rating":       1,
			"product_name": "Shirt",
			"text":         "Terrible quality",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, n.Body, "Shirt")
	assert.Contains(t, n.Body, "1")
}

func TestGenerate_UniqueIDs(t *testing.T) {
	gen := NewGenerator()
	ev := types.ChangeEvent{Type: types.EventNewOrder, EntityType: types.EntityOrder, EntityID: "x"}

	a, err := gen.Generate(ev)
	require.NoError(t, err)
	b, err := gen.Generate(ev)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
