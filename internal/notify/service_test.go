package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSettings struct {
	settings types.NotificationSettings
}

func (f *fakeSettings) GetOrCreate(_ context.Context, cabinetID string) (types.NotificationSettings, error) {
	if f.settings.CabinetID == "" {
		return types.DefaultSettings(cabinetID), nil
	}
	return f.settings, nil
}

type fakeLedger struct {
	seen map[string]struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]struct{})}
}

func (f *fakeLedger) RecordIfNew(_ context.Context, ev types.ChangeEvent) (bool, error) {
	key := ev.CabinetID + "|" + string(ev.EntityType) + "|" + ev.EntityID + "|" + ev.Transition
	if _, ok := f.seen[key]; ok {
		return false, nil
	}
	f.seen[key] = struct{}{}
	return true, nil
}

type fakeHistory struct {
	created []types.Notification
}

func (f *fakeHistory) Create(_ context.Context, n *types.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

type fakeQueue struct {
	pushed []types.Notification
}

func (f *fakeQueue) Push(n types.Notification) error {
	f.pushed = append(f.pushed, n)
	return nil
}

func newTestService(settings *fakeSettings) (*Service, *fakeLedger, *fakeHistory, *fakeQueue) {
	ledger := newFakeLedger()
	history := &fakeHistory{}
	q := &fakeQueue{}
	svc := NewService(ServiceConfig{
		Settings: settings,
		Ledger:   ledger,
		History:  history,
		Queue:    q,
	})
	return svc, ledger, history, q
}

func snapshotWithBuyoutAndNewOrder() types.SyncSnapshot {
	return types.SyncSnapshot{
		CabinetID: "cab_1",
		PrevOrders: []types.Order{
			{CabinetID: "cab_1", SRID: "srid-1", Status: types.OrderActive, TotalPrice: 100},
			{CabinetID: "cab_1", SRID: "srid-2", Status: types.OrderActive, TotalPrice: 200},
		},
		CurrOrders: []types.Order{
			{CabinetID: "cab_1", SRID: "srid-1", Status: types.OrderBuyout, TotalPrice: 100},
			{CabinetID: "cab_1", SRID: "srid-2", Status: types.OrderActive, TotalPrice: 200},
			{CabinetID: "cab_1", SRID: "srid-3", Status: types.OrderActive, TotalPrice: 300},
		},
	}
}

func TestProcessSnapshot_BuyoutAndNewOrder(t *testing.T) {
	svc, _, history, q := newTestService(&fakeSettings{})

	stats, err := svc.ProcessSnapshot(context.Background(), snapshotWithBuyoutAndNewOrder())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Detected)
	assert.Equal(t, 2, stats.Enqueued)
	assert.Equal(t, 0, stats.Filtered)
	assert.Equal(t, 0, stats.Duplicates)

	require.Len(t, q.pushed, 2)
	require.Len(t, history.created, 2)

	gotTypes := []types.EventType{q.pushed[0].EventType, q.pushed[1].EventType}
	assert.ElementsMatch(t, []types.EventType{types.EventNewOrder, types.EventOrderBuyout}, gotTypes)
}

func TestProcessSnapshot_RerunEmitsNothing(t *testing.T) {
	svc, _, _, q := newTestService(&fakeSettings{})
	snap := snapshotWithBuyoutAndNewOrder()

	_, err := svc.ProcessSnapshot(context.Background(), snap)
	require.NoError(t, err)

	stats, err := svc.ProcessSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Detected)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 0, stats.Enqueued)
	assert.Len(t, q.pushed, 2)
}

func TestProcessSnapshot_SettingsFilterOrders(t *testing.T) {
	settings := types.DefaultSettings("cab_1")
	settings.OrdersEnabled = false
	svc, _, _, q := newTestService(&fakeSettings{settings: settings})

	stats, err := svc.ProcessSnapshot(context.Background(), snapshotWithBuyoutAndNewOrder())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Detected)
	assert.Equal(t, 2, stats.Filtered)
	assert.Equal(t, 0, stats.Enqueued)
	assert.Empty(t, q.pushed)
}

func TestProcessSnapshot_ThresholdsComeFromSettings(t *testing.T) {
	settings := types.DefaultSettings("cab_1")
	settings.CriticalStockThreshold = 10
	settings.NegativeRatingMax = 2
	svc, _, _, q := newTestService(&fakeSettings{settings: settings})

	snap := types.SyncSnapshot{
		CabinetID: "cab_1",
		CurrStocks: []types.Stock{
			{CabinetID: "cab_1", NmID: 1, Sizes: []types.StockSize{{TechSize: "M", Quantity: 7}}},
		},
		CurrReviews: []types.Review{
			{CabinetID: "cab_1", ReviewID: "rev-1", Rating: 3},
			{CabinetID: "cab_1", ReviewID: "rev-2", Rating: 2},
		},
	}

	stats, err := svc.ProcessSnapshot(context.Background(), snap)
	require.NoError(t, err)

	// Quantity 7 is below the raised threshold of 10; rating 3 is above the
	// lowered cutoff of 2.
	assert.Equal(t, 2, stats.Enqueued)
	require.Len(t, q.pushed, 2)
	gotTypes := []types.EventType{q.pushed[0].EventType, q.pushed[1].EventType}
	assert.ElementsMatch(t, []types.EventType{types.EventCriticalStock, types.EventNegativeReview}, gotTypes)
}

func TestProcessSnapshot_SaleStream(t *testing.T) {
	svc, _, _, q := newTestService(&fakeSettings{})

	snap := types.SyncSnapshot{
		CabinetID: "cab_1",
		PrevSales: []types.Sale{{CabinetID: "cab_1", SaleID: "S001"}},
		CurrSales: []types.Sale{
			{CabinetID: "cab_1", SaleID: "S001"},
			{CabinetID: "cab_1", SaleID: "R002"},
		},
	}

	stats, err := svc.ProcessSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Enqueued)
	require.Len(t, q.pushed, 1)
	assert.Equal(t, types.EventSaleReturn, q.pushed[0].EventType)
	assert.Equal(t, types.PriorityHigh, q.pushed[0].Priority)
}
