package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSource struct {
	pending   []types.Notification
	gotCutoff time.Time
	deleted   [][]string
	listCalls int
}

func (f *fakeSource) ListArchivable(_ context.Context, before time.Time, limit int) ([]types.Notification, error) {
	f.gotCutoff = before
	f.listCalls++
	if len(f.pending) <= limit {
		out := f.pending
		f.pending = nil
		return out, nil
	}
	out := f.pending[:limit]
	f.pending = f.pending[limit:]
	return out, nil
}

func (f *fakeSource) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	f.deleted = append(f.deleted, ids)
	return int64(len(ids)), nil
}

func archivedNotification(id string) types.Notification {
	return types.Notification{
		ID:        id,
		CabinetID: "cab_1",
		EventType: types.EventNewOrder,
		Priority:  types.PriorityMedium,
		Title:     "New order",
		Status:    types.DeliverySent,
		CreatedAt: time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newTestArchiver(t *testing.T, source *fakeSource, batchSize int) (*Archiver, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a := NewArchiver(config.ArchiveConfig{
		Dir:       t.TempDir(),
		Retention: 2160 * time.Hour,
		BatchSize: batchSize,
	}, source, nil)
	a.SetClock(clock)
	return a, clock
}

func TestRun_ArchivesAndDeletes(t *testing.T) {
	source := &fakeSource{pending: []types.Notification{
		archivedNotification("notif_1"),
		archivedNotification("notif_2"),
	}}
	a, clock := newTestArchiver(t, source, 100)

	total, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	assert.Equal(t, clock.now.Add(-2160*time.Hour), source.gotCutoff)
	require.Len(t, source.deleted, 1)
	assert.Equal(t, []string{"notif_1", "notif_2"}, source.deleted[0])

	files, err := os.ReadDir(a.cfg.Dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), ".ndjson.zst")
}

func TestRun_RoundTripThroughFile(t *testing.T) {
	want := archivedNotification("notif_1")
	want.Body = "Order srid-1 placed for 1500.00 RUB"
	source := &fakeSource{pending: []types.Notification{want}}
	a, _ := newTestArchiver(t, source, 100)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	files, err := os.ReadDir(a.cfg.Dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	got, err := Read(a.cfg.Dir + "/" + files[0].Name())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].ID)
	assert.Equal(t, want.Body, got[0].Body)
	assert.True(t, want.CreatedAt.Equal(got[0].CreatedAt))
}

func TestRun_DrainsMultipleBatches(t *testing.T) {
	source := &fakeSource{pending: []types.Notification{
		archivedNotification("notif_1"),
		archivedNotification("notif_2"),
		archivedNotification("notif_3"),
	}}
	a, _ := newTestArchiver(t, source, 2)

	total, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, source.deleted, 2)
	assert.Len(t, source.deleted[0], 2)
	assert.Len(t, source.deleted[1], 1)
}

func TestRun_NothingEligible(t *testing.T) {
	source := &fakeSource{}
	a, _ := newTestArchiver(t, source, 100)

	total, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 1, source.listCalls)

	files, err := os.ReadDir(a.cfg.Dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &fakeSource{pending: []types.Notification{archivedNotification("notif_1")}}
	a, _ := newTestArchiver(t, source, 100)

	total, err := a.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, total)
}
