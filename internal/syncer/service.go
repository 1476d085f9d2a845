// Package syncer pulls fresh seller data from Wildberries for every active
// cabinet, diffs it against the stored snapshot through the notification
// pipeline, and persists the new state.
package syncer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"wbpulse/internal/config"
	"wbpulse/internal/detect"
	"wbpulse/internal/metrics"
	"wbpulse/internal/notify"
	"wbpulse/internal/types"
)

// WBAPI is the subset of the WB client the syncer pulls from.
type WBAPI interface {
	Orders(ctx context.Context, cabinetID, apiKey string, since time.Time) ([]types.Order, error)
	Sales(ctx context.Context, cabinetID, apiKey string, since time.Time) ([]types.Sale, error)
	Stocks(ctx context.Context, cabinetID, apiKey string) ([]types.Stock, error)
	Reviews(ctx context.Context, cabinetID, apiKey string) ([]types.Review, error)
}

// CabinetSource lists cabinets to sync and records sync outcomes.
type CabinetSource interface {
	ListActive(ctx context.Context) ([]types.Cabinet, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkSyncError(ctx context.Context, id string, reason string) error
}

// SnapshotStore is the persisted per-cabinet seller data the syncer diffs
// against and writes back after each run.
type SnapshotStore interface {
	ListOrders(ctx context.Context, cabinetID string) ([]types.Order, error)
	UpsertOrders(ctx context.Context, orders []types.Order) error
	ListSales(ctx context.Context, cabinetID string) ([]types.Sale, error)
	UpsertSales(ctx context.Context, sales []types.Sale) error
	ListReviews(ctx context.Context, cabinetID string) ([]types.Review, error)
	UpsertReviews(ctx context.Context, reviews []types.Review) error
	ListStocks(ctx context.Context, cabinetID string) ([]types.Stock, error)
	ReplaceStocks(ctx context.Context, cabinetID string, stocks []types.Stock) error
}

// Pipeline consumes a snapshot pair and emits notifications.
type Pipeline interface {
	ProcessSnapshot(ctx context.Context, snap types.SyncSnapshot) (notify.Stats, error)
}

// Service runs the per-cabinet sync cycle.
type Service struct {
	cfg      config.SyncConfig
	api      WBAPI
	cabinets CabinetSource
	snaps    SnapshotStore
	statuses *detect.StatusMonitor
	pipeline Pipeline
	metrics  *metrics.Metrics
	logger   types.Logger
	clock    types.Clock
}

// ServiceConfig holds the dependencies for NewService.
type ServiceConfig struct {
	Config   config.SyncConfig
	API      WBAPI
	Cabinets CabinetSource
	Snaps    SnapshotStore
	Statuses *detect.StatusMonitor
	Pipeline Pipeline
	Metrics  *metrics.Metrics
	Logger   types.Logger
}

// NewService creates the sync service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NewLogger(nil)
	}
	return &Service{
		cfg:      cfg.Config,
		api:      cfg.API,
		cabinets: cfg.Cabinets,
		snaps:    cfg.Snaps,
		statuses: cfg.Statuses,
		pipeline: cfg.Pipeline,
		metrics:  cfg.Metrics,
		logger:   logger,
		clock:    types.RealClock{},
	}
}

// SetClock overrides the clock (tests).
func (s *Service) SetClock(c types.Clock) { s.clock = c }

// RunOnce syncs every active cabinet, bounded by MaxParallel. A failing
// cabinet is recorded via MarkSyncError and does not abort the run.
func (s *Service) RunOnce(ctx context.Context) error {
	cabinets, err := s.cabinets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("syncer: list cabinets: %w", err)
	}
	if len(cabinets) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for _, cab := range cabinets {
		cab := cab
		g.Go(func() error {
			cabCtx, cancel := context.WithTimeout(ctx, s.cfg.CabinetTimeout)
			defer cancel()

			start := s.clock.Now()
			err := s.SyncCabinet(cabCtx, cab)
			elapsed := s.clock.Now().Sub(start)
			if s.metrics != nil {
				s.metrics.SyncDuration.Observe(elapsed.Seconds())
			}

			if err != nil {
				if s.metrics != nil {
					s.metrics.SyncRuns.WithLabelValues("error").Inc()
				}
				s.logger.Error("cabinet sync failed",
					"cabinet_id", cab.ID, "error", err.Error(), "elapsed", elapsed.String())
				if markErr := s.cabinets.MarkSyncError(ctx, cab.ID, err.Error()); markErr != nil {
					s.logger.Error("failed to record sync error", "cabinet_id", cab.ID, "error", markErr.Error())
				}
				return nil
			}

			if s.metrics != nil {
				s.metrics.SyncRuns.WithLabelValues("ok").Inc()
			}
			if markErr := s.cabinets.MarkSynced(ctx, cab.ID, s.clock.Now()); markErr != nil {
				s.logger.Error("failed to record sync time", "cabinet_id", cab.ID, "error", markErr.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncCabinet pulls the current WB state for one cabinet, runs detection
// against the stored snapshot, and persists the merged state.
func (s *Service) SyncCabinet(ctx context.Context, cab types.Cabinet) error {
	since := s.sinceFor(cab)

	prevOrders, err := s.snaps.ListOrders(ctx, cab.ID)
	if err != nil {
		return fmt.Errorf("load prev orders: %w", err)
	}
	known, err := s.statuses.LoadStatuses(cab.ID)
	if err != nil {
		return err
	}
	prevOrders = detect.ApplyKnownStatuses(cab.ID, prevOrders, known)

	prevSales, err := s.snaps.ListSales(ctx, cab.ID)
	if err != nil {
		return fmt.Errorf("load prev sales: %w", err)
	}
	prevReviews, err := s.snaps.ListReviews(ctx, cab.ID)
	if err != nil {
		return fmt.Errorf("load prev reviews: %w", err)
	}
	prevStocks, err := s.snaps.ListStocks(ctx, cab.ID)
	if err != nil {
		return fmt.Errorf("load prev stocks: %w", err)
	}

	changedOrders, err := s.api.Orders(ctx, cab.ID, cab.APIKey, since)
	if err != nil {
		return err
	}
	newSales, err := s.api.Sales(ctx, cab.ID, cab.APIKey, since)
	if err != nil {
		return err
	}
	currStocks, err := s.api.Stocks(ctx, cab.ID, cab.APIKey)
	if err != nil {
		return err
	}
	freshReviews, err := s.api.Reviews(ctx, cab.ID, cab.APIKey)
	if err != nil {
		return err
	}

	currSales := mergeSales(prevSales, newSales)
	currOrders := mergeOrders(prevOrders, changedOrders, currSales)
	currReviews := mergeReviews(prevReviews, freshReviews)

	stats, err := s.pipeline.ProcessSnapshot(ctx, types.SyncSnapshot{
		CabinetID:   cab.ID,
		PrevOrders:  prevOrders,
		CurrOrders:  currOrders,
		PrevSales:   prevSales,
		CurrSales:   currSales,
		PrevReviews: prevReviews,
		CurrReviews: currReviews,
		PrevStocks:  prevStocks,
		CurrStocks:  currStocks,
	})
	if err != nil {
		return err
	}

	if err := s.snaps.UpsertOrders(ctx, currOrders); err != nil {
		return fmt.Errorf("persist orders: %w", err)
	}
	if err := s.snaps.UpsertSales(ctx, newSales); err != nil {
		return fmt.Errorf("persist sales: %w", err)
	}
	if err := s.snaps.UpsertReviews(ctx, freshReviews); err != nil {
		return fmt.Errorf("persist reviews: %w", err)
	}
	if err := s.snaps.ReplaceStocks(ctx, cab.ID, currStocks); err != nil {
		return fmt.Errorf("persist stocks: %w", err)
	}
	if err := s.statuses.SaveStatuses(cab.ID, currOrders); err != nil {
		return err
	}

	s.logger.Info("cabinet synced",
		"cabinet_id", cab.ID,
		"orders_changed", len(changedOrders),
		"sales_new", len(newSales),
		"events_detected", stats.Detected,
		"enqueued", stats.Enqueued,
	)
	return nil
}

// sinceFor picks the incremental pull lower bound: the last successful sync
// when one exists, otherwise the configured lookback window.
func (s *Service) sinceFor(cab types.Cabinet) time.Time {
	floor := s.clock.Now().Add(-s.cfg.Lookback)
	if cab.LastSyncAt == nil || cab.LastSyncAt.Before(floor) {
		return floor
	}
	return *cab.LastSyncAt
}

// mergeOrders overlays the changed WB rows onto the previous snapshot and
// settles each order's final status from the sales stream: a sale record
// marks the order bought out, a return record marks it returned. WB's
// isCancel flag only distinguishes active from cancelled.
func mergeOrders(prev, changed []types.Order, sales []types.Sale) []types.Order {
	bySRID := make(map[string]types.Order, len(prev)+len(changed))
	order := make([]string, 0, len(prev)+len(changed))
	for _, o := range prev {
		if _, ok := bySRID[o.SRID]; !ok {
			order = append(order, o.SRID)
		}
		bySRID[o.SRID] = o
	}
	for _, o := range changed {
		if _, ok := bySRID[o.SRID]; !ok {
			order = append(order, o.SRID)
		}
		bySRID[o.SRID] = o
	}

	for _, sale := range sales {
		o, ok := bySRID[sale.SRID]
		if !ok {
			continue
		}
		if sale.IsReturn() {
			o.Status = types.OrderReturned
		} else if o.Status != types.OrderReturned {
			o.Status = types.OrderBuyout
		}
		bySRID[sale.SRID] = o
	}

	out := make([]types.Order, 0, len(bySRID))
	for _, srid := range order {
		out = append(out, bySRID[srid])
	}
	return out
}

func mergeSales(prev, fresh []types.Sale) []types.Sale {
	seen := make(map[string]struct{}, len(prev))
	out := make([]types.Sale, 0, len(prev)+len(fresh))
	for _, s := range prev {
		seen[s.SaleID] = struct{}{}
		out = append(out, s)
	}
	for _, s := range fresh {
		if _, ok := seen[s.SaleID]; ok {
			continue
		}
		seen[s.SaleID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func mergeReviews(prev, fresh []types.Review) []types.Review {
	index := make(map[string]int, len(prev))
	out := make([]types.Review, 0, len(prev)+len(fresh))
	for _, r := range prev {
		index[r.ReviewID] = len(out)
		out = append(out, r)
	}
	for _, r := range fresh {
		if i, ok := index[r.ReviewID]; ok {
			out[i] = r
			continue
		}
		index[r.ReviewID] = len(out)
		out = append(out, r)
	}
	return out
}
