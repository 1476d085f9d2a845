package syncer

import (
	"context"

	"wbpulse/internal/db"
	"wbpulse/internal/types"
)

// RepoSnapshotStore adapts the Postgres repositories to the SnapshotStore
// interface.
type RepoSnapshotStore struct {
	Orders  *db.OrderRepository
	Sales   *db.SaleRepository
	Reviews *db.ReviewRepository
	Stocks  *db.StockRepository
}

var _ SnapshotStore = (*RepoSnapshotStore)(nil)

func (r *RepoSnapshotStore) ListOrders(ctx context.Context, cabinetID string) ([]types.Order, error) {
	return r.Orders.ListByCabinet(ctx, cabinetID)
}

func (r *RepoSnapshotStore) UpsertOrders(ctx context.Context, orders []types.Order) error {
	return r.Orders.UpsertAll(ctx, orders)
}

func (r *RepoSnapshotStore) ListSales(ctx context.Context, cabinetID string) ([]types.Sale, error) {
	return r.Sales.ListByCabinet(ctx, cabinetID)
}

func (r *RepoSnapshotStore) UpsertSales(ctx context.Context, sales []types.Sale) error {
	return r.Sales.UpsertAll(ctx, sales)
}

func (r *RepoSnapshotStore) ListReviews(ctx context.Context, cabinetID string) ([]types.Review, error) {
	return r.Reviews.ListByCabinet(ctx, cabinetID)
}

func (r *RepoSnapshotStore) UpsertReviews(ctx context.Context, reviews []types.Review) error {
	return r.Reviews.UpsertAll(ctx, reviews)
}

func (r *RepoSnapshotStore) ListStocks(ctx context.Context, cabinetID string) ([]types.Stock, error) {
	return r.Stocks.ListByCabinet(ctx, cabinetID)
}

func (r *RepoSnapshotStore) ReplaceStocks(ctx context.Context, cabinetID string, stocks []types.Stock) error {
	return r.Stocks.ReplaceAll(ctx, cabinetID, stocks)
}
