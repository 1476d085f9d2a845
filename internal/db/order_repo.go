package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// OrderRepository stores the per-cabinet order snapshot. The snapshot in
// Postgres is the "previous" side of every diff: sync reads it, pulls fresh
// data from WB, diffs, then upserts the fresh rows.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListByCabinet returns the stored order snapshot for a cabinet.
func (r *OrderRepository) ListByCabinet(ctx context.Context, cabinetID string) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cabinet_id, srid, nm_id, article, subject, brand, status,
		        total_price, warehouse, region, ordered_at, last_change_date
		 FROM orders WHERE cabinet_id = $1`, cabinetID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list orders", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		var o types.Order
		var status string
		if err := rows.Scan(&o.CabinetID, &o.SRID, &o.NmID, &o.Article, &o.Subject,
			&o.Brand, &status, &o.TotalPrice, &o.Warehouse, &o.Region,
			&o.OrderedAt, &o.LastChangeDate); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order", err)
		}
		o.Status = types.OrderStatus(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate orders", err)
	}
	return out, nil
}

// UpsertAll writes the fresh snapshot, replacing changed rows in place.
// Rows are batched into a single round trip via pgx.Batch.
func (r *OrderRepository) UpsertAll(ctx context.Context, orders []types.Order) error {
	if len(orders) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(
			`INSERT INTO orders
			 (cabinet_id, srid, nm_id, article, subject, brand, status,
			  total_price, warehouse, region, ordered_at, last_change_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (cabinet_id, srid) DO UPDATE SET
			   status = EXCLUDED.status,
			   total_price = EXCLUDED.total_price,
			   last_change_date = EXCLUDED.last_change_date`,
			o.CabinetID, o.SRID, o.NmID, o.Article, o.Subject, o.Brand,
			string(o.Status), o.TotalPrice, o.Warehouse, o.Region,
			o.OrderedAt, o.LastChangeDate,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range orders {
		if _, err := results.Exec(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert orders", err)
		}
	}
	return nil
}
