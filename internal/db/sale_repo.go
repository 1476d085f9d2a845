package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// SaleRepository stores the per-cabinet sales snapshot.
type SaleRepository struct {
	db DBTX
}

// NewSaleRepository creates a SaleRepository.
func NewSaleRepository(db DBTX) *SaleRepository {
	return &SaleRepository{db: db}
}

// ListByCabinet returns the stored sales snapshot for a cabinet.
func (r *SaleRepository) ListByCabinet(ctx context.Context, cabinetID string) ([]types.Sale, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cabinet_id, sale_id, srid, nm_id, article, brand, total_price, for_pay, sold_at
		 FROM sales WHERE cabinet_id = $1`, cabinetID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sales", err)
	}
	defer rows.Close()

	var out []types.Sale
	for rows.Next() {
		var s types.Sale
		if err := rows.Scan(&s.CabinetID, &s.SaleID, &s.SRID, &s.NmID, &s.Article,
			&s.Brand, &s.TotalPrice, &s.ForPay, &s.SoldAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sale", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate sales", err)
	}
	return out, nil
}

// UpsertAll writes the fresh snapshot. Sales rows are effectively immutable;
// the upsert only exists so re-pulls are idempotent.
func (r *SaleRepository) UpsertAll(ctx context.Context, sales []types.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range sales {
		batch.Queue(
			`INSERT INTO sales
			 (cabinet_id, sale_id, srid, nm_id, article, brand, total_price, for_pay, sold_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (cabinet_id, sale_id) DO NOTHING`,
			s.CabinetID, s.SaleID, s.SRID, s.NmID, s.Article, s.Brand,
			s.TotalPrice, s.ForPay, s.SoldAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range sales {
		if _, err := results.Exec(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert sales", err)
		}
	}
	return nil
}
