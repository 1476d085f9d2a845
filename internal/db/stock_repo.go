package db

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// StockRepository stores the per-cabinet stock snapshot. Sizes are kept as a
// JSONB array per product; the detector only needs the full snapshot shape,
// not per-size rows.
type StockRepository struct {
	db DBTX
}

// NewStockRepository creates a StockRepository.
func NewStockRepository(db DBTX) *StockRepository {
	return &StockRepository{db: db}
}

// ListByCabinet returns the stored stock snapshot for a cabinet.
func (r *StockRepository) ListByCabinet(ctx context.Context, cabinetID string) ([]types.Stock, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cabinet_id, nm_id, article, subject, sizes, updated_at
		 FROM stocks WHERE cabinet_id = $1`, cabinetID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stocks", err)
	}
	defer rows.Close()

	var out []types.Stock
	for rows.Next() {
		var s types.Stock
		var sizes []byte
		if err := rows.Scan(&s.CabinetID, &s.NmID, &s.Article, &s.Subject, &sizes, &s.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan stock", err)
		}
		if err := json.Unmarshal(sizes, &s.Sizes); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode stock sizes", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate stocks", err)
	}
	return out, nil
}

// ReplaceAll swaps the cabinet's stock snapshot for the fresh one. Stocks
// are a point-in-time view, so rows absent from the new pull are deleted.
func (r *StockRepository) ReplaceAll(ctx context.Context, cabinetID string, stocks []types.Stock) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM stocks WHERE cabinet_id = $1`, cabinetID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear stocks", err)
	}
	if len(stocks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range stocks {
		sizes, err := json.Marshal(s.Sizes)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to encode stock sizes", err)
		}
		batch.Queue(
			`INSERT INTO stocks (cabinet_id, nm_id, article, subject, sizes, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (cabinet_id, nm_id) DO UPDATE SET
			   sizes = EXCLUDED.sizes, updated_at = EXCLUDED.updated_at`,
			s.CabinetID, s.NmID, s.Article, s.Subject, sizes, s.UpdatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range stocks {
		if _, err := results.Exec(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert stocks", err)
		}
	}
	return nil
}
