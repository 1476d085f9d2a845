package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// ReviewRepository stores the per-cabinet review snapshot.
type ReviewRepository struct {
	db DBTX
}

// NewReviewRepository creates a ReviewRepository.
func NewReviewRepository(db DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ListByCabinet returns the stored review snapshot for a cabinet.
func (r *ReviewRepository) ListByCabinet(ctx context.Context, cabinetID string) ([]types.Review, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cabinet_id, review_id, nm_id, product_name, rating, text, user_name,
		        created_date, answered
		 FROM reviews WHERE cabinet_id = $1`, cabinetID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reviews", err)
	}
	defer rows.Close()

	var out []types.Review
	for rows.Next() {
		var rv types.Review
		if err := rows.Scan(&rv.CabinetID, &rv.ReviewID, &rv.NmID, &rv.ProductName,
			&rv.Rating, &rv.Text, &rv.UserName, &rv.CreatedDate, &rv.Answered); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan review", err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate reviews", err)
	}
	return out, nil
}

// UpsertAll writes the fresh snapshot. The answered flag is the only field
// WB mutates after creation.
func (r *ReviewRepository) UpsertAll(ctx context.Context, reviews []types.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rv := range reviews {
		batch.Queue(
			`INSERT INTO reviews
			 (cabinet_id, review_id, nm_id, product_name, rating, text, user_name,
			  created_date, answered)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (cabinet_id, review_id) DO UPDATE SET
			   answered = EXCLUDED.answered`,
			rv.CabinetID, rv.ReviewID, rv.NmID, rv.ProductName, rv.Rating,
			rv.Text, rv.UserName, rv.CreatedDate, rv.Answered,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range reviews {
		if _, err := results.Exec(); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert reviews", err)
		}
	}
	return nil
}
