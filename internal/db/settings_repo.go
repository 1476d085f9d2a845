package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// SettingsRepository provides data access for per-cabinet notification
// settings. A cabinet without a stored row gets defaults auto-created on
// first read; settings never silently default to "everything off".
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a SettingsRepository.
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the cabinet's settings, inserting the default-enabled
// row first if none exists. The insert uses ON CONFLICT DO NOTHING so
// concurrent callers race safely.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, cabinetID string) (types.NotificationSettings, error) {
	defaults := types.DefaultSettings(cabinetID)

	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_settings
		 (cabinet_id, orders_enabled, sales_enabled, reviews_enabled, stocks_enabled,
		  critical_stock_threshold, negative_rating_max)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (cabinet_id) DO NOTHING`,
		defaults.CabinetID, defaults.OrdersEnabled, defaults.SalesEnabled,
		defaults.ReviewsEnabled, defaults.StocksEnabled,
		defaults.CriticalStockThreshold, defaults.NegativeRatingMax,
	)
	if err != nil {
		return types.NotificationSettings{}, types.NewAppError(types.ErrCodeInternalDB, "failed to ensure settings", err)
	}

	return r.get(ctx, cabinetID)
}

// Update replaces the cabinet's settings.
func (r *SettingsRepository) Update(ctx context.Context, s *types.NotificationSettings) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_settings
		 (cabinet_id, orders_enabled, sales_enabled, reviews_enabled, stocks_enabled,
		  critical_stock_threshold, negative_rating_max, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (cabinet_id) DO UPDATE SET
		   orders_enabled = EXCLUDED.orders_enabled,
		   sales_enabled = EXCLUDED.sales_enabled,
		   reviews_enabled = EXCLUDED.reviews_enabled,
		   stocks_enabled = EXCLUDED.stocks_enabled,
		   critical_stock_threshold = EXCLUDED.critical_stock_threshold,
		   negative_rating_max = EXCLUDED.negative_rating_max,
		   updated_at = NOW()
		 RETURNING updated_at`,
		s.CabinetID, s.OrdersEnabled, s.SalesEnabled, s.ReviewsEnabled, s.StocksEnabled,
		s.CriticalStockThreshold, s.NegativeRatingMax,
	)
	if err := row.Scan(&s.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update settings", err)
	}
	return nil
}

func (r *SettingsRepository) get(ctx context.Context, cabinetID string) (types.NotificationSettings, error) {
	var s types.NotificationSettings
	row := r.db.QueryRow(ctx,
		`SELECT cabinet_id, orders_enabled, sales_enabled, reviews_enabled, stocks_enabled,
		        critical_stock_threshold, negative_rating_max, updated_at
		 FROM notification_settings WHERE cabinet_id = $1`, cabinetID)
	err := row.Scan(&s.CabinetID, &s.OrdersEnabled, &s.SalesEnabled, &s.ReviewsEnabled,
		&s.StocksEnabled, &s.CriticalStockThreshold, &s.NegativeRatingMax, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Raced with a delete of the cabinet; fall back to defaults so the
		// caller still behaves as default-enabled.
		return types.DefaultSettings(cabinetID), nil
	}
	if err != nil {
		return types.NotificationSettings{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read settings", err)
	}
	return s, nil
}
