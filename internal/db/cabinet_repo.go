package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wbpulse/internal/types"
)

// CabinetRepository provides data access for the cabinets table.
type CabinetRepository struct {
	db DBTX
}

// NewCabinetRepository creates a CabinetRepository backed by the given
// database connection (pool or transaction).
func NewCabinetRepository(db DBTX) *CabinetRepository {
	return &CabinetRepository{db: db}
}

const cabinetColumns = `id, user_id, name, status, api_key, webhook_url, webhook_secret,
	last_sync_at, last_sync_error, created_at, updated_at`

// Create inserts a new cabinet. The caller must set the ID.
func (r *CabinetRepository) Create(ctx context.Context, c *types.Cabinet) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO cabinets (id, user_id, name, status, api_key, webhook_url, webhook_secret)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		c.ID, c.UserID, c.Name, string(c.Status), c.APIKey, c.WebhookURL, c.WebhookSecret,
	)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return types.NewAppError(types.ErrCodeConflictCabinetExists, "cabinet already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create cabinet", err)
	}
	return nil
}

// Get returns a cabinet by ID.
func (r *CabinetRepository) Get(ctx context.Context, id string) (*types.Cabinet, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cabinetColumns+` FROM cabinets WHERE id = $1`, id)
	return scanCabinet(row)
}

// List returns all cabinets, newest first.
func (r *CabinetRepository) List(ctx context.Context) ([]types.Cabinet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cabinetColumns+` FROM cabinets ORDER BY created_at DESC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cabinets", err)
	}
	defer rows.Close()
	return collectCabinets(rows)
}

// ListActive returns cabinets eligible for sync.
func (r *CabinetRepository) ListActive(ctx context.Context) ([]types.Cabinet, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cabinetColumns+` FROM cabinets WHERE status = $1 ORDER BY created_at`,
		string(types.CabinetActive))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active cabinets", err)
	}
	defer rows.Close()
	return collectCabinets(rows)
}

// Update modifies the mutable cabinet fields.
func (r *CabinetRepository) Update(ctx context.Context, c *types.Cabinet) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cabinets
		 SET name = $2, status = $3, api_key = $4, webhook_url = $5,
		     webhook_secret = $6, updated_at = NOW()
		 WHERE id = $1`,
		c.ID, c.Name, string(c.Status), c.APIKey, c.WebhookURL, c.WebhookSecret,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update cabinet", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCabinet, "cabinet not found", nil)
	}
	return nil
}

// MarkSynced records a successful sync.
func (r *CabinetRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE cabinets
		 SET last_sync_at = $2, last_sync_error = '', status = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, at, string(types.CabinetActive),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark cabinet synced", err)
	}
	return nil
}

// MarkSyncError records a failed sync. The cabinet stays eligible for the
// next run; status flips to error only so operators can see it.
func (r *CabinetRepository) MarkSyncError(ctx context.Context, id string, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE cabinets SET last_sync_error = $2, updated_at = NOW() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark cabinet sync error", err)
	}
	return nil
}

// Delete removes a cabinet and, via FK cascade, its snapshots, settings and
// notification history.
func (r *CabinetRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cabinets WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete cabinet", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCabinet, "cabinet not found", nil)
	}
	return nil
}

func scanCabinet(row pgx.Row) (*types.Cabinet, error) {
	var c types.Cabinet
	var status string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &status, &c.APIKey, &c.WebhookURL,
		&c.WebhookSecret, &c.LastSyncAt, &c.LastSyncError, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundCabinet, "cabinet not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cabinet", err)
	}
	c.Status = types.CabinetStatus(status)
	return &c, nil
}

func collectCabinets(rows pgx.Rows) ([]types.Cabinet, error) {
	var out []types.Cabinet
	for rows.Next() {
		c, err := scanCabinet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate cabinets", err)
	}
	return out, nil
}
