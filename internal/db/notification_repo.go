package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wbpulse/internal/types"
)

// NotificationRepository provides data access for the notifications history
// table and the notification_events dedupe ledger.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// RecordIfNew inserts the event's dedupe key and reports whether it was new.
// The insert is INSERT ... ON CONFLICT DO NOTHING on the identity tuple
// (cabinet_id, entity_type, entity_id, transition); a zero rows-affected
// result means the event was already seen by an earlier sync.
func (r *NotificationRepository) RecordIfNew(ctx context.Context, ev types.ChangeEvent) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO notification_events
		 (cabinet_id, entity_type, entity_id, transition, event_type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (cabinet_id, entity_type, entity_id, transition) DO NOTHING`,
		ev.CabinetID, string(ev.EntityType), ev.EntityID, ev.Transition,
		string(ev.Type), ev.OccurredAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record event", err)
	}
	return tag.RowsAffected() > 0, nil
}

const notificationColumns = `id, cabinet_id, event_type, entity_type, entity_id, transition,
	priority, title, body, group_key, payload, status, attempts, failure_reason,
	delivered_at, created_at`

// Create inserts a notification history row. The caller must set the ID.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, cabinet_id, event_type, entity_type, entity_id, transition,
		  priority, title, body, group_key, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		n.ID, n.CabinetID, string(n.EventType), string(n.EntityType), n.EntityID,
		n.Transition, string(n.Priority), n.Title, n.Body, n.GroupKey,
		nilIfEmptyJSON(n.Payload), string(n.Status), n.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// Get returns a notification by ID.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

// List returns a cabinet's notification history, newest first, with
// limit/offset pagination.
func (r *NotificationRepository) List(ctx context.Context, cabinetID string, limit, offset int) ([]types.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE cabinet_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		cabinetID, limit, offset)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var out []types.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate notifications", err)
	}
	return out, nil
}

// MarkSent updates a notification as delivered.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, attempts int, deliveredAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET status = $2, attempts = $3, delivered_at = $4, failure_reason = ''
		 WHERE id = $1`,
		id, string(types.DeliverySent), attempts, deliveredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification sent", err)
	}
	return nil
}

// MarkFailed records a permanently failed delivery.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, attempts int, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET status = $2, attempts = $3, failure_reason = $4
		 WHERE id = $1`,
		id, string(types.DeliveryFailed), attempts, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification failed", err)
	}
	return nil
}

// UpdateAttempts records attempt bookkeeping after a transient failure that
// will be requeued.
func (r *NotificationRepository) UpdateAttempts(ctx context.Context, id string, attempts int, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET attempts = $2, failure_reason = $3 WHERE id = $1`,
		id, attempts, reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update attempts", err)
	}
	return nil
}

// ListArchivable returns delivered or failed notifications created before
// the cutoff, oldest first, for the archiver.
func (r *NotificationRepository) ListArchivable(ctx context.Context, before time.Time, limit int) ([]types.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE created_at < $1 AND status IN ($2, $3)
		 ORDER BY created_at
		 LIMIT $4`,
		before, string(types.DeliverySent), string(types.DeliveryFailed), limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list archivable notifications", err)
	}
	defer rows.Close()

	var out []types.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate archivable notifications", err)
	}
	return out, nil
}

// DeleteByIDs removes archived rows. Returns the number deleted.
func (r *NotificationRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete notifications", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*types.Notification, error) {
	var n types.Notification
	var eventType, entityType, priority, status string
	err := row.Scan(&n.ID, &n.CabinetID, &eventType, &entityType, &n.EntityID,
		&n.Transition, &priority, &n.Title, &n.Body, &n.GroupKey, &n.Payload,
		&status, &n.Attempts, &n.FailureReason, &n.DeliveredAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification", err)
	}
	n.EventType = types.EventType(eventType)
	n.EntityType = types.EntityType(entityType)
	n.Priority = types.Priority(priority)
	n.Status = types.DeliveryStatus(status)
	return &n, nil
}

// nilIfEmptyJSON maps empty payloads to SQL NULL rather than invalid JSONB.
func nilIfEmptyJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
