package db

import (
	"context"
	"fmt"
)

// schema is the idempotent DDL applied at startup. Every statement uses
// IF NOT EXISTS so repeated startups and multiple workers are safe.
//
// notification_events is the dedupe ledger: the primary key is the event
// identity tuple, and RecordIfNew relies on ON CONFLICT DO NOTHING against
// it. Dropping this table resets dedup and re-emits events on next sync.
const schema = `
CREATE TABLE IF NOT EXISTS cabinets (
	id               TEXT PRIMARY KEY,
	user_id          BIGINT NOT NULL,
	name             TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	api_key          TEXT NOT NULL,
	webhook_url      TEXT NOT NULL,
	webhook_secret   TEXT NOT NULL DEFAULT '',
	last_sync_at     TIMESTAMPTZ,
	last_sync_error  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cabinets_user ON cabinets (user_id);

CREATE TABLE IF NOT EXISTS notification_settings (
	cabinet_id                TEXT PRIMARY KEY REFERENCES cabinets (id) ON DELETE CASCADE,
	orders_enabled            BOOLEAN NOT NULL DEFAULT TRUE,
	sales_enabled             BOOLEAN NOT NULL DEFAULT TRUE,
	reviews_enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	stocks_enabled            BOOLEAN NOT NULL DEFAULT TRUE,
	critical_stock_threshold  INT NOT NULL DEFAULT 5,
	negative_rating_max       INT NOT NULL DEFAULT 3,
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
	cabinet_id        TEXT NOT NULL REFERENCES cabinets (id) ON DELETE CASCADE,
	srid              TEXT NOT NULL,
	nm_id             BIGINT NOT NULL,
	article           TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	brand             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	total_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	warehouse         TEXT NOT NULL DEFAULT '',
	region            TEXT NOT NULL DEFAULT '',
	ordered_at        TIMESTAMPTZ NOT NULL,
	last_change_date  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cabinet_id, srid)
);

CREATE INDEX IF NOT EXISTS idx_orders_nm ON orders (cabinet_id, nm_id);

CREATE TABLE IF NOT EXISTS sales (
	cabinet_id   TEXT NOT NULL REFERENCES cabinets (id) ON DELETE CASCADE,
	sale_id      TEXT NOT NULL,
	srid         TEXT NOT NULL DEFAULT '',
	nm_id        BIGINT NOT NULL,
	article      TEXT NOT NULL DEFAULT '',
	brand        TEXT NOT NULL DEFAULT '',
	total_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	for_pay      DOUBLE PRECISION NOT NULL DEFAULT 0,
	sold_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cabinet_id, sale_id)
);

CREATE TABLE IF NOT EXISTS reviews (
	cabinet_id    TEXT NOT NULL REFERENCES cabinets (id) ON DELETE CASCADE,
	review_id     TEXT NOT NULL,
	nm_id         BIGINT NOT NULL,
	product_name  TEXT NOT NULL DEFAULT '',
	rating        INT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	user_name     TEXT NOT NULL DEFAULT '',
	created_date  TIMESTAMPTZ NOT NULL,
	answered      BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (cabinet_id, review_id)
);

CREATE TABLE IF NOT EXISTS stocks (
	cabinet_id  TEXT NOT NULL REFERENCES cabinets (id) ON DELETE CASCADE,
	nm_id       BIGINT NOT NULL,
	article     TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	sizes       JSONB NOT NULL DEFAULT '[]',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (cabinet_id, nm_id)
);

CREATE TABLE IF NOT EXISTS notification_events (
	cabinet_id   TEXT NOT NULL,
	entity_type  TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	transition   TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (cabinet_id, entity_type, entity_id, transition)
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	cabinet_id      TEXT NOT NULL REFERENCES cabinets (id) ON DELETE CASCADE,
	event_type      TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	transition      TEXT NOT NULL,
	priority        TEXT NOT NULL,
	title           TEXT NOT NULL,
	body            TEXT NOT NULL,
	group_key       TEXT NOT NULL DEFAULT '',
	payload         JSONB,
	status          TEXT NOT NULL DEFAULT 'pending',
	attempts        INT NOT NULL DEFAULT 0,
	failure_reason  TEXT NOT NULL DEFAULT '',
	delivered_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_cabinet_created
	ON notifications (cabinet_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_status
	ON notifications (status, created_at);
`

// EnsureSchema applies the DDL. Safe to call from every worker at startup.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("db: failed to ensure schema: %w", err)
	}
	return nil
}
