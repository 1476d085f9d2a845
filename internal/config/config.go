// Package config defines the global configuration structure for the wbpulse
// platform. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating code
// from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"wbpulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"wbpulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	WB       WBConfig
	Sync     SyncConfig
	Webhook  WebhookConfig
	Queue    QueueConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// MetricsPort is where worker processes expose /metrics; the API server
	// serves metrics on its main port instead.
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	// AuthToken protects the management API. Empty disables auth (local only).
	AuthToken SecretString `envconfig:"API_AUTH_TOKEN"`

	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"20s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// StoreConfig holds the embedded key-value store settings. The store backs
// the notification priority queue and the order status monitor state.
type StoreConfig struct {
	Path       string `envconfig:"STORE_PATH" default:"/var/lib/wbpulse/store"`
	InMemory   bool   `envconfig:"STORE_IN_MEMORY" default:"false"`
	SyncWrites bool   `envconfig:"STORE_SYNC_WRITES" default:"true"`

	GCInterval     time.Duration `envconfig:"STORE_GC_INTERVAL" default:"5m"`
	GCDiscardRatio float64       `envconfig:"STORE_GC_DISCARD_RATIO" default:"0.5"`
}

// WBConfig holds Wildberries API endpoints and client tuning.
type WBConfig struct {
	StatisticsBaseURL string `envconfig:"WB_STATISTICS_URL" default:"https://statistics-api.wildberries.ru"`
	FeedbacksBaseURL  string `envconfig:"WB_FEEDBACKS_URL" default:"https://feedbacks-api.wildberries.ru"`

	RequestTimeout time.Duration `envconfig:"WB_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"WB_MAX_RETRIES" default:"3"`
	MinRetryWait   time.Duration `envconfig:"WB_MIN_RETRY_WAIT" default:"1s"`
	MaxRetryWait   time.Duration `envconfig:"WB_MAX_RETRY_WAIT" default:"30s"`
	UserAgent      string        `envconfig:"WB_USER_AGENT" default:"wbpulse/1.0"`
}

// SyncConfig holds sync worker scheduling and concurrency settings.
type SyncConfig struct {
	// CronSpec is the standard 5-field cron expression for sync runs.
	CronSpec string `envconfig:"SYNC_CRON" default:"*/5 * * * *"`

	// MaxParallel bounds concurrent cabinet syncs.
	MaxParallel int `envconfig:"SYNC_MAX_PARALLEL" default:"4"`

	// Lookback is how far back incremental pulls reach on first sync.
	Lookback time.Duration `envconfig:"SYNC_LOOKBACK" default:"720h"`

	// CabinetTimeout bounds one cabinet's full sync.
	CabinetTimeout time.Duration `envconfig:"SYNC_CABINET_TIMEOUT" default:"3m"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	UserAgent      string        `envconfig:"WEBHOOK_USER_AGENT" default:"WBPulse-Webhook/1.0"`
	DefaultTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxAttempts    int           `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"3"`
}

// QueueConfig holds notify-worker drain behavior.
type QueueConfig struct {
	// PollInterval is the idle sleep between drain attempts when empty.
	PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`

	// MaxRequeues is the queue-level retry cap per notification, on top of
	// the webhook sender's own attempt schedule.
	MaxRequeues int `envconfig:"QUEUE_MAX_REQUEUES" default:"5"`

	// RequeueBaseDelay seeds the backoff between requeues.
	RequeueBaseDelay time.Duration `envconfig:"QUEUE_REQUEUE_BASE_DELAY" default:"5s"`
	RequeueMaxDelay  time.Duration `envconfig:"QUEUE_REQUEUE_MAX_DELAY" default:"5m"`
}

// ArchiveConfig holds notification history archival settings.
type ArchiveConfig struct {
	Dir       string        `envconfig:"ARCHIVE_DIR" default:"/var/lib/wbpulse/archive"`
	Retention time.Duration `envconfig:"ARCHIVE_RETENTION" default:"2160h"` // 90 days
	BatchSize int           `envconfig:"ARCHIVE_BATCH_SIZE" default:"5000"`
}
