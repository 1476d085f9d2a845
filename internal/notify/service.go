// Package notify orchestrates the notification pipeline: snapshot diffing,
// settings filtering, dedup, message generation and enqueueing for delivery.
package notify

import (
	"context"
	"fmt"

	"wbpulse/internal/detect"
	"wbpulse/internal/metrics"
	"wbpulse/internal/types"
)

// SettingsSource supplies per-cabinet notification settings. A cabinet with
// no stored settings row must receive types.DefaultSettings (everything
// enabled), never an empty struct: a missing row silently dropping all
// notifications is the failure mode this interface exists to prevent.
type SettingsSource interface {
	GetOrCreate(ctx context.Context, cabinetID string) (types.NotificationSettings, error)
}

// EventLedger is the persistent dedupe record of every emitted event.
// RecordIfNew must be atomic (INSERT ... ON CONFLICT DO NOTHING): it returns
// true exactly once per (cabinet_id, entity_type, entity_id, transition)
// tuple, so re-syncs never re-emit already-seen events.
type EventLedger interface {
	RecordIfNew(ctx context.Context, ev types.ChangeEvent) (bool, error)
}

// HistoryRecorder persists generated notifications for API listing and
// delivery-state tracking.
type HistoryRecorder interface {
	Create(ctx context.Context, n *types.Notification) error
}

// Enqueuer pushes a notification onto the delivery priority queue.
type Enqueuer interface {
	Push(n types.Notification) error
}

// Stats summarizes one ProcessSnapshot run.
type Stats struct {
	Detected   int
	Filtered   int
	Duplicates int
	Enqueued   int
}

// Service wires the detector output to the delivery queue.
type Service struct {
	settings  SettingsSource
	ledger    EventLedger
	history   HistoryRecorder
	queue     Enqueuer
	generator *Generator
	metrics   *metrics.Metrics
	logger    types.Logger
}

// ServiceConfig holds the dependencies for NewService.
type ServiceConfig struct {
	Settings  SettingsSource
	Ledger    EventLedger
	History   HistoryRecorder
	Queue     Enqueuer
	Generator *Generator
	Metrics   *metrics.Metrics
	Logger    types.Logger
}

// NewService creates the notification orchestrator.
func NewService(cfg ServiceConfig) *Service {
	gen := cfg.Generator
	if gen == nil {
		gen = NewGenerator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NewLogger(nil)
	}
	return &Service{
		settings:  cfg.Settings,
		ledger:    cfg.Ledger,
		history:   cfg.History,
		queue:     cfg.Queue,
		generator: gen,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// ProcessSnapshot detects change events between the previous and current
// snapshot, applies the cabinet's settings, dedupes against the event
// ledger, and enqueues a notification for every surviving event.
//
// Detection always runs over every stream; the settings toggles gate which
// detected events become notifications. Thresholds (critical stock level,
// negative rating cutoff) come from the same settings row.
func (s *Service) ProcessSnapshot(ctx context.Context, snap types.SyncSnapshot) (Stats, error) {
	settings, err := s.settings.GetOrCreate(ctx, snap.CabinetID)
	if err != nil {
		return Stats{}, fmt.Errorf("notify: load settings for %s: %w", snap.CabinetID, err)
	}

	events := s.detect(snap, settings)

	stats := Stats{Detected: len(events)}
	for _, ev := range events {
		if s.metrics != nil {
			s.metrics.EventsDetected.WithLabelValues(string(ev.Type)).Inc()
		}
		if !settings.Enabled(ev.Type) {
			stats.Filtered++
			if s.metrics != nil {
				s.metrics.EventsFiltered.Inc()
			}
			continue
		}

		isNew, err := s.ledger.RecordIfNew(ctx, ev)
		if err != nil {
			return stats, fmt.Errorf("notify: record event %s/%s/%s: %w",
				ev.EntityType, ev.EntityID, ev.Transition, err)
		}
		if !isNew {
			stats.Duplicates++
			if s.metrics != nil {
				s.metrics.EventsDeduplicated.Inc()
			}
			continue
		}

		n, err := s.generator.Generate(ev)
		if err != nil {
			return stats, fmt.Errorf("notify: generate notification: %w", err)
		}

		if err := s.history.Create(ctx, &n); err != nil {
			return stats, fmt.Errorf("notify: record history: %w", err)
		}

		if err := s.queue.Push(n); err != nil {
			return stats, fmt.Errorf("notify: enqueue %s: %w", n.ID, err)
		}
		stats.Enqueued++

		s.logger.Info("notification enqueued",
			"notification_id", n.ID,
			"cabinet_id", n.CabinetID,
			"event_type", string(n.EventType),
			"priority", string(n.Priority),
		)
	}

	return stats, nil
}

// detect runs every detector over the snapshot pair.
func (s *Service) detect(snap types.SyncSnapshot, settings types.NotificationSettings) []types.ChangeEvent {
	var events []types.ChangeEvent
	events = append(events, detect.DetectNewOrders(snap.PrevOrders, snap.CurrOrders)...)
	events = append(events, detect.DetectStatusChanges(snap.PrevOrders, snap.CurrOrders)...)
	events = append(events, detect.DetectNewSales(snap.PrevSales, snap.CurrSales)...)
	events = append(events, detect.DetectNegativeReviews(snap.PrevReviews, snap.CurrReviews, settings.NegativeRatingMax)...)
	events = append(events, detect.DetectCriticalStocks(snap.PrevStocks, snap.CurrStocks, settings.CriticalStockThreshold)...)
	return events
}
