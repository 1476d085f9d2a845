package notify

import (
	"context"
	"fmt"
	"time"

	"wbpulse/internal/config"
	"wbpulse/internal/metrics"
	"wbpulse/internal/queue"
	"wbpulse/internal/types"
	"wbpulse/internal/webhook"
)

// CabinetGetter resolves the delivery endpoint for a notification.
type CabinetGetter interface {
	Get(ctx context.Context, id string) (*types.Cabinet, error)
}

// DeliveryHistory records delivery outcomes on stored notifications.
type DeliveryHistory interface {
	MarkSent(ctx context.Context, id string, attempts int, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, reason string) error
	UpdateAttempts(ctx context.Context, id string, attempts int, reason string) error
}

// Worker drains the priority queue and delivers notifications to seller
// webhooks. A retryable failure puts the item back on the queue with a
// growing delay, up to MaxRequeues rounds; anything past that is recorded
// as failed.
type Worker struct {
	cfg      config.QueueConfig
	queue    *queue.Manager
	sender   *webhook.Sender
	cabinets CabinetGetter
	history  DeliveryHistory
	metrics  *metrics.Metrics
	logger   types.Logger
	clock    types.Clock
}

// WorkerConfig holds the dependencies for NewWorker.
type WorkerConfig struct {
	Config   config.QueueConfig
	Queue    *queue.Manager
	Sender   *webhook.Sender
	Cabinets CabinetGetter
	History  DeliveryHistory
	Metrics  *metrics.Metrics
	Logger   types.Logger
}

// NewWorker creates the delivery worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NewLogger(nil)
	}
	return &Worker{
		cfg:      cfg.Config,
		queue:    cfg.Queue,
		sender:   cfg.Sender,
		cabinets: cfg.Cabinets,
		history:  cfg.History,
		metrics:  cfg.Metrics,
		logger:   logger,
		clock:    types.RealClock{},
	}
}

// SetClock overrides the clock (tests).
func (w *Worker) SetClock(c types.Clock) { w.clock = c }

// Run drains the queue until the context is cancelled. An empty queue is
// polled at PollInterval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.DrainOnce(ctx)
		if err != nil {
			w.logger.Error("queue drain failed", "error", err.Error())
		}
		if processed {
			continue
		}

		w.reportDepth()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce pops and delivers at most one notification. It reports whether
// an item was processed.
func (w *Worker) DrainOnce(ctx context.Context) (bool, error) {
	item, ok, err := w.queue.Pop()
	if err != nil {
		return false, fmt.Errorf("worker: pop: %w", err)
	}
	if !ok {
		return false, nil
	}
	w.deliver(ctx, item)
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, item queue.Item) {
	n := item.Notification

	cab, err := w.cabinets.Get(ctx, n.CabinetID)
	if err != nil {
		// The cabinet may have been deleted between enqueue and delivery.
		w.finishFailed(ctx, item, fmt.Sprintf("cabinet unavailable: %v", err))
		return
	}
	if cab.WebhookURL == "" {
		w.finishFailed(ctx, item, "cabinet has no webhook URL")
		return
	}

	start := w.clock.Now()
	result, err := w.sender.Send(ctx, n, cab.WebhookURL, webhook.SecretConfig{Secret: cab.WebhookSecret})
	if w.metrics != nil {
		w.metrics.DeliveryDuration.Observe(w.clock.Now().Sub(start).Seconds())
	}
	if err != nil {
		w.finishFailed(ctx, item, err.Error())
		return
	}

	attempts := n.Attempts + result.Attempts

	switch {
	case result.Status == types.DeliverySent:
		if w.metrics != nil {
			w.metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
		}
		if err := w.history.MarkSent(ctx, n.ID, attempts, w.clock.Now()); err != nil {
			w.logger.Error("failed to record delivery", "notification_id", n.ID, "error", err.Error())
		}
		w.logger.Info("notification delivered",
			"notification_id", n.ID,
			"cabinet_id", n.CabinetID,
			"attempts", attempts,
			"status_code", result.StatusCode,
		)

	case result.Retryable && item.RetryCount < w.cfg.MaxRequeues:
		delay := w.requeueDelay(item.RetryCount)
		item.Notification.Attempts = attempts
		if err := w.queue.Requeue(item, delay); err != nil {
			w.finishFailed(ctx, item, fmt.Sprintf("requeue failed after %s: %s", result.FailureReason, err))
			return
		}
		if w.metrics != nil {
			w.metrics.DeliveriesTotal.WithLabelValues("requeued").Inc()
		}
		if err := w.history.UpdateAttempts(ctx, n.ID, attempts, result.FailureReason); err != nil {
			w.logger.Error("failed to record attempt", "notification_id", n.ID, "error", err.Error())
		}
		w.logger.Warn("delivery requeued",
			"notification_id", n.ID,
			"retry_count", item.RetryCount+1,
			"delay", delay.String(),
			"reason", result.FailureReason,
		)

	default:
		reason := result.FailureReason
		if result.Retryable {
			reason = fmt.Sprintf("retries exhausted: %s", reason)
		}
		item.Notification.Attempts = attempts
		w.finishFailed(ctx, item, reason)
	}
}

func (w *Worker) finishFailed(ctx context.Context, item queue.Item, reason string) {
	n := item.Notification
	if w.metrics != nil {
		w.metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
	}
	if err := w.history.MarkFailed(ctx, n.ID, n.Attempts, reason); err != nil {
		w.logger.Error("failed to record delivery failure", "notification_id", n.ID, "error", err.Error())
	}
	w.logger.Error("notification delivery failed",
		"notification_id", n.ID,
		"cabinet_id", n.CabinetID,
		"reason", reason,
	)
}

// requeueDelay doubles the base delay per requeue round, capped at the
// configured maximum.
func (w *Worker) requeueDelay(retryCount int) time.Duration {
	delay := w.cfg.RequeueBaseDelay << uint(retryCount)
	if delay > w.cfg.RequeueMaxDelay || delay <= 0 {
		delay = w.cfg.RequeueMaxDelay
	}
	return delay
}

func (w *Worker) reportDepth() {
	if w.metrics == nil {
		return
	}
	depth, err := w.queue.Depth()
	if err != nil {
		return
	}
	for _, p := range types.Priorities {
		w.metrics.QueueDepth.WithLabelValues(string(p)).Set(float64(depth[p]))
	}
}
