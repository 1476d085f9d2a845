// Package main is the entry point for the notification delivery worker.
//
// It drains the priority queue, highest priority first, and delivers each
// notification to its cabinet's webhook endpoint with signing and retries.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wbpulse/internal/config"
	"wbpulse/internal/db"
	"wbpulse/internal/metrics"
	"wbpulse/internal/notify"
	"wbpulse/internal/queue"
	"wbpulse/internal/store"
	"wbpulse/internal/types"
	"wbpulse/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	appLog := types.NewLogger(logger)
	logger.Info("wbpulse notify worker starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	kv, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer kv.Close()

	qm, err := queue.NewManager(kv)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer qm.Close()

	worker := notify.NewWorker(notify.WorkerConfig{
		Config:   cfg.Queue,
		Queue:    qm,
		Sender:   webhook.NewSender(cfg.Webhook, appLog),
		Cabinets: db.NewCabinetRepository(pool),
		History:  db.NewNotificationRepository(pool),
		Metrics:  metrics.NewDefault(),
		Logger:   appLog,
	})

	go serveMetrics(cfg.Server.MetricsPort, logger)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("wbpulse notify worker stopped")
	return nil
}

func serveMetrics(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("metrics listener failed", "error", err.Error())
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
