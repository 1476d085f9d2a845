// Package main is the entry point for the sync worker.
//
// On the configured cron cadence it pulls fresh orders, sales, stocks and
// reviews from Wildberries for every active cabinet, detects change events
// against the stored snapshot, and enqueues notifications for delivery.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wbpulse/internal/config"
	"wbpulse/internal/db"
	"wbpulse/internal/detect"
	"wbpulse/internal/metrics"
	"wbpulse/internal/notify"
	"wbpulse/internal/queue"
	"wbpulse/internal/store"
	"wbpulse/internal/syncer"
	"wbpulse/internal/types"
	"wbpulse/internal/wb"
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
	logger.Info("wbpulse sync worker starting",
		"environment", cfg.Environment,
		"cron", cfg.Sync.CronSpec,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

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

	m := metrics.NewDefault()
	cabinetRepo := db.NewCabinetRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)

	pipeline := notify.NewService(notify.ServiceConfig{
		Settings: db.NewSettingsRepository(pool),
		Ledger:   notifRepo,
		History:  notifRepo,
		Queue:    qm,
		Metrics:  m,
		Logger:   appLog,
	})

	svc := syncer.NewService(syncer.ServiceConfig{
		Config:   cfg.Sync,
		API:      wb.NewClient(cfg.WB),
		Cabinets: cabinetRepo,
		Snaps: &syncer.RepoSnapshotStore{
			Orders:  db.NewOrderRepository(pool),
			Sales:   db.NewSaleRepository(pool),
			Reviews: db.NewReviewRepository(pool),
			Stocks:  db.NewStockRepository(pool),
		},
		Statuses: detect.NewStatusMonitor(kv),
		Pipeline: pipeline,
		Metrics:  m,
		Logger:   appLog,
	})

	sched, err := syncer.NewScheduler(cfg.Sync, svc, appLog)
	if err != nil {
		return err
	}

	go serveMetrics(cfg.Server.MetricsPort, logger)

	// One immediate run so a fresh deployment does not wait a full cron
	// period before syncing.
	if err := svc.RunOnce(ctx); err != nil {
		logger.Error("initial sync run failed", "error", err.Error())
	}

	sched.Start()
	<-ctx.Done()
	sched.Stop()
	logger.Info("wbpulse sync worker stopped")
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
