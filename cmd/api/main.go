// Package main is the entry point for the wbpulse management API server.
//
// It connects Postgres and the local badger store, wires the repositories
// into the HTTP handlers, and serves the management API until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wbpulse/internal/api/handlers"
	"wbpulse/internal/config"
	"wbpulse/internal/core"
	"wbpulse/internal/db"
	"wbpulse/internal/detect"
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
	logger.Info("wbpulse API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
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

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.AddHealthCheck(dbCheck{pool})
	srv.AddHealthCheck(storeCheck{kv})

	cabinetRepo := db.NewCabinetRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	statuses := detect.NewStatusMonitor(kv)
	sender := webhook.NewSender(cfg.Webhook, types.NewLogger(logger))

	cabinetHandler := handlers.NewCabinetHandler(srv, cabinetRepo, statuses, sender)
	settingsHandler := handlers.NewSettingsHandler(srv, settingsRepo, cabinetRepo)
	notifHandler := handlers.NewNotificationHandler(srv, notifRepo, qm)

	srv.MountRoutes(func(r chi.Router) {
		cabinetHandler.RegisterRoutes(r)
		settingsHandler.RegisterRoutes(r)
		notifHandler.RegisterRoutes(r)
	})

	return srv.ListenAndServe(ctx)
}

type dbCheck struct{ pool *pgxpool.Pool }

func (c dbCheck) Name() string                     { return "postgres" }
func (c dbCheck) Health(ctx context.Context) error { return c.pool.Ping(ctx) }

type storeCheck struct{ store *store.Store }

func (c storeCheck) Name() string                     { return "store" }
func (c storeCheck) Health(ctx context.Context) error { return c.store.Health(ctx) }

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
