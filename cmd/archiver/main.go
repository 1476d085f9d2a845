// Package main is the entry point for the notification archiver.
//
// It runs one archival pass: delivered and failed notifications older than
// the retention window are written to zstd-compressed NDJSON files and
// removed from Postgres. Intended to be scheduled externally (cron or a
// systemd timer).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wbpulse/internal/archive"
	"wbpulse/internal/config"
	"wbpulse/internal/db"
	"wbpulse/internal/types"
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
	logger.Info("wbpulse archiver starting",
		"dir", cfg.Archive.Dir,
		"retention", cfg.Archive.Retention.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	archiver := archive.NewArchiver(cfg.Archive, db.NewNotificationRepository(pool), types.NewLogger(logger))
	archived, err := archiver.Run(ctx)
	if err != nil {
		return fmt.Errorf("archival pass: %w", err)
	}

	logger.Info("archival pass complete", "archived", archived)
	return nil
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
