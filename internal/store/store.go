// Package store provides the embedded BadgerDB instance shared by the
// notification priority queue and the order status monitor.
//
// BadgerDB gives us low-latency local key-value access without an external
// service dependency. State that must survive worker restarts (queued
// notifications, last-seen order statuses) lives here; relational data lives
// in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"wbpulse/internal/config"
)

// Store wraps a badger.DB with lifecycle management.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	gcInterval     time.Duration
	gcDiscardRatio float64
	stopGC         chan struct{}
	gcDone         chan struct{}
}

// Open creates or opens the store at the configured path. With
// cfg.InMemory=true no files are touched; this mode exists for tests.
func Open(cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: path is required for persistent mode")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open badger at %q: %w", cfg.Path, err)
	}

	s := &Store{
		db:             db,
		logger:         logger,
		gcInterval:     cfg.GCInterval,
		gcDiscardRatio: cfg.GCDiscardRatio,
		stopGC:         make(chan struct{}),
		gcDone:         make(chan struct{}),
	}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		go s.runGC()
	} else {
		close(s.gcDone)
	}

	return s, nil
}

// OpenInMemory returns a throwaway in-memory store for tests.
func OpenInMemory() (*Store, error) {
	return Open(config.StoreConfig{InMemory: true}, slog.Default())
}

// DB exposes the underlying badger handle for transaction use.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	<-s.gcDone
	return s.db.Close()
}

// runGC periodically reclaims value-log space. Badger returns ErrNoRewrite
// when there is nothing to collect; that is not an error condition.
func (s *Store) runGC() {
	defer close(s.gcDone)

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.gcDiscardRatio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Warn("value log GC failed", "error", err)
					}
					break
				}
			}
		}
	}
}

// Health verifies the store is usable by running an empty view transaction.
func (s *Store) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
