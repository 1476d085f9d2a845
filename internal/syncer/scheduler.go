package syncer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

// Scheduler triggers sync runs on a cron cadence. Overlapping runs are
// prevented: a tick that fires while a run is in flight is skipped.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  types.Logger
	running chan struct{}
}

// NewScheduler wires the sync service onto the configured cron spec.
func NewScheduler(cfg config.SyncConfig, svc *Service, logger types.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		service: svc,
		logger:  logger,
		running: make(chan struct{}, 1),
	}
	if _, err := s.cron.AddFunc(cfg.CronSpec, s.tick); err != nil {
		return nil, fmt.Errorf("syncer: invalid cron spec %q: %w", cfg.CronSpec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	select {
	case s.running <- struct{}{}:
	default:
		s.logger.Warn("sync run still in flight, skipping tick")
		return
	}
	defer func() { <-s.running }()

	if err := s.service.RunOnce(context.Background()); err != nil {
		s.logger.Error("sync run failed", "error", err.Error())
	}
}

// Start begins scheduling. Returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started")
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running <- struct{}{}
	<-s.running
	s.logger.Info("sync scheduler stopped")
}
