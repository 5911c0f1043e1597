// Package scheduler drives the periodic feed checks and history retention.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"feedwatch/internal/checker"
	"feedwatch/internal/storage"
)

const retentionCadence = 24 * time.Hour

// Scheduler owns the cron entries for feed checking and notification-history
// retention. Overlap protection lives in the checker itself: a tick that
// fires while the previous cycle is still running is skipped, not queued.
type Scheduler struct {
	cron          *cron.Cron
	checker       *checker.Checker
	store         storage.Storage
	log           *slog.Logger
	checkInterval time.Duration
	retentionDays int
}

// New creates a Scheduler checking feeds every checkInterval and purging
// history older than retentionDays.
func New(chk *checker.Checker, store storage.Storage, checkInterval time.Duration, retentionDays int, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		checker:       chk,
		store:         store,
		log:           log,
		checkInterval: checkInterval,
		retentionDays: retentionDays,
	}
}

// Start registers the cron entries and launches an immediate purge and feed
// check. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every "+s.checkInterval.String(), func() {
		s.checker.CheckAll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule feed check: %w", err)
	}
	if _, err := s.cron.AddFunc("@every "+retentionCadence.String(), func() {
		s.purge(ctx)
	}); err != nil {
		return fmt.Errorf("schedule retention purge: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "check_interval", s.checkInterval, "retention_days", s.retentionDays)

	go func() {
		s.purge(ctx)
		s.checker.CheckAll(ctx)
	}()
	return nil
}

// Stop halts the cron entries and waits for any running job to finish, up to
// the grace period. Returns false when the grace period expired first.
func (s *Scheduler) Stop(grace time.Duration) bool {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		s.log.Warn("feed check did not finish before shutdown grace expired")
		return false
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	removed, err := s.store.PurgeNotifications(ctx, s.retentionDays)
	if err != nil {
		s.log.Error("purge notification history", "error", err)
		return
	}
	if removed > 0 {
		s.log.Info("purged notification history", "removed", removed, "retention_days", s.retentionDays)
	}
}
