package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go_cfgsync/agent/config"
)

// Runner executes one sync
type Runner interface {
	RunOnce(ctx context.Context) error
}

// NextOccurrenceDelay returns the time until the next hour:minute in zone.
// A now exactly at the target yields a full day.
func NextOccurrenceDelay(now time.Time, hour, minute int, zone *time.Location) time.Duration {
	local := now.In(zone)
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, zone)
	if !local.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(local)
}

// Scheduler triggers syncs once after startup and then daily at a fixed wall-clock time
type Scheduler struct {
	cfg    *config.Config
	runner Runner
	logger *logrus.Entry
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler
func NewScheduler(cfg *config.Config, runner Runner, logger *logrus.Entry) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger.WithField("component", "scheduler"),
		now:    time.Now,
	}
}

// Start launches the startup trigger (when enabled) and the daily loop
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.SyncOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if !sleep(ctx, s.cfg.StartupDelay) {
				return
			}
			s.run(ctx, "startup")
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		zone := s.cfg.Zone()
		for {
			delay := NextOccurrenceDelay(s.now(), s.cfg.DailyHour, s.cfg.DailyMinute, zone)
			s.logger.WithField("in", delay.String()).Debug("next daily sync scheduled")
			if !sleep(ctx, delay) {
				return
			}
			s.run(ctx, "daily")
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"sync_on_start": s.cfg.SyncOnStart,
		"startup_delay": s.cfg.StartupDelay.String(),
		"daily_at":      time.Date(0, 1, 1, s.cfg.DailyHour, s.cfg.DailyMinute, 0, 0, time.UTC).Format("15:04"),
		"utc_offset":    s.cfg.UTCOffset,
	}).Info("scheduler started")
}

// Stop cancels pending triggers and waits for running syncs to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	entry := s.logger.WithField("trigger", trigger)
	if err := s.runner.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrInFlight) {
			entry.Info("sync skipped, previous run still in progress")
			return
		}
		entry.WithError(err).Error("scheduled sync failed")
	}
}

// sleep waits for d or ctx cancellation; it reports whether the wait completed
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
