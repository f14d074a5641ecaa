package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"NewsDigest/internal/ports"
)

// TriggerSchedule marks runs submitted by the scheduler.
const TriggerSchedule = "schedule"

// Scheduler wires the cron driver with the run queue.
type Scheduler struct {
	driver ports.Scheduler
	runner *Runner
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, runner *Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, runner: runner, logger: log}
}

// Start registers run submission with the provided scheduler. A tick that
// finds a run in progress is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil {
		return nil
	}

	job := func(tick time.Time) {
		run, err := s.runner.Submit(ctx, TriggerSchedule)
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.log(slog.LevelWarn, "scheduled run skipped, runner busy", "tick", tick)
		case err != nil:
			s.log(slog.LevelError, "scheduled run not submitted", "tick", tick, "error", err)
		default:
			s.log(slog.LevelInfo, "scheduled run submitted", "tick", tick, "run_id", run.ID)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) log(level slog.Level, msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}
