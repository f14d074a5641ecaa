package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDigest/internal/ports"
	pkglogger "NewsDigest/pkg/logger"
)

// CronScheduler fires jobs on a standard five-field cron expression.
type CronScheduler struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates expr and binds it to loc (UTC when nil).
func NewCronScheduler(expr string, loc *time.Location, log *slog.Logger) (*CronScheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{expr: expr, schedule: schedule, location: loc, logger: log}, nil
}

// Next returns the first activation strictly after t, in the scheduler's location.
func (c *CronScheduler) Next(t time.Time) time.Time {
	return c.schedule.Next(t.In(c.location))
}

// Start registers job and begins the cron loop.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return errors.New("scheduler already started")
	}

	cronLog := cron.PrintfLogger(pkglogger.New(c.logger, "cron"))
	runner := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	id, err := runner.AddFunc(c.expr, func() {
		if ctx.Err() != nil {
			return
		}
		job(time.Now().In(c.location))
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	c.cron, c.entryID = runner, id
	runner.Start()
	if c.logger != nil {
		c.logger.Info("scheduler started", "cron", c.expr, "location", c.location.String(), "next", c.Next(time.Now()))
	}
	return nil
}

// Stop halts the cron loop and waits for a running job or ctx expiry.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}
	runner.Remove(c.entryID)
	select {
	case <-runner.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
