// Package scheduler runs named jobs at fixed intervals.
//
// Every due run starts on its own goroutine, so a slow run never delays the
// next one and runs of the same job may overlap. Jobs that must not run
// twice at once need their own exclusion; the poll job relies on the store's
// unique insert instead.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/observability"
	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner with constant-delay schedules.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a stopped Scheduler. Jobs receive a context carrying the
// values of ctx but not its cancellation, so shutdown lets in-flight runs
// finish.
func New(ctx context.Context, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		ctx:     context.WithoutCancel(ctx),
		logger:  logger,
		metrics: metrics,
	}
}

// Every registers job to run each interval, starting one interval after
// Start. Sub-second remainders are truncated, and intervals shorter than a
// second run every second.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", name, interval)
	}
	schedule := cron.Every(interval)
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.metrics.JobRuns.WithLabelValues(name).Inc()
		start := time.Now()
		job(s.ctx)
		s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
	}))
	s.logger.Info("job scheduled", "job", name, "interval", schedule.Delay)
	return nil
}

// Start begins dispatching in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs. The returned context is done once every in-flight
// run has returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// cronLogger adapts slog to cron.Logger. Cron's own Info messages are
// scheduler chatter and go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
