// Package scheduler runs periodic maintenance jobs on cron schedules in the
// exchange timezone.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *slog.Logger

	// OnResult is called after every run with the job's error (nil on
	// success).
	OnResult func(job string, err error)
}

// New creates a scheduler whose schedules are read in loc. Jobs receive
// ctx and should stop when it is cancelled.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		ctx:  ctx,
		log:  slog.Default().With("component", "scheduler"),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers job on a standard five-field cron schedule or a
// descriptor such as "@daily" or "@every 1h".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow(job) }); err != nil {
		return err
	}
	s.log.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	start := time.Now()
	err := job.Run(s.ctx)
	if err != nil {
		s.log.Error("job failed", "job", job.Name(), "error", err)
	} else {
		s.log.Debug("job completed", "job", job.Name(), "took", time.Since(start))
	}
	if s.OnResult != nil {
		s.OnResult(job.Name(), err)
	}
	return err
}
