// File: internal/scheduler/scheduler.go

// Package scheduler triggers application runs on configured cron
// schedules for the watch mode of operation.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of scheduled work.
type Job func()

// Scheduler manages the cron entries that drive recurring runs.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	logger *zap.Logger
}

// New creates a scheduler around a single job. Standard five field cron
// expressions are accepted.
func New(job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		job:    job,
		logger: logger.Named("scheduler"),
	}
}

// Register adds one cron entry per spec, all firing the same job.
func (s *Scheduler) Register(specs []string) error {
	if len(specs) == 0 {
		return fmt.Errorf("no cron schedules configured")
	}
	for _, spec := range specs {
		if _, err := s.cron.AddFunc(spec, s.runJob); err != nil {
			return fmt.Errorf("register schedule %q: %w", spec, err)
		}
		s.logger.Info("Schedule registered.", zap.String("spec", spec))
	}
	return nil
}

// EntryCount reports how many schedules are registered.
func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}

// Start begins firing registered schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started.", zap.Int("schedules", s.EntryCount()))
}

// Stop halts the scheduler and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped.")
}

// RunNow fires the job immediately, outside any schedule.
func (s *Scheduler) RunNow() {
	s.runJob()
}

func (s *Scheduler) runJob() {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Scheduled run panicked.", zap.Any("panic", rec))
		}
	}()
	s.job()
}
