package worker

import (
	"context"
	"time"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultPollBatch    = 50
)

// Scheduler sweeps the jobs table for PENDING work that is due: scheduled
// jobs whose time arrived, and immediate jobs that missed the in-process
// queue because the pool was saturated or the process restarted.
type Scheduler struct {
	jobs     repository.JobRepository
	pool     *Pool
	interval time.Duration
	batch    int
	logger   *logger.Logger
}

func NewScheduler(jobs repository.JobRepository, pool *Pool, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Scheduler{
		jobs:     jobs,
		pool:     pool,
		interval: interval,
		batch:    defaultPollBatch,
		logger:   log.WithComponent("scheduler"),
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.jobs.ListDue(ctx, time.Now(), s.batch)
	if err != nil {
		s.logger.Error(err, "failed to list due jobs")
		return
	}
	for _, job := range due {
		// Claiming happens inside the handler; offering a job twice is
		// harmless because only one claim wins.
		if !s.pool.Enqueue(job.ID) {
			s.logger.Warn("dispatch pool full, deferring remaining due jobs")
			return
		}
	}
}
