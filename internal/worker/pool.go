package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
)

// Handler runs one claimed job to completion.
type Handler func(ctx context.Context, jobID uuid.UUID) error

// Pool runs bulk jobs on a bounded set of workers. Enqueue is non-blocking:
// when the buffer is full the job stays PENDING in the database and the
// scheduler re-offers it on a later sweep, so nothing is lost.
type Pool struct {
	jobs    chan uuid.UUID
	workers int
	logger  *logger.Logger
	wg      sync.WaitGroup
}

func NewPool(workers, buffer int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Pool{
		jobs:    make(chan uuid.UUID, buffer),
		workers: workers,
		logger:  log.WithComponent("dispatch_pool"),
	}
}

// Enqueue offers a job to the pool. Reports false when the buffer is full.
func (p *Pool) Enqueue(jobID uuid.UUID) bool {
	select {
	case p.jobs <- jobID:
		return true
	default:
		return false
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled.
func (p *Pool) Start(ctx context.Context, handler Handler) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, handler)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int, handler Handler) {
	defer p.wg.Done()
	log := p.logger.WithFields(map[string]interface{}{"worker": id})

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.jobs:
			p.handle(ctx, log, jobID, handler)
		}
	}
}

func (p *Pool) handle(ctx context.Context, log *logger.Logger, jobID uuid.UUID, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("panic: %v", r), "job handler panicked", "job_id", jobID.String())
		}
	}()

	log.Info("dispatching job", "job_id", jobID.String())
	if err := handler(ctx, jobID); err != nil {
		log.Error(err, "job dispatch failed", "job_id", jobID.String())
		return
	}
	log.Info("job dispatched", "job_id", jobID.String())
}
