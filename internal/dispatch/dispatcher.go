package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// Defaults chosen for provider burst limits: three calls in flight, a
// second of breathing room between windows.
const (
	DefaultConcurrency = 3
	DefaultWindowDelay = time.Second
)

// Config tunes the windowed dispatch loop.
type Config struct {
	Concurrency int
	WindowDelay time.Duration
}

// Task pairs a pre-created PENDING attempt row with its guest.
type Task struct {
	Attempt *model.DispatchAttempt
	Guest   *model.Guest
}

// Summary aggregates a run's outcome. Counters satisfy
// processed == success + failed and processed <= total; quota-denied tasks
// count as failed and additionally as skipped.
type Summary struct {
	Total        int
	Processed    int
	Success      int
	Failed       int
	SkippedLimit int
	Cancelled    bool
}

// Dispatcher executes a job's tasks in fixed-size windows. All tasks in a
// window run concurrently; the loop waits for the window to settle, flushes
// records and counters, checks for cooperative cancellation, and only then
// starts the next window. Bounded in-flight calls beat raw throughput here:
// the providers rate-limit bursts.
type Dispatcher struct {
	cfg      Config
	sender   provider.Sender
	ledger   quota.Service
	recorder *Recorder
	jobs     repository.JobRepository
	guests   repository.GuestRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(
	cfg Config,
	sender provider.Sender,
	ledger quota.Service,
	recorder *Recorder,
	jobs repository.JobRepository,
	guests repository.GuestRepository,
	log *logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.WindowDelay <= 0 {
		cfg.WindowDelay = DefaultWindowDelay
	}
	return &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		ledger:   ledger,
		recorder: recorder,
		jobs:     jobs,
		guests:   guests,
		logger:   log.WithComponent("dispatcher"),
		metrics:  m,
	}
}

// Run processes tasks in windowing order. It returns early with
// Summary.Cancelled set when the job's persisted status flips to CANCELLED
// at a window boundary; the in-flight window always settles first.
func (d *Dispatcher) Run(ctx context.Context, job *model.BulkJob, event *model.Event, tasks []Task, opts provider.SendOptions) (*Summary, error) {
	summary := &Summary{Total: len(tasks)}

	for start := 0; start < len(tasks); start += d.cfg.Concurrency {
		end := start + d.cfg.Concurrency
		if end > len(tasks) {
			end = len(tasks)
		}
		window := tasks[start:end]

		timer := prometheus.NewTimer(d.metrics.WindowDuration)
		d.runWindow(ctx, job, event, window, opts, summary)
		timer.ObserveDuration()

		if err := d.flushWindow(ctx, job, window, summary); err != nil {
			d.logger.Error(err, "failed to flush window counters", "job_id", job.ID.String())
		}

		if end >= len(tasks) {
			break
		}

		cancelled, err := d.jobCancelled(ctx, job)
		if err != nil {
			d.logger.Error(err, "failed to check job status", "job_id", job.ID.String())
		}
		if cancelled {
			summary.Cancelled = true
			return summary, nil
		}

		select {
		case <-ctx.Done():
			summary.Cancelled = true
			return summary, ctx.Err()
		case <-time.After(d.cfg.WindowDelay):
		}
	}

	return summary, nil
}

// runWindow runs every task in the window concurrently and waits for all of
// them to settle. Task outcomes are written into the task's attempt; the
// mutex guards the shared summary counters.
func (d *Dispatcher) runWindow(ctx context.Context, job *model.BulkJob, event *model.Event, window []Task, opts provider.SendOptions, summary *Summary) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := range window {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			defer func() {
				// One panicking task must not take down its window.
				if p := recover(); p != nil {
					d.logger.Error(fmt.Errorf("panic: %v", p), "task panicked",
						"attempt_id", task.Attempt.ID.String())
					task.Attempt.Status = model.AttemptStatusFailed
					task.Attempt.ErrorCode = model.ErrCodeProvider
					task.Attempt.ErrorMessage = fmt.Sprintf("internal error: %v", p)
					mu.Lock()
					summary.Processed++
					summary.Failed++
					mu.Unlock()
				}
			}()

			skippedLimit := d.runTask(ctx, job, event, task, opts)

			mu.Lock()
			summary.Processed++
			if task.Attempt.Status.Success() {
				summary.Success++
			} else {
				summary.Failed++
				if skippedLimit {
					summary.SkippedLimit++
				}
			}
			mu.Unlock()
		}(window[i])
	}

	wg.Wait()
}

// runTask executes one recipient end to end: quota consume, provider call,
// refund on failure. Reports whether the task was denied by quota.
func (d *Dispatcher) runTask(ctx context.Context, job *model.BulkJob, event *model.Event, task Task, opts provider.SendOptions) bool {
	attempt := task.Attempt
	channel := provider.ResolveChannel(attempt.Type, task.Guest.Phone, opts)
	attempt.Channel = channel

	// Quota is consumed before the provider call and refunded on failure.
	// Check-then-send without the atomic consume would let two tasks in the
	// same window both spend the last unit.
	res, err := d.ledger.Consume(ctx, job.TenantID, channel)
	if err != nil {
		attempt.Status = model.AttemptStatusFailed
		attempt.ErrorCode = model.ErrCodeProvider
		attempt.ErrorMessage = err.Error()
		return false
	}
	if !res.Allowed {
		attempt.Status = model.AttemptStatusFailed
		attempt.ErrorCode = model.ErrCodeQuotaExceeded
		attempt.ErrorMessage = fmt.Sprintf("quota %s for channel %s", res.Reason, channel)
		return true
	}

	callStart := time.Now()
	result := d.sender.Dispatch(ctx, attempt.Type, task.Guest, event, opts)
	d.metrics.ProviderLatency.WithLabelValues(string(result.Channel)).Observe(time.Since(callStart).Seconds())

	ApplyResult(attempt, result)

	if !result.Success {
		if err := d.ledger.Release(ctx, job.TenantID, channel); err != nil {
			d.logger.Error(err, "failed to release quota after failed send",
				"attempt_id", attempt.ID.String())
		}
		return false
	}

	if attempt.Type != model.MessageTypeCall {
		if err := d.guests.MarkInvited(ctx, task.Guest.ID, time.Now()); err != nil {
			d.logger.Error(err, "failed to mark guest invited", "guest_id", task.Guest.ID.String())
		}
	}
	return false
}

// flushWindow writes attempt rows and rolls window counts into the job row.
func (d *Dispatcher) flushWindow(ctx context.Context, job *model.BulkJob, window []Task, summary *Summary) error {
	var processed, success, failed, skipped int
	for _, task := range window {
		d.recorder.Record(ctx, task.Attempt)
		processed++
		if task.Attempt.Status.Success() {
			success++
		} else {
			failed++
			if task.Attempt.ErrorCode == model.ErrCodeQuotaExceeded {
				skipped++
			}
		}
	}
	return d.jobs.AddCounters(ctx, job.ID, processed, success, failed, skipped)
}

func (d *Dispatcher) jobCancelled(ctx context.Context, job *model.BulkJob) (bool, error) {
	status, err := d.jobs.GetStatus(ctx, job.ID)
	if err != nil {
		return false, err
	}
	return status == model.JobStatusCancelled, nil
}

// ApplyResult copies the provider outcome onto the attempt row and stamps
// the type-appropriate timestamps. Shared with the single-send path.
func ApplyResult(attempt *model.DispatchAttempt, result *provider.DispatchResult) {
	now := time.Now()
	attempt.Status = result.Status
	if result.Channel != "" {
		attempt.Channel = result.Channel
	}
	attempt.ProviderResponse = result.ProviderResponse
	attempt.ErrorCode = result.ErrorCode
	attempt.ErrorMessage = result.ErrorMessage

	if attempt.Type.IsCall() {
		attempt.StartedAt = &now
		if result.Status.Terminal() {
			attempt.EndedAt = &now
		}
		return
	}
	if result.Success {
		attempt.SentAt = &now
	}
}
