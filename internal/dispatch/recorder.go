package dispatch

import (
	"context"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// Recorder persists attempt outcomes. Writes are best-effort isolated: a
// failed write is logged and counted but never aborts the dispatch loop,
// because one broken log row must not take down a running batch.
type Recorder struct {
	attempts repository.AttemptRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewRecorder(attempts repository.AttemptRepository, log *logger.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		attempts: attempts,
		logger:   log.WithComponent("recorder"),
		metrics:  m,
	}
}

// Record updates a pre-created attempt row with its outcome.
func (r *Recorder) Record(ctx context.Context, attempt *model.DispatchAttempt) {
	if err := r.attempts.Update(ctx, attempt); err != nil {
		r.metrics.RecorderFailures.Inc()
		r.logger.Error(err, "failed to record attempt outcome",
			"attempt_id", attempt.ID.String(),
			"status", string(attempt.Status))
		return
	}
	r.metrics.AttemptsTotal.WithLabelValues(string(attempt.Channel), string(attempt.Status)).Inc()
}

// RecordNew inserts a fresh attempt row; used by the single-send path where
// no row was pre-created.
func (r *Recorder) RecordNew(ctx context.Context, attempt *model.DispatchAttempt) {
	if err := r.attempts.Create(ctx, attempt); err != nil {
		r.metrics.RecorderFailures.Inc()
		r.logger.Error(err, "failed to record attempt",
			"guest_id", attempt.GuestID.String(),
			"status", string(attempt.Status))
		return
	}
	r.metrics.AttemptsTotal.WithLabelValues(string(attempt.Channel), string(attempt.Status)).Inc()
}
