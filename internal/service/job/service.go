package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/dispatch"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/email"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/messaging"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// Queue hands created jobs to the dispatch worker pool. Enqueue reports
// false when the pool is saturated; the job stays PENDING and the scheduler
// picks it up on its next sweep.
type Queue interface {
	Enqueue(jobID uuid.UUID) bool
}

// CreateInput is a validated bulk job request.
type CreateInput struct {
	TenantID         uuid.UUID
	EventID          uuid.UUID
	Type             model.MessageType
	GuestIDs         []uuid.UUID
	ChannelOverride  model.Channel
	TemplateOverride string
	ScheduledAt      *time.Time
}

// StatusView is the job row plus its per-guest attempt log.
type StatusView struct {
	Job      *model.BulkJob           `json:"job"`
	Summary  model.JobSummary         `json:"summary"`
	Attempts []*model.DispatchAttempt `json:"attempts"`
}

// Service orchestrates the bulk job lifecycle: creation, dispatch,
// status and cancellation.
type Service interface {
	Create(ctx context.Context, input *CreateInput) (*model.BulkJob, error)
	Dispatch(ctx context.Context, jobID uuid.UUID) error
	Get(ctx context.Context, tenantID, jobID uuid.UUID) (*StatusView, error)
	Cancel(ctx context.Context, tenantID, jobID uuid.UUID) (*model.BulkJob, error)
}

type service struct {
	jobs       repository.JobRepository
	attempts   repository.AttemptRepository
	guests     repository.GuestRepository
	events     repository.EventRepository
	tenants    repository.TenantRepository
	ledger     quota.Service
	sender     provider.Sender
	dispatcher *dispatch.Dispatcher
	queue      Queue
	broker     messaging.Broker
	mailer     *email.Mailer
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	jobs repository.JobRepository,
	attempts repository.AttemptRepository,
	guests repository.GuestRepository,
	events repository.EventRepository,
	tenants repository.TenantRepository,
	ledger quota.Service,
	sender provider.Sender,
	dispatcher *dispatch.Dispatcher,
	queue Queue,
	broker messaging.Broker,
	mailer *email.Mailer,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	return &service{
		jobs:       jobs,
		attempts:   attempts,
		guests:     guests,
		events:     events,
		tenants:    tenants,
		ledger:     ledger,
		sender:     sender,
		dispatcher: dispatcher,
		queue:      queue,
		broker:     broker,
		mailer:     mailer,
		logger:     log.WithComponent("job_service"),
		metrics:    m,
	}
}

// Create validates the request, snapshots the recipient set as PENDING
// attempt rows, and either queues the job or leaves it for the scheduler.
func (s *service) Create(ctx context.Context, input *CreateInput) (*model.BulkJob, error) {
	if !input.Type.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown message type: %s", input.Type), nil)
	}

	event, err := s.events.Get(ctx, input.EventID)
	if err != nil {
		return nil, apperrors.NotFound("event", err)
	}
	if event.TenantID != input.TenantID {
		return nil, apperrors.NotFound("event", nil)
	}

	// An empty recipient list targets every guest of the event; the
	// per-type eligibility filter below still applies.
	var guests []*model.Guest
	if len(input.GuestIDs) == 0 {
		guests, err = s.guests.List(ctx, &model.GuestFilters{EventID: input.EventID})
	} else {
		guests, err = s.guests.ListByIDs(ctx, input.EventID, input.GuestIDs)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	guests = s.eligible(input.Type, guests)
	if len(guests) == 0 {
		return nil, apperrors.BadRequest("no eligible recipients", nil)
	}

	if err := s.checkHeadroom(ctx, input, guests); err != nil {
		return nil, err
	}

	job := &model.BulkJob{
		TenantID:         input.TenantID,
		EventID:          input.EventID,
		Type:             input.Type,
		Status:           model.JobStatusPending,
		Total:            len(guests),
		ChannelOverride:  input.ChannelOverride,
		TemplateOverride: input.TemplateOverride,
	}
	if input.ScheduledAt != nil {
		job.ScheduledAt = *input.ScheduledAt
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.Internal(err)
	}

	attempts := make([]*model.DispatchAttempt, len(guests))
	for i, guest := range guests {
		attempts[i] = &model.DispatchAttempt{
			TenantID: input.TenantID,
			EventID:  input.EventID,
			GuestID:  guest.ID,
			JobID:    &job.ID,
			Type:     input.Type,
			Status:   model.AttemptStatusPending,
		}
	}
	if err := s.attempts.CreateBatch(ctx, attempts); err != nil {
		return nil, apperrors.Internal(err)
	}

	if !job.ScheduledAt.After(time.Now()) {
		if !s.queue.Enqueue(job.ID) {
			s.logger.Warn("dispatch pool saturated, job deferred to scheduler",
				"job_id", job.ID.String())
		}
	}
	return job, nil
}

// Dispatch claims and runs one job end to end. It is safe to call from
// multiple workers: only the caller that wins the PENDING to PROCESSING
// transition proceeds.
func (s *service) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	claimed, err := s.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		return nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	s.metrics.JobsActive.Inc()
	defer s.metrics.JobsActive.Dec()
	s.publish(ctx, messaging.EventJobStarted, job)

	event, err := s.events.Get(ctx, job.EventID)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("event unavailable: %v", err))
	}
	tenant, err := s.tenants.Get(ctx, job.TenantID)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("tenant unavailable: %v", err))
	}

	// Missing credentials fail the whole job up front; no attempt runs and
	// no quota is touched.
	if !s.sender.Configured(job.Type) {
		return s.fail(ctx, job, provider.ErrNotConfigured.Error())
	}

	tasks, err := s.loadTasks(ctx, job)
	if err != nil {
		return s.fail(ctx, job, fmt.Sprintf("failed to load recipients: %v", err))
	}

	opts := provider.SendOptions{
		ChannelOverride:  job.ChannelOverride,
		TemplateOverride: job.TemplateOverride,
		CallerNumber:     tenant.CallerNumber,
		Region:           tenant.DefaultRegion,
	}
	summary, err := s.dispatcher.Run(ctx, job, event, tasks, opts)
	if err != nil {
		s.logger.Error(err, "dispatch run aborted", "job_id", job.ID.String())
	}

	final := model.JobStatusCompleted
	eventType := messaging.EventJobCompleted
	if summary != nil && summary.Cancelled {
		final = model.JobStatusCancelled
		eventType = messaging.EventJobCancelled
		if _, err := s.attempts.CancelPendingByJob(ctx, job.ID); err != nil {
			s.logger.Error(err, "failed to cancel remaining attempts", "job_id", job.ID.String())
		}
	}
	if err := s.jobs.Finish(ctx, job.ID, final, ""); err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	job, err = s.jobs.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job: %w", err)
	}
	// A cancel that landed during the last window wins; Finish refuses to
	// overwrite a terminal status.
	if job.Status == model.JobStatusCancelled && final != model.JobStatusCancelled {
		final = model.JobStatusCancelled
		eventType = messaging.EventJobCancelled
	}
	s.metrics.JobsTotal.WithLabelValues(string(final)).Inc()
	s.publish(ctx, eventType, job)
	s.mailSummary(tenant, event, job)
	return nil
}

// Get returns the job with its attempt log, scoped to the owning tenant.
func (s *service) Get(ctx context.Context, tenantID, jobID uuid.UUID) (*StatusView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, apperrors.NotFound("job", err)
	}
	if job.TenantID != tenantID {
		return nil, apperrors.NotFound("job", nil)
	}

	attempts, err := s.attempts.ListByJob(ctx, jobID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &StatusView{Job: job, Summary: job.Summary(), Attempts: attempts}, nil
}

// Cancel requests cooperative cancellation. A PENDING job cancels fully; a
// PROCESSING job finishes its in-flight window first. Terminal jobs conflict.
func (s *service) Cancel(ctx context.Context, tenantID, jobID uuid.UUID) (*model.BulkJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, apperrors.NotFound("job", err)
	}
	if job.TenantID != tenantID {
		return nil, apperrors.NotFound("job", nil)
	}
	if job.Status.Terminal() {
		return nil, apperrors.Conflict(fmt.Sprintf("job is already %s", job.Status))
	}

	if job.Status == model.JobStatusPending {
		// Not yet claimed by a worker; cancel immediately.
		if err := s.jobs.Finish(ctx, jobID, model.JobStatusCancelled, ""); err != nil {
			return nil, apperrors.Internal(err)
		}
		if _, err := s.attempts.CancelPendingByJob(ctx, jobID); err != nil {
			s.logger.Error(err, "failed to cancel pending attempts", "job_id", jobID.String())
		}
		s.metrics.JobsTotal.WithLabelValues(string(model.JobStatusCancelled)).Inc()
	} else {
		// The dispatcher observes the persisted status at its next window
		// boundary and stops.
		if err := s.jobs.Finish(ctx, jobID, model.JobStatusCancelled, ""); err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	job, err = s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.publish(ctx, messaging.EventJobCancelled, job)
	return job, nil
}

// eligible filters the recipient set per message type. Reminders skip
// guests who already answered.
func (s *service) eligible(msgType model.MessageType, guests []*model.Guest) []*model.Guest {
	if msgType != model.MessageTypeReminder && msgType != model.MessageTypeInteractiveReminder {
		return guests
	}
	out := guests[:0]
	for _, g := range guests {
		if !g.RSVPStatus.Responded() {
			out = append(out, g)
		}
	}
	return out
}

// checkHeadroom is the advisory pre-dispatch gate: creation is rejected
// only when every channel the batch would use is already exhausted. The
// per-attempt consume inside the dispatcher is authoritative.
func (s *service) checkHeadroom(ctx context.Context, input *CreateInput, guests []*model.Guest) error {
	opts := provider.SendOptions{ChannelOverride: input.ChannelOverride}
	perChannel := map[model.Channel]int{}
	for _, g := range guests {
		ch := provider.ResolveChannel(input.Type, g.Phone, opts)
		perChannel[ch]++
	}

	anyHeadroom := false
	for ch, count := range perChannel {
		res, err := s.ledger.Reserve(ctx, input.TenantID, ch, count)
		if err != nil {
			return apperrors.Internal(err)
		}
		if res.Allowed || res.Remaining > 0 || res.Remaining == quota.Unlimited {
			anyHeadroom = true
		}
	}
	if !anyHeadroom {
		return apperrors.QuotaExceeded("monthly send limit reached for all requested channels")
	}
	return nil
}

// loadTasks pairs the job's still-PENDING attempt rows with their guests.
func (s *service) loadTasks(ctx context.Context, job *model.BulkJob) ([]dispatch.Task, error) {
	attempts, err := s.attempts.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(attempts))
	for _, a := range attempts {
		if a.Status == model.AttemptStatusPending {
			ids = append(ids, a.GuestID)
		}
	}
	guests, err := s.guests.ListByIDs(ctx, job.EventID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Guest, len(guests))
	for _, g := range guests {
		byID[g.ID] = g
	}

	tasks := make([]dispatch.Task, 0, len(ids))
	var orphaned []*model.DispatchAttempt
	for _, a := range attempts {
		if a.Status != model.AttemptStatusPending {
			continue
		}
		guest, ok := byID[a.GuestID]
		if !ok {
			orphaned = append(orphaned, a)
			continue
		}
		tasks = append(tasks, dispatch.Task{Attempt: a, Guest: guest})
	}
	if len(orphaned) > 0 {
		s.failOrphaned(ctx, job, orphaned)
	}
	return tasks, nil
}

// failOrphaned settles attempts whose guest was deleted between job
// creation and dispatch. They count as processed failures so the job still
// finishes with every attempt terminal.
func (s *service) failOrphaned(ctx context.Context, job *model.BulkJob, orphaned []*model.DispatchAttempt) {
	for _, a := range orphaned {
		a.Status = model.AttemptStatusFailed
		a.ErrorCode = model.ErrCodeGuestMissing
		a.ErrorMessage = "guest no longer exists"
		if err := s.attempts.Update(ctx, a); err != nil {
			s.logger.Error(err, "failed to settle orphaned attempt", "attempt_id", a.ID.String())
		}
	}
	if err := s.jobs.AddCounters(ctx, job.ID, len(orphaned), 0, len(orphaned), 0); err != nil {
		s.logger.Error(err, "failed to count orphaned attempts", "job_id", job.ID.String())
	}
}

func (s *service) fail(ctx context.Context, job *model.BulkJob, reason string) error {
	if _, err := s.attempts.CancelPendingByJob(ctx, job.ID); err != nil {
		s.logger.Error(err, "failed to cancel attempts of failed job", "job_id", job.ID.String())
	}
	if err := s.jobs.Finish(ctx, job.ID, model.JobStatusFailed, reason); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	s.metrics.JobsTotal.WithLabelValues(string(model.JobStatusFailed)).Inc()
	job.Status = model.JobStatusFailed
	job.FailReason = reason
	s.publish(ctx, messaging.EventJobFailed, job)
	return nil
}

func (s *service) publish(ctx context.Context, eventType string, job *model.BulkJob) {
	if s.broker == nil {
		return
	}
	msg := messaging.Message{Type: eventType, Payload: job}
	if err := s.broker.Publish(ctx, "jobs:"+job.TenantID.String(), msg); err != nil {
		s.metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		s.logger.Error(err, "failed to publish job event",
			"job_id", job.ID.String(), "event_type", eventType)
		return
	}
	s.metrics.EventsPublished.WithLabelValues(eventType, "success").Inc()
}

func (s *service) mailSummary(tenant *model.Tenant, event *model.Event, job *model.BulkJob) {
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	if err := s.mailer.SendJobSummary(tenant, event, job); err != nil {
		s.logger.Error(err, "failed to send job summary email", "job_id", job.ID.String())
	}
}
