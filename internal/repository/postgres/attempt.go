package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
)

type attemptRepository struct {
	*BaseRepository
}

func NewAttemptRepository(base *BaseRepository) repository.AttemptRepository {
	return &attemptRepository{BaseRepository: base}
}

const attemptColumns = `
	id, tenant_id, event_id, guest_id, job_id, type, channel, status,
	provider_response, error_code, error_message, sent_at, started_at,
	ended_at, created_at, updated_at, deleted_at
`

const attemptInsert = `
	INSERT INTO dispatch_attempts (
		id, tenant_id, event_id, guest_id, job_id, type, channel, status,
		provider_response, error_code, error_message, sent_at, started_at,
		ended_at, created_at, updated_at
	) VALUES (
		:id, :tenant_id, :event_id, :guest_id, :job_id, :type, :channel, :status,
		:provider_response, :error_code, :error_message, :sent_at, :started_at,
		:ended_at, :created_at, :updated_at
	)
`

func (r *attemptRepository) Create(ctx context.Context, attempt *model.DispatchAttempt) error {
	now := time.Now()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	if attempt.Status == "" {
		attempt.Status = model.AttemptStatusPending
	}

	if _, err := r.db.NamedExecContext(ctx, attemptInsert, attempt); err != nil {
		return fmt.Errorf("failed to create dispatch attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) CreateBatch(ctx context.Context, attempts []*model.DispatchAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	now := time.Now()
	for _, a := range attempts {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.CreatedAt = now
		a.UpdatedAt = now
		if a.Status == "" {
			a.Status = model.AttemptStatusPending
		}
	}

	if _, err := r.db.NamedExecContext(ctx, attemptInsert, attempts); err != nil {
		return fmt.Errorf("failed to create dispatch attempts: %w", err)
	}
	return nil
}

func (r *attemptRepository) Get(ctx context.Context, id uuid.UUID) (*model.DispatchAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM dispatch_attempts WHERE id = $1`

	var attempt model.DispatchAttempt
	if err := r.db.GetContext(ctx, &attempt, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("attempt %s not found", id)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (r *attemptRepository) Update(ctx context.Context, attempt *model.DispatchAttempt) error {
	attempt.UpdatedAt = time.Now()
	query := `
		UPDATE dispatch_attempts
		SET status = :status, channel = :channel, provider_response = :provider_response,
		    error_code = :error_code, error_message = :error_message,
		    sent_at = :sent_at, started_at = :started_at, ended_at = :ended_at,
		    updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*model.DispatchAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM dispatch_attempts
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`

	var attempts []*model.DispatchAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (r *attemptRepository) CancelPendingByJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	query := `
		UPDATE dispatch_attempts
		SET status = $1, updated_at = $2
		WHERE job_id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, model.AttemptStatusCancelled, time.Now(), jobID, model.AttemptStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending attempts: %w", err)
	}
	return res.RowsAffected()
}

// CountSuccessesSince derives the tenant's real usage for a channel from the
// attempt log; the reconciler uses it to repair counter drift.
func (r *attemptRepository) CountSuccessesSince(ctx context.Context, tenantID uuid.UUID, channel model.Channel, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM dispatch_attempts
		WHERE tenant_id = $1 AND channel = $2 AND created_at >= $3
		  AND status = ANY($4)
	`
	successStatuses := []string{
		string(model.AttemptStatusSent),
		string(model.AttemptStatusDelivered),
		string(model.AttemptStatusCalling),
		string(model.AttemptStatusCompleted),
		string(model.AttemptStatusNoAnswer),
		string(model.AttemptStatusBusy),
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, channel, since, pq.Array(successStatuses)); err != nil {
		return 0, fmt.Errorf("failed to count successful attempts: %w", err)
	}
	return count, nil
}
