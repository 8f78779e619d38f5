package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
)

// All repository interfaces in one file
type (
	// TenantRepository handles tenants and their usage counter row. The
	// usage row is the only shared mutable state in the system; every
	// mutation goes through a transaction that locks it first.
	TenantRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
		ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
		GetUsage(ctx context.Context, tenantID uuid.UUID) (*model.UsageCounters, error)
		WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
		LockUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID) (*model.UsageCounters, error)
		AddUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, channel model.Channel, delta int) error
		SetUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, channel model.Channel, value int) error
		ResetPeriod(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, start time.Time) error
	}

	EventRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Event, error)
	}

	GuestRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Guest, error)
		ListByIDs(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]*model.Guest, error)
		List(ctx context.Context, filters *model.GuestFilters) ([]*model.Guest, error)
		MarkInvited(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	JobRepository interface {
		Create(ctx context.Context, job *model.BulkJob) error
		Get(ctx context.Context, id uuid.UUID) (*model.BulkJob, error)
		GetStatus(ctx context.Context, id uuid.UUID) (model.JobStatus, error)
		// MarkProcessing claims a PENDING job; returns false when another
		// worker got there first or the job is already terminal.
		MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
		Finish(ctx context.Context, id uuid.UUID, status model.JobStatus, failReason string) error
		AddCounters(ctx context.Context, id uuid.UUID, processed, success, failed, skipped int) error
		ListDue(ctx context.Context, before time.Time, limit int) ([]*model.BulkJob, error)
	}

	AttemptRepository interface {
		Create(ctx context.Context, attempt *model.DispatchAttempt) error
		CreateBatch(ctx context.Context, attempts []*model.DispatchAttempt) error
		Get(ctx context.Context, id uuid.UUID) (*model.DispatchAttempt, error)
		Update(ctx context.Context, attempt *model.DispatchAttempt) error
		ListByJob(ctx context.Context, jobID uuid.UUID) ([]*model.DispatchAttempt, error)
		// CancelPendingByJob flips every still-PENDING attempt of the job
		// to CANCELLED and returns how many were flipped.
		CancelPendingByJob(ctx context.Context, jobID uuid.UUID) (int64, error)
		CountSuccessesSince(ctx context.Context, tenantID uuid.UUID, channel model.Channel, since time.Time) (int, error)
	}
)
