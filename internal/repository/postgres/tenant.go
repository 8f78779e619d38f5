package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
)

type tenantRepository struct {
	*BaseRepository
}

func NewTenantRepository(base *BaseRepository) repository.TenantRepository {
	return &tenantRepository{BaseRepository: base}
}

// usageColumn maps a channel to its counter column. Channels are a closed
// set; anything else is a programming error.
func usageColumn(channel model.Channel) (string, error) {
	switch channel {
	case model.ChannelWhatsApp:
		return "whatsapp_sent", nil
	case model.ChannelSMS:
		return "sms_sent", nil
	case model.ChannelVoice:
		return "calls_made", nil
	}
	return "", fmt.Errorf("unknown channel: %s", channel)
}

func (r *tenantRepository) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `
		SELECT id, name, contact_email, plan, bonus_whatsapp, bonus_sms, bonus_calls,
		       caller_number, default_region, subscription_renews_at,
		       created_at, updated_at, deleted_at
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL
	`
	var tenant model.Tenant
	if err := r.db.GetContext(ctx, &tenant, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant %s not found", id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// ListActiveIDs feeds the periodic counter reconciliation sweep.
func (r *tenantRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM tenants WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return ids, nil
}

func (r *tenantRepository) GetUsage(ctx context.Context, tenantID uuid.UUID) (*model.UsageCounters, error) {
	query := `
		SELECT tenant_id, whatsapp_sent, sms_sent, calls_made, period_start, updated_at
		FROM usage_counters
		WHERE tenant_id = $1
	`
	var usage model.UsageCounters
	if err := r.db.GetContext(ctx, &usage, query, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("usage counters for tenant %s not found", tenantID)
		}
		return nil, fmt.Errorf("failed to get usage counters: %w", err)
	}
	return &usage, nil
}

// LockUsage reads the tenant's usage row under FOR UPDATE so that concurrent
// quota checks against the same tenant serialize on the row lock.
func (r *tenantRepository) LockUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID) (*model.UsageCounters, error) {
	query := `
		SELECT tenant_id, whatsapp_sent, sms_sent, calls_made, period_start, updated_at
		FROM usage_counters
		WHERE tenant_id = $1
		FOR UPDATE
	`
	var usage model.UsageCounters
	if err := tx.GetContext(ctx, &usage, query, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("usage counters for tenant %s not found", tenantID)
		}
		return nil, fmt.Errorf("failed to lock usage counters: %w", err)
	}
	return &usage, nil
}

func (r *tenantRepository) AddUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, channel model.Channel, delta int) error {
	col, err := usageColumn(channel)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE usage_counters
		SET %s = GREATEST(%s + $1, 0), updated_at = $2
		WHERE tenant_id = $3
	`, col, col)

	res, err := tx.ExecContext(ctx, query, delta, time.Now(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to update usage counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("usage counters for tenant %s not found", tenantID)
	}
	return nil
}

func (r *tenantRepository) SetUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, channel model.Channel, value int) error {
	col, err := usageColumn(channel)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE usage_counters
		SET %s = $1, updated_at = $2
		WHERE tenant_id = $3
	`, col)

	if _, err := tx.ExecContext(ctx, query, value, time.Now(), tenantID); err != nil {
		return fmt.Errorf("failed to set usage counter: %w", err)
	}
	return nil
}

func (r *tenantRepository) ResetPeriod(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, start time.Time) error {
	query := `
		UPDATE usage_counters
		SET whatsapp_sent = 0, sms_sent = 0, calls_made = 0,
		    period_start = $1, updated_at = $2
		WHERE tenant_id = $3
	`
	if _, err := tx.ExecContext(ctx, query, start, time.Now(), tenantID); err != nil {
		return fmt.Errorf("failed to reset usage period: %w", err)
	}
	return nil
}
