package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
)

type guestRepository struct {
	*BaseRepository
}

func NewGuestRepository(base *BaseRepository) repository.GuestRepository {
	return &guestRepository{BaseRepository: base}
}

const guestColumns = `
	id, tenant_id, event_id, name, phone, rsvp_status, rsvp_at,
	party_size, invited_at, notes, created_at, updated_at, deleted_at
`

func (r *guestRepository) Get(ctx context.Context, id uuid.UUID) (*model.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guests WHERE id = $1 AND deleted_at IS NULL`

	var guest model.Guest
	if err := r.db.GetContext(ctx, &guest, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("guest %s not found", id)
		}
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return &guest, nil
}

// ListByIDs preserves the order of ids in the returned slice; the dispatcher
// processes recipients in the order they were supplied at job creation.
func (r *guestRepository) ListByIDs(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]*model.Guest, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `SELECT ` + guestColumns + `
		FROM guests
		WHERE event_id = $1 AND id = ANY($2::uuid[]) AND deleted_at IS NULL`

	var guests []*model.Guest
	if err := r.db.SelectContext(ctx, &guests, query, eventID, pq.Array(strIDs)); err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}

	byID := make(map[uuid.UUID]*model.Guest, len(guests))
	for _, g := range guests {
		byID[g.ID] = g
	}
	ordered := make([]*model.Guest, 0, len(guests))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
		}
	}
	return ordered, nil
}

func (r *guestRepository) List(ctx context.Context, filters *model.GuestFilters) ([]*model.Guest, error) {
	query := `SELECT ` + guestColumns + `
		FROM guests
		WHERE event_id = :event_id AND deleted_at IS NULL`
	args := map[string]interface{}{"event_id": filters.EventID}

	if filters.RSVPStatus != nil {
		query += ` AND rsvp_status = :rsvp_status`
		args["rsvp_status"] = *filters.RSVPStatus
	}
	query += ` ORDER BY created_at ASC`

	rows, err := sqlx.NamedQueryContext(ctx, r.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	var guests []*model.Guest
	for rows.Next() {
		var g model.Guest
		if err := rows.StructScan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		guests = append(guests, &g)
	}
	return guests, rows.Err()
}

func (r *guestRepository) MarkInvited(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE guests SET invited_at = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, at, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark guest invited: %w", err)
	}
	return nil
}
