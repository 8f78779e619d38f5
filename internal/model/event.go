package model

import (
	"time"

	"github.com/google/uuid"
)

// Event is the wedding or occasion guests are invited to. It supplies the
// template context for every outgoing message and call.
type Event struct {
	Base
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Title    string    `json:"title" db:"title"`
	Venue    string    `json:"venue" db:"venue"`
	StartsAt time.Time `json:"starts_at" db:"starts_at"`
	RSVPLink string    `json:"rsvp_link" db:"rsvp_link"`
	Language string    `json:"language" db:"language"`
}
