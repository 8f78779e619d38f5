package model

import (
	"time"

	"github.com/google/uuid"
)

// RSVPStatus is the guest's attendance confirmation state.
type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "pending"
	RSVPAccepted RSVPStatus = "accepted"
	RSVPDeclined RSVPStatus = "declined"
	RSVPMaybe    RSVPStatus = "maybe"
)

// Responded reports whether the guest already gave a final answer.
// Reminders are suppressed for responded guests.
func (s RSVPStatus) Responded() bool {
	return s == RSVPAccepted || s == RSVPDeclined
}

// Guest is a recipient of invitations, reminders and calls.
type Guest struct {
	Base
	TenantID   uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	EventID    uuid.UUID  `json:"event_id" db:"event_id"`
	Name       string     `json:"name" db:"name"`
	Phone      string     `json:"phone" db:"phone"`
	RSVPStatus RSVPStatus `json:"rsvp_status" db:"rsvp_status"`
	RSVPAt     *time.Time `json:"rsvp_at,omitempty" db:"rsvp_at"`
	PartySize  int        `json:"party_size" db:"party_size"`
	InvitedAt  *time.Time `json:"invited_at,omitempty" db:"invited_at"`
	Notes      string     `json:"notes,omitempty" db:"notes"`
}

// GuestFilters narrows guest lists for bulk job targeting.
type GuestFilters struct {
	EventID    uuid.UUID
	RSVPStatus *RSVPStatus
}
