package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the outcome state of a single dispatch attempt.
type AttemptStatus string

const (
	AttemptStatusPending     AttemptStatus = "PENDING"
	AttemptStatusSent        AttemptStatus = "SENT"
	AttemptStatusDelivered   AttemptStatus = "DELIVERED"
	AttemptStatusFailed      AttemptStatus = "FAILED"
	AttemptStatusUndelivered AttemptStatus = "UNDELIVERED"
	AttemptStatusCalling     AttemptStatus = "CALLING"
	AttemptStatusCompleted   AttemptStatus = "COMPLETED"
	AttemptStatusNoAnswer    AttemptStatus = "NO_ANSWER"
	AttemptStatusBusy        AttemptStatus = "BUSY"
	AttemptStatusCancelled   AttemptStatus = "CANCELLED"
)

// Terminal reports whether the attempt reached a final state. Terminal
// attempts are immutable; retries create new attempts.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptStatusPending && s != AttemptStatusCalling
}

// Success reports whether the attempt consumed quota. A placed call counts
// even when nobody picked up.
func (s AttemptStatus) Success() bool {
	switch s {
	case AttemptStatusSent, AttemptStatusDelivered, AttemptStatusCalling,
		AttemptStatusCompleted, AttemptStatusNoAnswer, AttemptStatusBusy:
		return true
	}
	return false
}

// Error codes recorded on failed attempts.
const (
	ErrCodeInvalidPhone  = "invalid_phone"
	ErrCodeQuotaExceeded = "quota_exceeded"
	ErrCodeProvider      = "provider_error"
	ErrCodeNotConfigured = "not_configured"
	ErrCodeGuestMissing  = "guest_missing"
)

// DispatchAttempt is one row per provider call outcome for one guest.
type DispatchAttempt struct {
	Base
	TenantID         uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	EventID          uuid.UUID       `json:"event_id" db:"event_id"`
	GuestID          uuid.UUID       `json:"guest_id" db:"guest_id"`
	JobID            *uuid.UUID      `json:"job_id,omitempty" db:"job_id"`
	Type             MessageType     `json:"type" db:"type"`
	Channel          Channel         `json:"channel" db:"channel"`
	Status           AttemptStatus   `json:"status" db:"status"`
	ProviderResponse json.RawMessage `json:"provider_response,omitempty" db:"provider_response"`
	ErrorCode        string          `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage     string          `json:"error_message,omitempty" db:"error_message"`
	SentAt           *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty" db:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}
