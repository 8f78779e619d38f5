package model

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier is the subscription tier that defines per-channel monthly limits.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanBasic    PlanTier = "basic"
	PlanPremium  PlanTier = "premium"
	PlanBusiness PlanTier = "business"
)

// Tenant owns events and guests and is billed per channel per month.
type Tenant struct {
	Base
	Name                 string     `json:"name" db:"name"`
	ContactEmail         string     `json:"contact_email" db:"contact_email"`
	Plan                 PlanTier   `json:"plan" db:"plan"`
	BonusWhatsApp        int        `json:"bonus_whatsapp" db:"bonus_whatsapp"`
	BonusSMS             int        `json:"bonus_sms" db:"bonus_sms"`
	BonusCalls           int        `json:"bonus_calls" db:"bonus_calls"`
	CallerNumber         string     `json:"caller_number" db:"caller_number"`
	DefaultRegion        string     `json:"default_region" db:"default_region"`
	SubscriptionRenewsAt *time.Time `json:"subscription_renews_at,omitempty" db:"subscription_renews_at"`
}

// UsageCounters is the single per-tenant row holding running send counters
// for the current billing window. Mutated only inside a transaction that
// locks the row.
type UsageCounters struct {
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	WhatsAppSent int       `json:"whatsapp_sent" db:"whatsapp_sent"`
	SMSSent      int       `json:"sms_sent" db:"sms_sent"`
	CallsMade    int       `json:"calls_made" db:"calls_made"`
	PeriodStart  time.Time `json:"period_start" db:"period_start"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Sent returns the counter for the given channel.
func (u *UsageCounters) Sent(ch Channel) int {
	switch ch {
	case ChannelWhatsApp:
		return u.WhatsAppSent
	case ChannelSMS:
		return u.SMSSent
	case ChannelVoice:
		return u.CallsMade
	}
	return 0
}

// Bonus returns the tenant's bonus allotment for the given channel.
func (t *Tenant) Bonus(ch Channel) int {
	switch ch {
	case ChannelWhatsApp:
		return t.BonusWhatsApp
	case ChannelSMS:
		return t.BonusSMS
	case ChannelVoice:
		return t.BonusCalls
	}
	return 0
}
