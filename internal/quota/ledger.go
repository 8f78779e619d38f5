package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// Unlimited marks a plan channel with no cap. It is a sentinel checked
// before any arithmetic, never a count.
const Unlimited = -1

// PlanLimits maps plan tiers to per-channel monthly limits.
type PlanLimits map[model.PlanTier]map[model.Channel]int

// DefaultPlanLimits mirrors the published pricing tiers.
var DefaultPlanLimits = PlanLimits{
	model.PlanFree: {
		model.ChannelWhatsApp: 20,
		model.ChannelSMS:      10,
		model.ChannelVoice:    5,
	},
	model.PlanBasic: {
		model.ChannelWhatsApp: 200,
		model.ChannelSMS:      100,
		model.ChannelVoice:    30,
	},
	model.PlanPremium: {
		model.ChannelWhatsApp: 1000,
		model.ChannelSMS:      500,
		model.ChannelVoice:    100,
	},
	model.PlanBusiness: {
		model.ChannelWhatsApp: Unlimited,
		model.ChannelSMS:      Unlimited,
		model.ChannelVoice:    Unlimited,
	},
}

// Reservation is the outcome of a quota check.
type Reservation struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"` // Unlimited when the plan has no cap
	Reason    string `json:"reason,omitempty"`
}

const (
	ReasonLimitReached = "limit_reached"
	ReasonUnknownPlan  = "unknown_plan"
	tenantCacheTTL     = 5 * time.Minute
	tenantCacheSweep   = 10 * time.Minute
)

// Service is the quota ledger capability consumed by the dispatch engine.
type Service interface {
	Reserve(ctx context.Context, tenantID uuid.UUID, channel model.Channel, count int) (*Reservation, error)
	Consume(ctx context.Context, tenantID uuid.UUID, channel model.Channel) (*Reservation, error)
	Release(ctx context.Context, tenantID uuid.UUID, channel model.Channel) error
	Remaining(ctx context.Context, tenantID uuid.UUID) (map[model.Channel]int, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID) error
}

// Ledger enforces per-tenant, per-channel, per-period send limits. The
// tenant's usage row is locked for every mutation so concurrent consumers
// serialize; two requests can never both spend the last unit.
type Ledger struct {
	tenants  repository.TenantRepository
	attempts repository.AttemptRepository
	limits   PlanLimits
	cache    *gocache.Cache
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewLedger(tenants repository.TenantRepository, attempts repository.AttemptRepository, limits PlanLimits, log *logger.Logger, m *metrics.Metrics) *Ledger {
	if limits == nil {
		limits = DefaultPlanLimits
	}
	return &Ledger{
		tenants:  tenants,
		attempts: attempts,
		limits:   limits,
		cache:    gocache.New(tenantCacheTTL, tenantCacheSweep),
		logger:   log.WithComponent("quota"),
		metrics:  m,
	}
}

// Reserve is the advisory check used to gate bulk jobs before dispatch. It
// does not consume quota; the per-attempt Consume path is authoritative.
func (l *Ledger) Reserve(ctx context.Context, tenantID uuid.UUID, channel model.Channel, count int) (*Reservation, error) {
	tenant, err := l.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	limit, ok := l.channelLimit(tenant, channel)
	if !ok {
		return &Reservation{Allowed: false, Remaining: 0, Reason: ReasonUnknownPlan}, nil
	}
	if limit == Unlimited {
		return &Reservation{Allowed: true, Remaining: Unlimited}, nil
	}

	usage, err := l.tenants.GetUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sent := usage.Sent(channel)
	if l.PeriodStart(tenant, usage).After(usage.PeriodStart) {
		// The billing window rolled over but no Consume has reset the row
		// yet; the stale counters belong to the previous period.
		sent = 0
	}

	remaining := limit + tenant.Bonus(channel) - sent
	if remaining < 0 {
		remaining = 0
	}
	if remaining < count {
		return &Reservation{Allowed: false, Remaining: remaining, Reason: ReasonLimitReached}, nil
	}
	return &Reservation{Allowed: true, Remaining: remaining}, nil
}

// Consume atomically checks and spends one unit of quota. The check and the
// increment happen inside one transaction holding the usage row lock, so a
// tenant with one unit left admits exactly one of any number of concurrent
// callers.
func (l *Ledger) Consume(ctx context.Context, tenantID uuid.UUID, channel model.Channel) (*Reservation, error) {
	tenant, err := l.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	limit, ok := l.channelLimit(tenant, channel)
	if !ok {
		return &Reservation{Allowed: false, Remaining: 0, Reason: ReasonUnknownPlan}, nil
	}

	var res Reservation
	err = l.tenants.WithTx(ctx, func(tx *sqlx.Tx) error {
		usage, err := l.tenants.LockUsage(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		start := l.PeriodStart(tenant, usage)
		if start.After(usage.PeriodStart) {
			// New billing window opened since the last write; reset lazily
			// under the same lock.
			if err := l.tenants.ResetPeriod(ctx, tx, tenantID, start); err != nil {
				return err
			}
			usage.WhatsAppSent, usage.SMSSent, usage.CallsMade = 0, 0, 0
			usage.PeriodStart = start
		}

		if limit == Unlimited {
			res = Reservation{Allowed: true, Remaining: Unlimited}
			return l.tenants.AddUsage(ctx, tx, tenantID, channel, 1)
		}

		remaining := limit + tenant.Bonus(channel) - usage.Sent(channel)
		if remaining <= 0 {
			res = Reservation{Allowed: false, Remaining: 0, Reason: ReasonLimitReached}
			return nil
		}

		res = Reservation{Allowed: true, Remaining: remaining - 1}
		return l.tenants.AddUsage(ctx, tx, tenantID, channel, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	if !res.Allowed {
		l.metrics.QuotaRejections.WithLabelValues(string(channel)).Inc()
	}
	return &res, nil
}

// Release refunds one unit after a provider call that consumed quota up
// front failed. Consume-then-release nets zero, so persisted increments
// only ever belong to successful attempts.
func (l *Ledger) Release(ctx context.Context, tenantID uuid.UUID, channel model.Channel) error {
	err := l.tenants.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := l.tenants.LockUsage(ctx, tx, tenantID); err != nil {
			return err
		}
		return l.tenants.AddUsage(ctx, tx, tenantID, channel, -1)
	})
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

// Remaining reports per-channel headroom for the quota endpoint.
func (l *Ledger) Remaining(ctx context.Context, tenantID uuid.UUID) (map[model.Channel]int, error) {
	tenant, err := l.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	usage, err := l.tenants.GetUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rolled := l.PeriodStart(tenant, usage).After(usage.PeriodStart)

	out := make(map[model.Channel]int, 3)
	for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelSMS, model.ChannelVoice} {
		limit, ok := l.channelLimit(tenant, ch)
		if !ok {
			out[ch] = 0
			continue
		}
		if limit == Unlimited {
			out[ch] = Unlimited
			continue
		}
		sent := usage.Sent(ch)
		if rolled {
			sent = 0
		}
		remaining := limit + tenant.Bonus(ch) - sent
		if remaining < 0 {
			remaining = 0
		}
		out[ch] = remaining
	}
	return out, nil
}

// Reconcile recomputes counters from the attempt log for the current
// period. Counters can drift when a process dies between a provider success
// and its increment; the attempt rows are the source of truth.
func (l *Ledger) Reconcile(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := l.tenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return l.tenants.WithTx(ctx, func(tx *sqlx.Tx) error {
		usage, err := l.tenants.LockUsage(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		start := l.PeriodStart(tenant, usage)
		if start.After(usage.PeriodStart) {
			// Advance the row to the current window first, otherwise a later
			// Consume would zero counters that already include this period's
			// successes.
			if err := l.tenants.ResetPeriod(ctx, tx, tenantID, start); err != nil {
				return err
			}
			usage.WhatsAppSent, usage.SMSSent, usage.CallsMade = 0, 0, 0
			usage.PeriodStart = start
		}

		for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelSMS, model.ChannelVoice} {
			counted, err := l.attempts.CountSuccessesSince(ctx, tenantID, ch, start)
			if err != nil {
				return err
			}
			if counted != usage.Sent(ch) {
				l.logger.Warn("usage counter drift repaired",
					"tenant_id", tenantID.String(),
					"channel", string(ch),
					"counter", usage.Sent(ch),
					"counted", counted)
				if err := l.tenants.SetUsage(ctx, tx, tenantID, ch, counted); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PeriodStart resolves the current billing window's start: subscription
// renewal date minus one month when present, else the stored period start,
// else 30 days before now.
func (l *Ledger) PeriodStart(tenant *model.Tenant, usage *model.UsageCounters) time.Time {
	if tenant.SubscriptionRenewsAt != nil {
		start := tenant.SubscriptionRenewsAt.AddDate(0, -1, 0)
		// Renewal dates can lag a cycle if billing webhooks are delayed.
		now := time.Now()
		for start.After(now) {
			start = start.AddDate(0, -1, 0)
		}
		return start
	}
	if usage != nil && !usage.PeriodStart.IsZero() {
		return usage.PeriodStart
	}
	return time.Now().AddDate(0, 0, -30)
}

func (l *Ledger) channelLimit(tenant *model.Tenant, channel model.Channel) (int, bool) {
	channels, ok := l.limits[tenant.Plan]
	if !ok {
		return 0, false
	}
	limit, ok := channels[channel]
	return limit, ok
}

func (l *Ledger) tenant(ctx context.Context, tenantID uuid.UUID) (*model.Tenant, error) {
	key := tenantID.String()
	if cached, ok := l.cache.Get(key); ok {
		return cached.(*model.Tenant), nil
	}
	tenant, err := l.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	l.cache.Set(key, tenant, gocache.DefaultExpiration)
	return tenant, nil
}
