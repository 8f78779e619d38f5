package message

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/dispatch"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

// SendInput is a single-recipient send request.
type SendInput struct {
	TenantID         uuid.UUID
	EventID          uuid.UUID
	GuestID          uuid.UUID
	Type             model.MessageType
	ChannelOverride  model.Channel
	TemplateOverride string
}

// Service sends one message or call to one guest, synchronously. Quota and
// attempt logging follow the same rules as bulk dispatch.
type Service interface {
	Send(ctx context.Context, input *SendInput) (*model.DispatchAttempt, error)
	UpdateAttemptStatus(ctx context.Context, tenantID, attemptID uuid.UUID, status model.AttemptStatus) (*model.DispatchAttempt, error)
}

type service struct {
	attempts repository.AttemptRepository
	guests   repository.GuestRepository
	events   repository.EventRepository
	tenants  repository.TenantRepository
	ledger   quota.Service
	sender   provider.Sender
	recorder *dispatch.Recorder
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(
	attempts repository.AttemptRepository,
	guests repository.GuestRepository,
	events repository.EventRepository,
	tenants repository.TenantRepository,
	ledger quota.Service,
	sender provider.Sender,
	recorder *dispatch.Recorder,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	return &service{
		attempts: attempts,
		guests:   guests,
		events:   events,
		tenants:  tenants,
		ledger:   ledger,
		sender:   sender,
		recorder: recorder,
		logger:   log.WithComponent("message_service"),
		metrics:  m,
	}
}

// Send validates, consumes quota, calls the provider and records the
// attempt. Quota consumed for a failed provider call is refunded.
func (s *service) Send(ctx context.Context, input *SendInput) (*model.DispatchAttempt, error) {
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

	guest, err := s.guests.Get(ctx, input.GuestID)
	if err != nil {
		return nil, apperrors.NotFound("guest", err)
	}
	if guest.EventID != input.EventID {
		return nil, apperrors.NotFound("guest", nil)
	}

	// Reminders to guests who already answered are suppressed, not sent.
	if (input.Type == model.MessageTypeReminder || input.Type == model.MessageTypeInteractiveReminder) &&
		guest.RSVPStatus.Responded() {
		return nil, apperrors.Conflict(fmt.Sprintf("guest already responded: %s", guest.RSVPStatus))
	}

	if !s.sender.Configured(input.Type) {
		return nil, apperrors.BadRequest("channel provider not configured", provider.ErrNotConfigured)
	}

	tenant, err := s.tenants.Get(ctx, input.TenantID)
	if err != nil {
		return nil, apperrors.NotFound("tenant", err)
	}

	opts := provider.SendOptions{
		ChannelOverride:  input.ChannelOverride,
		TemplateOverride: input.TemplateOverride,
		CallerNumber:     tenant.CallerNumber,
		Region:           tenant.DefaultRegion,
	}
	channel := provider.ResolveChannel(input.Type, guest.Phone, opts)

	res, err := s.ledger.Consume(ctx, input.TenantID, channel)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !res.Allowed {
		return nil, apperrors.QuotaExceeded(fmt.Sprintf("monthly %s limit reached", channel))
	}

	attempt := &model.DispatchAttempt{
		TenantID: input.TenantID,
		EventID:  input.EventID,
		GuestID:  guest.ID,
		Type:     input.Type,
		Channel:  channel,
	}

	result := s.sender.Dispatch(ctx, input.Type, guest, event, opts)
	dispatch.ApplyResult(attempt, result)

	if !result.Success {
		if err := s.ledger.Release(ctx, input.TenantID, channel); err != nil {
			s.logger.Error(err, "failed to release quota after failed send",
				"guest_id", guest.ID.String())
		}
	} else if !input.Type.IsCall() {
		if err := s.guests.MarkInvited(ctx, guest.ID, *attempt.SentAt); err != nil {
			s.logger.Error(err, "failed to mark guest invited", "guest_id", guest.ID.String())
		}
	}

	s.recorder.RecordNew(ctx, attempt)
	return attempt, nil
}

// UpdateAttemptStatus is the manual correction path for operators fixing a
// misreported outcome. Only transitions out of non-terminal states or
// between terminal outcome states are allowed; PENDING cannot be restored.
func (s *service) UpdateAttemptStatus(ctx context.Context, tenantID, attemptID uuid.UUID, status model.AttemptStatus) (*model.DispatchAttempt, error) {
	if status == model.AttemptStatusPending {
		return nil, apperrors.BadRequest("cannot reset an attempt to PENDING", nil)
	}

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, apperrors.NotFound("attempt", err)
	}
	if attempt.TenantID != tenantID {
		return nil, apperrors.NotFound("attempt", nil)
	}

	attempt.Status = status
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, apperrors.Internal(err)
	}
	return attempt, nil
}
