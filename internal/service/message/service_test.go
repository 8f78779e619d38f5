package message_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/dispatch"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	messageService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/message"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "message")

type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.DispatchAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: map[uuid.UUID]*model.DispatchAttempt{}}
}

func (m *memAttempts) Create(ctx context.Context, a *model.DispatchAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memAttempts) CreateBatch(ctx context.Context, as []*model.DispatchAttempt) error {
	for _, a := range as {
		if err := m.Create(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (m *memAttempts) Get(ctx context.Context, id uuid.UUID) (*model.DispatchAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memAttempts) Update(ctx context.Context, a *model.DispatchAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memAttempts) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*model.DispatchAttempt, error) {
	return nil, nil
}

func (m *memAttempts) CancelPendingByJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *memAttempts) CountSuccessesSince(ctx context.Context, tenantID uuid.UUID, ch model.Channel, since time.Time) (int, error) {
	return 0, nil
}

type memGuests struct {
	guests map[uuid.UUID]*model.Guest
}

func (m *memGuests) Get(ctx context.Context, id uuid.UUID) (*model.Guest, error) {
	g, ok := m.guests[id]
	if !ok {
		return nil, fmt.Errorf("guest %s not found", id)
	}
	return g, nil
}
func (m *memGuests) ListByIDs(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]*model.Guest, error) {
	return nil, nil
}
func (m *memGuests) List(ctx context.Context, filters *model.GuestFilters) ([]*model.Guest, error) {
	return nil, nil
}
func (m *memGuests) MarkInvited(ctx context.Context, id uuid.UUID, at time.Time) error {
	if g, ok := m.guests[id]; ok {
		g.InvitedAt = &at
	}
	return nil
}

type memEvents struct {
	events map[uuid.UUID]*model.Event
}

func (m *memEvents) Get(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s not found", id)
	}
	return e, nil
}

type memTenants struct {
	tenant *model.Tenant
}

func (m *memTenants) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	return m.tenant, nil
}
func (m *memTenants) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	return []uuid.UUID{m.tenant.ID}, nil
}
func (m *memTenants) GetUsage(ctx context.Context, tenantID uuid.UUID) (*model.UsageCounters, error) {
	return &model.UsageCounters{TenantID: tenantID, PeriodStart: time.Now()}, nil
}
func (m *memTenants) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error { return fn(nil) }
func (m *memTenants) LockUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID) (*model.UsageCounters, error) {
	return &model.UsageCounters{TenantID: tenantID, PeriodStart: time.Now()}, nil
}
func (m *memTenants) AddUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, ch model.Channel, delta int) error {
	return nil
}
func (m *memTenants) SetUsage(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, ch model.Channel, value int) error {
	return nil
}
func (m *memTenants) ResetPeriod(ctx context.Context, tx *sqlx.Tx, tenantID uuid.UUID, start time.Time) error {
	return nil
}

type fakeLedger struct {
	mu        sync.Mutex
	remaining int
	consumed  int
	released  int
}

func (f *fakeLedger) Reserve(ctx context.Context, tenantID uuid.UUID, ch model.Channel, count int) (*quota.Reservation, error) {
	return &quota.Reservation{Allowed: true}, nil
}

func (f *fakeLedger) Consume(ctx context.Context, tenantID uuid.UUID, ch model.Channel) (*quota.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return &quota.Reservation{Allowed: false, Remaining: 0, Reason: quota.ReasonLimitReached}, nil
	}
	f.remaining--
	f.consumed++
	return &quota.Reservation{Allowed: true, Remaining: f.remaining}, nil
}

func (f *fakeLedger) Release(ctx context.Context, tenantID uuid.UUID, ch model.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining++
	f.released++
	return nil
}

func (f *fakeLedger) Remaining(ctx context.Context, tenantID uuid.UUID) (map[model.Channel]int, error) {
	return nil, nil
}
func (f *fakeLedger) Reconcile(ctx context.Context, tenantID uuid.UUID) error { return nil }

type fakeSender struct {
	mu       sync.Mutex
	fail     bool
	calls    int
	lastOpts provider.SendOptions
}

func (f *fakeSender) Dispatch(ctx context.Context, msgType model.MessageType, guest *model.Guest, event *model.Event, opts provider.SendOptions) *provider.DispatchResult {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return &provider.DispatchResult{
			Channel:      model.ChannelWhatsApp,
			Status:       model.AttemptStatusFailed,
			ErrorCode:    model.ErrCodeProvider,
			ErrorMessage: "gateway error",
		}
	}
	if msgType.IsCall() {
		return &provider.DispatchResult{Success: true, Channel: model.ChannelVoice, Status: model.AttemptStatusCalling}
	}
	return &provider.DispatchResult{Success: true, Channel: model.ChannelWhatsApp, Status: model.AttemptStatusSent}
}

func (f *fakeSender) SendInvite(ctx context.Context, g *model.Guest, e *model.Event, o provider.SendOptions) *provider.DispatchResult {
	return f.Dispatch(ctx, model.MessageTypeInvite, g, e, o)
}
func (f *fakeSender) SendReminder(ctx context.Context, g *model.Guest, e *model.Event, o provider.SendOptions) *provider.DispatchResult {
	return f.Dispatch(ctx, model.MessageTypeReminder, g, e, o)
}
func (f *fakeSender) SendInteractiveInvite(ctx context.Context, g *model.Guest, e *model.Event, o provider.SendOptions) *provider.DispatchResult {
	return f.Dispatch(ctx, model.MessageTypeInteractiveInvite, g, e, o)
}
func (f *fakeSender) SendInteractiveReminder(ctx context.Context, g *model.Guest, e *model.Event, o provider.SendOptions) *provider.DispatchResult {
	return f.Dispatch(ctx, model.MessageTypeInteractiveReminder, g, e, o)
}
func (f *fakeSender) PlaceCall(ctx context.Context, g *model.Guest, e *model.Event, o provider.SendOptions) *provider.DispatchResult {
	return f.Dispatch(ctx, model.MessageTypeCall, g, e, o)
}
func (f *fakeSender) Configured(model.MessageType) bool { return true }

type fixture struct {
	svc      messageService.Service
	attempts *memAttempts
	guests   *memGuests
	sender   *fakeSender
	ledger   *fakeLedger
	tenantID uuid.UUID
	eventID  uuid.UUID
	guestID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewLogger(nil)

	tenantID := uuid.New()
	eventID := uuid.New()
	guestID := uuid.New()

	attempts := newMemAttempts()
	guests := &memGuests{guests: map[uuid.UUID]*model.Guest{
		guestID: {
			Base:     model.Base{ID: guestID},
			TenantID: tenantID,
			EventID:  eventID,
			Name:     "Noa",
			Phone:    "+972584003578",
		},
	}}
	events := &memEvents{events: map[uuid.UUID]*model.Event{
		eventID: {Base: model.Base{ID: eventID}, TenantID: tenantID, Title: "Dana & Omer"},
	}}
	tenants := &memTenants{tenant: &model.Tenant{
		Base:          model.Base{ID: tenantID},
		Plan:          model.PlanPremium,
		CallerNumber:  "+972500000000",
		DefaultRegion: "US",
	}}
	sender := &fakeSender{}
	ledger := &fakeLedger{remaining: 10}
	recorder := dispatch.NewRecorder(attempts, log, testMetrics)

	svc := messageService.NewService(attempts, guests, events, tenants, ledger, sender, recorder, log, testMetrics)
	return &fixture{
		svc:      svc,
		attempts: attempts,
		guests:   guests,
		sender:   sender,
		ledger:   ledger,
		tenantID: tenantID,
		eventID:  eventID,
		guestID:  guestID,
	}
}

func TestSendRecordsAttemptAndMarksInvited(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeInvite,
	})
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusSent, attempt.Status)
	assert.Equal(t, model.ChannelWhatsApp, attempt.Channel)
	assert.NotNil(t, attempt.SentAt)
	assert.Equal(t, 1, f.ledger.consumed)
	assert.Equal(t, 0, f.ledger.released)
	assert.NotNil(t, f.guests.guests[f.guestID].InvitedAt)

	stored, err := f.attempts.Get(context.Background(), attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSent, stored.Status)
}

func TestSendCallUsesVoiceChannel(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeCall,
	})
	require.NoError(t, err)

	assert.Equal(t, model.ChannelVoice, attempt.Channel)
	assert.Equal(t, model.AttemptStatusCalling, attempt.Status)
	assert.NotNil(t, attempt.StartedAt)
	assert.Nil(t, f.guests.guests[f.guestID].InvitedAt, "calls do not mark invited")
}

func TestSendAppliesTenantDefaults(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeCall,
	})
	require.NoError(t, err)

	assert.Equal(t, "+972500000000", f.sender.lastOpts.CallerNumber)
	assert.Equal(t, "US", f.sender.lastOpts.Region)
}

func TestSendRefundsQuotaOnProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = true

	attempt, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeInvite,
	})
	require.NoError(t, err)

	assert.Equal(t, model.AttemptStatusFailed, attempt.Status)
	assert.Equal(t, model.ErrCodeProvider, attempt.ErrorCode)
	assert.Equal(t, 1, f.ledger.consumed)
	assert.Equal(t, 1, f.ledger.released)
}

func TestSendRejectsWhenQuotaExhausted(t *testing.T) {
	f := newFixture(t)
	f.ledger.remaining = 0

	_, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeInvite,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrQuotaExceeded, appErr.Code)
	assert.Equal(t, 0, f.sender.calls, "denied sends never reach the provider")
}

func TestSendSuppressesReminderForRespondedGuest(t *testing.T) {
	f := newFixture(t)
	f.guests.guests[f.guestID].RSVPStatus = model.RSVPAccepted

	_, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeReminder,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
	assert.Equal(t, 0, f.ledger.consumed)
}

func TestUpdateAttemptStatus(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.svc.Send(context.Background(), &messageService.SendInput{
		TenantID: f.tenantID,
		EventID:  f.eventID,
		GuestID:  f.guestID,
		Type:     model.MessageTypeInvite,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateAttemptStatus(context.Background(), f.tenantID, attempt.ID, model.AttemptStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusDelivered, updated.Status)

	_, err = f.svc.UpdateAttemptStatus(context.Background(), f.tenantID, attempt.ID, model.AttemptStatusPending)
	require.Error(t, err)

	_, err = f.svc.UpdateAttemptStatus(context.Background(), uuid.New(), attempt.ID, model.AttemptStatusDelivered)
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}
