package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/phone"
)

// ErrNotConfigured marks a missing credential or originating number. The
// orchestrator treats it as job-fatal: no attempts are made.
var ErrNotConfigured = fmt.Errorf("provider not configured")

// Message is a fully resolved outbound text message.
type Message struct {
	To          string // normalized international form
	Body        string
	Interactive bool // request RSVP buttons where the channel supports them
}

// Call is a fully resolved outbound voice call request.
type Call struct {
	To     string
	From   string
	Script string
}

// Result is the raw provider outcome for one send or call.
type Result struct {
	Status           model.AttemptStatus
	ProviderResponse json.RawMessage
}

// MessageClient is one text-message channel's wire client.
type MessageClient interface {
	Send(ctx context.Context, msg Message) (*Result, error)
	Configured() bool
}

// CallClient is the voice provider's wire client.
type CallClient interface {
	Place(ctx context.Context, call Call) (*Result, error)
	Configured() bool
}

// SendOptions carries per-send overrides. Zero value means "infer
// everything".
type SendOptions struct {
	ChannelOverride  model.Channel
	TemplateOverride string
	// Tenant-level overrides for the platform defaults.
	CallerNumber string
	Region       string
}

// DispatchResult is what the dispatch engine records per attempt.
type DispatchResult struct {
	Success          bool
	Channel          model.Channel
	Status           model.AttemptStatus
	ProviderResponse json.RawMessage
	ErrorCode        string
	ErrorMessage     string
}

// Sender is the capability boundary between the dispatch engine and the
// external providers. One method per message/call type; the caller is
// responsible for logging and quota.
type Sender interface {
	SendInvite(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
	SendReminder(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
	SendInteractiveInvite(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
	SendInteractiveReminder(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
	PlaceCall(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
	// Configured reports whether the channel needed for the given type is
	// usable; checked once per job before any attempt runs.
	Configured(msgType model.MessageType) bool
	Dispatch(ctx context.Context, msgType model.MessageType, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult
}

// ResolveChannel applies the documented precedence: calls always use the
// voice channel; otherwise an explicit override wins, then shape-based
// inference from the raw phone number.
func ResolveChannel(msgType model.MessageType, rawPhone string, opts SendOptions) model.Channel {
	if msgType.IsCall() {
		return model.ChannelVoice
	}
	if opts.ChannelOverride != "" {
		return opts.ChannelOverride
	}
	return phone.InferChannel(rawPhone)
}

type service struct {
	whatsapp      MessageClient
	sms           MessageClient
	voice         CallClient
	callerNumber  string
	defaultRegion string
}

// NewSender wires the per-channel clients into the capability interface.
func NewSender(whatsapp, sms MessageClient, voice CallClient, callerNumber, defaultRegion string) Sender {
	if defaultRegion == "" {
		defaultRegion = phone.DefaultRegion
	}
	return &service{
		whatsapp:      whatsapp,
		sms:           sms,
		voice:         voice,
		callerNumber:  callerNumber,
		defaultRegion: defaultRegion,
	}
}

func (s *service) SendInvite(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	return s.sendMessage(ctx, model.MessageTypeInvite, guest, event, opts, false)
}

func (s *service) SendReminder(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	return s.sendMessage(ctx, model.MessageTypeReminder, guest, event, opts, false)
}

func (s *service) SendInteractiveInvite(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	return s.sendMessage(ctx, model.MessageTypeInteractiveInvite, guest, event, opts, true)
}

func (s *service) SendInteractiveReminder(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	return s.sendMessage(ctx, model.MessageTypeInteractiveReminder, guest, event, opts, true)
}

func (s *service) PlaceCall(ctx context.Context, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	from := opts.CallerNumber
	if from == "" {
		from = s.callerNumber
	}
	if !s.voice.Configured() || from == "" {
		return &DispatchResult{
			Channel:      model.ChannelVoice,
			Status:       model.AttemptStatusFailed,
			ErrorCode:    model.ErrCodeNotConfigured,
			ErrorMessage: ErrNotConfigured.Error(),
		}
	}

	to, err := phone.Normalize(guest.Phone, s.region(opts))
	if err != nil {
		return validationFailure(model.ChannelVoice, err)
	}

	script := opts.TemplateOverride
	if script == "" {
		script = callScript(guest, event)
	}

	res, err := s.voice.Place(ctx, Call{To: to, From: from, Script: script})
	if err != nil {
		return providerFailure(model.ChannelVoice, err)
	}
	return &DispatchResult{
		Success:          res.Status.Success(),
		Channel:          model.ChannelVoice,
		Status:           res.Status,
		ProviderResponse: res.ProviderResponse,
	}
}

// typeHandlers keys every dispatchable type to its send method so the
// mapping stays exhaustive; Dispatch is the only switch point.
func (s *service) typeHandlers() map[model.MessageType]func(context.Context, *model.Guest, *model.Event, SendOptions) *DispatchResult {
	return map[model.MessageType]func(context.Context, *model.Guest, *model.Event, SendOptions) *DispatchResult{
		model.MessageTypeInvite:              s.SendInvite,
		model.MessageTypeReminder:            s.SendReminder,
		model.MessageTypeInteractiveInvite:   s.SendInteractiveInvite,
		model.MessageTypeInteractiveReminder: s.SendInteractiveReminder,
		model.MessageTypeCall:                s.PlaceCall,
	}
}

func (s *service) Dispatch(ctx context.Context, msgType model.MessageType, guest *model.Guest, event *model.Event, opts SendOptions) *DispatchResult {
	handler, ok := s.typeHandlers()[msgType]
	if !ok {
		return &DispatchResult{
			Status:       model.AttemptStatusFailed,
			ErrorCode:    model.ErrCodeProvider,
			ErrorMessage: fmt.Sprintf("unknown message type: %s", msgType),
		}
	}
	return handler(ctx, guest, event, opts)
}

func (s *service) Configured(msgType model.MessageType) bool {
	if msgType.IsCall() {
		return s.voice.Configured() && s.callerNumber != ""
	}
	// Text dispatch can fall back between channels, so either client will do.
	return s.whatsapp.Configured() || s.sms.Configured()
}

func (s *service) sendMessage(ctx context.Context, msgType model.MessageType, guest *model.Guest, event *model.Event, opts SendOptions, interactive bool) *DispatchResult {
	channel := ResolveChannel(msgType, guest.Phone, opts)

	client := s.messageClient(channel)
	if client == nil || !client.Configured() {
		return &DispatchResult{
			Channel:      channel,
			Status:       model.AttemptStatusFailed,
			ErrorCode:    model.ErrCodeNotConfigured,
			ErrorMessage: ErrNotConfigured.Error(),
		}
	}

	to, err := phone.Normalize(guest.Phone, s.region(opts))
	if err != nil {
		return validationFailure(channel, err)
	}

	body := opts.TemplateOverride
	if body == "" {
		body = messageBody(msgType, guest, event)
	}

	res, err := client.Send(ctx, Message{To: to, Body: body, Interactive: interactive})
	if err != nil {
		return providerFailure(channel, err)
	}
	return &DispatchResult{
		Success:          res.Status.Success(),
		Channel:          channel,
		Status:           res.Status,
		ProviderResponse: res.ProviderResponse,
	}
}

// region resolves the normalization region: the tenant's configured
// region when present, else the platform default.
func (s *service) region(opts SendOptions) string {
	if opts.Region != "" {
		return opts.Region
	}
	return s.defaultRegion
}

func (s *service) messageClient(channel model.Channel) MessageClient {
	switch channel {
	case model.ChannelWhatsApp:
		return s.whatsapp
	case model.ChannelSMS:
		return s.sms
	}
	return nil
}

func validationFailure(channel model.Channel, err error) *DispatchResult {
	return &DispatchResult{
		Channel:      channel,
		Status:       model.AttemptStatusFailed,
		ErrorCode:    model.ErrCodeInvalidPhone,
		ErrorMessage: err.Error(),
	}
}

func providerFailure(channel model.Channel, err error) *DispatchResult {
	return &DispatchResult{
		Channel:      channel,
		Status:       model.AttemptStatusFailed,
		ErrorCode:    model.ErrCodeProvider,
		ErrorMessage: err.Error(),
	}
}

// Message rendering and localization live in the dashboard; these are the
// fallback bodies used when no template override is supplied.
func messageBody(msgType model.MessageType, guest *model.Guest, event *model.Event) string {
	switch msgType {
	case model.MessageTypeReminder, model.MessageTypeInteractiveReminder:
		return fmt.Sprintf("Hi %s, a reminder about %s on %s at %s. RSVP: %s",
			guest.Name, event.Title, event.StartsAt.Format("Jan 2"), event.Venue, event.RSVPLink)
	default:
		return fmt.Sprintf("Hi %s, you are invited to %s on %s at %s. RSVP: %s",
			guest.Name, event.Title, event.StartsAt.Format("Jan 2"), event.Venue, event.RSVPLink)
	}
}

func callScript(guest *model.Guest, event *model.Event) string {
	return fmt.Sprintf("Hello %s. This is a reminder about %s at %s. Press 1 to confirm, 2 to decline.",
		guest.Name, event.Title, event.Venue)
}
