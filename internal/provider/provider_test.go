package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/provider"
)

func testGuest(phone string) *model.Guest {
	return &model.Guest{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Noa",
		Phone: phone,
	}
}

func testEvent() *model.Event {
	return &model.Event{
		Base:     model.Base{ID: uuid.New()},
		Title:    "Shira & Dan's Wedding",
		Venue:    "Gan HaPecan",
		StartsAt: time.Date(2026, 10, 15, 19, 0, 0, 0, time.UTC),
		RSVPLink: "https://rsvp.example/abc",
	}
}

func newWhatsAppServer(t *testing.T, gotReq *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		if gotReq != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(gotReq))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"message_id": "wamid.123", "status": "sent"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSender(t *testing.T, waURL, smsURL, voiceURL string) provider.Sender {
	t.Helper()
	wa := provider.NewWhatsAppClient(provider.WhatsAppConfig{BaseURL: waURL, Token: "tok", FromPhone: "+972500000000"})
	sms := provider.NewSMSClient(provider.SMSConfig{BaseURL: smsURL, APIKey: "key", SenderName: "RSVP"})
	voice := provider.NewVoiceClient(provider.VoiceConfig{BaseURL: voiceURL, AccountSID: "AC1", AuthToken: "secret"})
	return provider.NewSender(wa, sms, voice, "+972500000000", "IL")
}

func TestSendInviteInfersWhatsAppForInternationalNumber(t *testing.T) {
	var gotReq map[string]any
	wa := newWhatsAppServer(t, &gotReq)

	sender := newSender(t, wa.URL, "", "")
	res := sender.SendInvite(context.Background(), testGuest("+972584003578"), testEvent(), provider.SendOptions{})

	require.True(t, res.Success)
	assert.Equal(t, model.ChannelWhatsApp, res.Channel)
	assert.Equal(t, model.AttemptStatusSent, res.Status)
	assert.Equal(t, "+972584003578", gotReq["to"])
	assert.Contains(t, gotReq["body"], "Shira & Dan's Wedding")
}

func TestSendInviteLocalNumberFallsBackToSMS(t *testing.T) {
	var gotTo string
	smsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotTo, _ = req["to"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sms-1", "status": "sent"})
	}))
	t.Cleanup(smsSrv.Close)

	sender := newSender(t, "", smsSrv.URL, "")
	res := sender.SendInvite(context.Background(), testGuest("0584003578"), testEvent(), provider.SendOptions{})

	require.True(t, res.Success)
	assert.Equal(t, model.ChannelSMS, res.Channel)
	assert.Equal(t, "+972584003578", gotTo, "local numbers are normalized before dispatch")
}

func TestChannelOverrideBeatsInference(t *testing.T) {
	var gotReq map[string]any
	wa := newWhatsAppServer(t, &gotReq)

	sender := newSender(t, wa.URL, "", "")
	res := sender.SendReminder(context.Background(), testGuest("0584003578"), testEvent(), provider.SendOptions{
		ChannelOverride: model.ChannelWhatsApp,
	})

	require.True(t, res.Success)
	assert.Equal(t, model.ChannelWhatsApp, res.Channel)
}

func TestTenantRegionOverridesPlatformDefault(t *testing.T) {
	var gotTo string
	smsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotTo, _ = req["to"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sms-2", "status": "sent"})
	}))
	t.Cleanup(smsSrv.Close)

	// The sender's platform default is IL; the tenant's region must win.
	sender := newSender(t, "", smsSrv.URL, "")
	res := sender.SendInvite(context.Background(), testGuest("04155551234"), testEvent(), provider.SendOptions{
		Region: "US",
	})

	require.True(t, res.Success)
	assert.Equal(t, "+14155551234", gotTo)
}

func TestTenantCallerNumberOverridesPlatformDefault(t *testing.T) {
	var gotFrom string
	voiceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotFrom = r.PostFormValue("From")
		_ = json.NewEncoder(w).Encode(map[string]any{"sid": "CA7", "status": "queued"})
	}))
	t.Cleanup(voiceSrv.Close)

	sender := newSender(t, "", "", voiceSrv.URL)
	res := sender.PlaceCall(context.Background(), testGuest("+972584003578"), testEvent(), provider.SendOptions{
		CallerNumber: "+972539999999",
	})

	require.True(t, res.Success)
	assert.Equal(t, "+972539999999", gotFrom)
}

func TestInvalidPhoneNeverReachesProvider(t *testing.T) {
	called := false
	wa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(wa.Close)

	sender := newSender(t, wa.URL, "", "")
	res := sender.SendInvite(context.Background(), testGuest("+123"), testEvent(), provider.SendOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, model.AttemptStatusFailed, res.Status)
	assert.Equal(t, model.ErrCodeInvalidPhone, res.ErrorCode)
	assert.False(t, called, "malformed numbers must not hit the provider")
}

func TestUnconfiguredChannelFailsWithConfigError(t *testing.T) {
	sender := newSender(t, "", "", "")
	res := sender.SendInvite(context.Background(), testGuest("+972584003578"), testEvent(), provider.SendOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, model.ErrCodeNotConfigured, res.ErrorCode)
	assert.False(t, sender.Configured(model.MessageTypeInvite))
	assert.False(t, sender.Configured(model.MessageTypeCall))
}

func TestProviderErrorIsRecordedNotPropagated(t *testing.T) {
	wa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"template rejected"}`, http.StatusUnprocessableEntity)
	}))
	t.Cleanup(wa.Close)

	sender := newSender(t, wa.URL, "", "")
	res := sender.SendInvite(context.Background(), testGuest("+972584003578"), testEvent(), provider.SendOptions{})

	assert.False(t, res.Success)
	assert.Equal(t, model.AttemptStatusFailed, res.Status)
	assert.Equal(t, model.ErrCodeProvider, res.ErrorCode)
	assert.Contains(t, res.ErrorMessage, "422")
}

func TestPlaceCallMapsProviderStates(t *testing.T) {
	tests := []struct {
		providerStatus string
		want           model.AttemptStatus
		success        bool
	}{
		{"queued", model.AttemptStatusCalling, true},
		{"completed", model.AttemptStatusCompleted, true},
		{"busy", model.AttemptStatusBusy, true},
		{"no-answer", model.AttemptStatusNoAnswer, true},
		{"failed", model.AttemptStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.providerStatus, func(t *testing.T) {
			voiceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, _, ok := r.BasicAuth()
				require.True(t, ok)
				require.Equal(t, "AC1", user)
				_ = json.NewEncoder(w).Encode(map[string]any{"sid": "CA9", "status": tt.providerStatus})
			}))
			t.Cleanup(voiceSrv.Close)

			sender := newSender(t, "", "", voiceSrv.URL)
			res := sender.PlaceCall(context.Background(), testGuest("+972584003578"), testEvent(), provider.SendOptions{})

			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.success, res.Success)
		})
	}
}

func TestDispatchTableCoversEveryMessageType(t *testing.T) {
	var gotReq map[string]any
	wa := newWhatsAppServer(t, &gotReq)
	sender := newSender(t, wa.URL, "", "")

	for _, msgType := range []model.MessageType{
		model.MessageTypeInvite,
		model.MessageTypeReminder,
		model.MessageTypeInteractiveInvite,
		model.MessageTypeInteractiveReminder,
	} {
		res := sender.Dispatch(context.Background(), msgType, testGuest("+972584003578"), testEvent(), provider.SendOptions{})
		assert.True(t, res.Success, "type %s should dispatch", msgType)
	}

	res := sender.Dispatch(context.Background(), model.MessageType("bogus"), testGuest("+972584003578"), testEvent(), provider.SendOptions{})
	assert.False(t, res.Success)
}
