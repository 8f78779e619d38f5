package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/circuitbreaker"
)

// VoiceConfig holds the voice provider account settings.
type VoiceConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	Timeout    time.Duration
}

// VoiceClient places automated RSVP calls. Placement is asynchronous on the
// provider side; the initial response usually reports the call as queued or
// ringing, and a status callback updates it later.
type VoiceClient struct {
	cfg    VoiceConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
}

func NewVoiceClient(cfg VoiceConfig) *VoiceClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &VoiceClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "voice",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *VoiceClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.AccountSID != "" && c.cfg.AuthToken != ""
}

type voiceResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// callStatus maps provider call states onto attempt statuses.
func callStatus(s string) model.AttemptStatus {
	switch s {
	case "completed":
		return model.AttemptStatusCompleted
	case "busy":
		return model.AttemptStatusBusy
	case "no-answer":
		return model.AttemptStatusNoAnswer
	case "failed", "canceled":
		return model.AttemptStatusFailed
	default:
		// queued, initiated, ringing, in-progress
		return model.AttemptStatusCalling
	}
}

func (c *VoiceClient) Place(ctx context.Context, call Call) (*Result, error) {
	form := url.Values{}
	form.Set("To", call.To)
	form.Set("From", call.From)
	form.Set("Script", call.Script)

	endpoint := fmt.Sprintf("%s/accounts/%s/calls", c.cfg.BaseURL, c.cfg.AccountSID)

	var result *Result
	err := c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
		}

		var vr voiceResponse
		if err := json.Unmarshal(body, &vr); err != nil {
			return fmt.Errorf("failed to decode response: %w body=%q", err, string(body))
		}
		if vr.SID == "" {
			return fmt.Errorf("missing call sid in response body=%q", string(body))
		}

		result = &Result{Status: callStatus(vr.Status), ProviderResponse: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
