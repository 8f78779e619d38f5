package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/circuitbreaker"
)

// SMSConfig holds the SMS gateway settings.
type SMSConfig struct {
	BaseURL    string
	APIKey     string
	SenderName string
	Timeout    time.Duration
}

// SMSClient sends plain text messages through the SMS gateway. The gateway
// has no interactive message support; interactive sends degrade to a plain
// message carrying the RSVP link.
type SMSClient struct {
	cfg    SMSConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
}

func NewSMSClient(cfg SMSConfig) *SMSClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMSClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sms",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *SMSClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

type smsRequest struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Message string `json:"message"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *SMSClient) Send(ctx context.Context, msg Message) (*Result, error) {
	reqBody, err := json.Marshal(smsRequest{
		Sender:  c.cfg.SenderName,
		To:      msg.To,
		Message: msg.Body,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "send")
	if err != nil {
		return nil, err
	}

	var result *Result
	err = c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
		}

		var sr smsResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return fmt.Errorf("failed to decode response: %w body=%q", err, string(body))
		}

		status := model.AttemptStatusSent
		if sr.Status == "undelivered" {
			status = model.AttemptStatusUndelivered
		}
		result = &Result{Status: status, ProviderResponse: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
