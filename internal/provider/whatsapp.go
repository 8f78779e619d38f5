package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/circuitbreaker"
)

// WhatsAppConfig holds the WhatsApp Business API gateway settings.
type WhatsAppConfig struct {
	BaseURL   string
	Token     string
	FromPhone string
	Timeout   time.Duration
}

// WhatsAppClient sends template and interactive messages through the
// WhatsApp gateway.
type WhatsAppClient struct {
	cfg    WhatsAppConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
}

func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WhatsAppClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "whatsapp",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *WhatsAppClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.Token != "" && c.cfg.FromPhone != ""
}

type whatsappRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Interactive bool   `json:"interactive,omitempty"`
}

type whatsappResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func (c *WhatsAppClient) Send(ctx context.Context, msg Message) (*Result, error) {
	reqBody, err := json.Marshal(whatsappRequest{
		From:        c.cfg.FromPhone,
		To:          msg.To,
		Body:        msg.Body,
		Interactive: msg.Interactive,
	})
	if err != nil {
		return nil, err
	}

	var result *Result
	err = c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
		}

		var wr whatsappResponse
		if err := json.Unmarshal(body, &wr); err != nil {
			return fmt.Errorf("failed to decode response: %w body=%q", err, string(body))
		}
		if wr.MessageID == "" {
			return fmt.Errorf("missing message_id in response body=%q", string(body))
		}

		status := model.AttemptStatusSent
		if wr.Status == "delivered" {
			status = model.AttemptStatusDelivered
		}
		result = &Result{Status: status, ProviderResponse: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
