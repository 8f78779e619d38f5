package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/logger"
)

// Config holds SMTP settings. An empty Host disables sending.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends job summary emails to tenant contacts. All sends are
// best-effort; a mail failure never affects job state.
type Mailer struct {
	cfg    Config
	dialer *gomail.Dialer
	logger *logger.Logger
}

func NewMailer(cfg Config, log *logger.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: log.WithComponent("mailer")}
	if cfg.Host != "" {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return m
}

// Enabled reports whether SMTP is configured.
func (m *Mailer) Enabled() bool {
	return m.dialer != nil
}

// SendJobSummary mails the batch outcome to the tenant contact.
func (m *Mailer) SendJobSummary(tenant *model.Tenant, event *model.Event, job *model.BulkJob) error {
	if !m.Enabled() {
		return nil
	}
	if tenant.ContactEmail == "" {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", tenant.ContactEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Dispatch summary for %s", event.Title))
	msg.SetBody("text/plain", summaryBody(event, job))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send summary email: %w", err)
	}
	return nil
}

func summaryBody(event *model.Event, job *model.BulkJob) string {
	body := fmt.Sprintf(
		"Your %s batch for %s has finished with status %s.\n\n"+
			"Recipients: %d\nProcessed: %d\nSucceeded: %d\nFailed: %d\n",
		job.Type, event.Title, job.Status,
		job.Total, job.Processed, job.Success, job.Failed)
	if job.SkippedLimit > 0 {
		body += fmt.Sprintf("Skipped over plan limit: %d\n", job.SkippedLimit)
	}
	if job.FailReason != "" {
		body += fmt.Sprintf("Reason: %s\n", job.FailReason)
	}
	return body
}
