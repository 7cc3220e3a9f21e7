package transport

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/domain"
)

// sendMailFunc matches smtp.SendMail; swapped in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAdapter delivers over SMTP.
type EmailAdapter struct {
	cfg  config.SMTPConfig
	send sendMailFunc
}

// NewEmailAdapter validates the SMTP settings and builds the adapter.
func NewEmailAdapter(cfg config.SMTPConfig) (*EmailAdapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP_FROM_EMAIL is required")
	}
	return &EmailAdapter{cfg: cfg, send: smtp.SendMail}, nil
}

func (a *EmailAdapter) Name() string { return "smtp" }

// Send builds an RFC 5322 message and hands it to the SMTP server.
func (a *EmailAdapter) Send(ctx context.Context, n *domain.RenderedNotification) (Result, error) {
	if n.UserEmail == "" {
		return Result{}, domain.NewTerminalError("no recipient email on record", nil)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\n", a.cfg.FromName, a.cfg.From) +
		fmt.Sprintf("To: %s\r\n", n.UserEmail) +
		fmt.Sprintf("Subject: %s\r\n", n.Subject) +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		n.Body + "\r\n")

	if err := a.send(addr, auth, a.cfg.From, []string{n.UserEmail}, msg); err != nil {
		return Result{}, domain.NewTransientError("smtp send failed", err)
	}

	return Result{
		Recipient: n.UserEmail,
		Metadata: map[string]any{
			"transport": a.Name(),
			"recipient": n.UserEmail,
		},
	}, nil
}
