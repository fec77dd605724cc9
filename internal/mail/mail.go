// Package mail delivers owner reports by email.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/gomail.v2"
)

// Message is one outgoing email with optional file attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send delivers msg. gomail has no context support, so ctx is only checked
// before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	for _, path := range msg.Attachments {
		gm.Attach(path, gomail.Rename(filepath.Base(path)))
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer logs messages instead of sending them. Used when no SMTP relay
// is configured.
type LogMailer struct{}

// Send logs msg at INFO.
func (LogMailer) Send(_ context.Context, msg Message) error {
	slog.Info("mail not sent, no SMTP relay configured",
		"to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}
