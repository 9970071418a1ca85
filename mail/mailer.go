// Package mail renders and delivers the transactional messages the auth
// flows send: the email-verification link at registration and the
// password-reset link. Delivery is behind a narrow interface so tests and
// alternative transports can swap the SMTP sender out.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPConfig carries the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers HTML mail through a single SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTP returns an SMTPMailer for the given relay.
func NewSMTP(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("smtp host and port required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address required")
	}
	return &SMTPMailer{config: cfg}, nil
}

// Send delivers one HTML message. The context is honored only between
// retriable steps; net/smtp itself does not support cancellation.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.config.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := smtp.SendMail(addr, auth, m.config.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes message metadata to the logger instead of sending.
// Used in development and as a safe default when no relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLog returns a LogMailer over the given logger.
func NewLog(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send implements the mailer contract by logging instead of delivering.
func (m *LogMailer) Send(ctx context.Context, to, subject, html string) error {
	m.logger.InfoContext(ctx, "mail suppressed (log mailer)",
		"to", to,
		"subject", subject,
		"bytes", len(html),
	)
	return nil
}
