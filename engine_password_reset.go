package nexauth

import (
	"context"
	"strings"

	mailtmpl "github.com/nexhub/nexauth/mail"
	"github.com/nexhub/nexauth/token"
)

// RequestPasswordReset issues a password-reset token for the account
// behind email and mails the reset link.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return BadRequest("Email is required")
	}

	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	reset, _, err := e.tokens.Sign(user.ID, token.TypePasswordReset)
	if err != nil {
		return Internal("failed to issue password-reset token", err)
	}

	link := strings.TrimRight(e.config.Mail.BaseURL, "/") + "/auth/reset-password?token=" + reset
	subject, html, err := mailtmpl.PasswordResetEmail(e.config.Mail.AppName, user.FirstName, link)
	if err == nil {
		err = e.mailer.Send(ctx, user.Email, subject, html)
	}
	if err != nil {
		e.emitAudit(auditEventMailFailure, false, user.ID, user.Email, err, map[string]string{
			"mail": "password_reset",
		})
		return Internal("failed to send reset mail", err)
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(auditEventPasswordResetRequested, true, user.ID, user.Email, nil, nil)
	return nil
}

// ResetPassword consumes a password-reset token and replaces the
// account's password hash.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < 6 {
		return BadRequest("Password must be at least 6 characters")
	}

	_, user, err := e.subjectUser(ctx, rawToken, token.TypePasswordReset)
	if err != nil {
		return err
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return Internal("failed to hash password", err)
	}
	if err := e.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(auditEventPasswordResetCompleted, true, user.ID, user.Email, nil, nil)
	return nil
}
