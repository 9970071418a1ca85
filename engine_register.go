package nexauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	mailtmpl "github.com/nexhub/nexauth/mail"
	"github.com/nexhub/nexauth/token"
)

// RegisterRequest is the validated payload for Register.
type RegisterRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates an unverified account: it checks email uniqueness,
// hashes the password, persists the record, and sends the verification
// link. Mail failure after the record is persisted does not roll the
// registration back; it is reported through the audit pipeline only.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)

	if req.FirstName == "" || req.LastName == "" {
		return nil, BadRequest("First and last name are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, BadRequest("Invalid email address")
	}
	if len(req.Password) < 6 {
		return nil, BadRequest("Password must be at least 6 characters")
	}

	if _, err := e.store.FindByEmail(ctx, req.Email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		return nil, Internal("failed to hash password", err)
	}

	user := &UserRecord{
		ID:           uuid.NewString(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.Create(ctx, user); err != nil {
		// A concurrent registration can win the race between the
		// uniqueness check and the insert; surface it as the same
		// conflict the check would have produced.
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(auditEventRegister, true, user.ID, user.Email, nil, nil)

	e.sendVerificationMail(ctx, user)

	return &RegisterResult{UserID: user.ID, Email: user.Email}, nil
}

func (e *Engine) sendVerificationMail(ctx context.Context, user *UserRecord) {
	verification, _, err := e.tokens.Sign(user.ID, token.TypeEmailVerification)
	if err != nil {
		e.emitAudit(auditEventMailFailure, false, user.ID, user.Email, err, nil)
		return
	}

	link := strings.TrimRight(e.config.Mail.BaseURL, "/") + "/auth/verify-email/" + verification
	subject, html, err := mailtmpl.VerificationEmail(e.config.Mail.AppName, user.FirstName, link)
	if err == nil {
		err = e.mailer.Send(ctx, user.Email, subject, html)
	}
	if err != nil {
		e.emitAudit(auditEventMailFailure, false, user.ID, user.Email, err, map[string]string{
			"mail": "verification",
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
