package nexauth

import (
	"context"

	"github.com/nexhub/nexauth/token"
)

// VerifyEmail consumes an email-verification token, marks the account
// verified, and issues a first session so the client lands logged in.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) (*TokenPair, error) {
	_, user, err := e.subjectUser(ctx, rawToken, token.TypeEmailVerification)
	if err != nil {
		return nil, err
	}
	if user.Verified {
		return nil, ErrAlreadyVerified
	}

	if err := e.store.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}

	pair, err := e.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(auditEventEmailVerified, true, user.ID, user.Email, nil, nil)

	return pair, nil
}
