package nexauth

import (
	"context"

	"github.com/nexhub/nexauth/token"
)

// Login checks the password for the account behind email and issues
// session tokens. When the account has an active second factor, the
// result carries only a 2fa_pending token; the client must complete
// Verify2FA to receive the real pair.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, BadRequest("Email and password are required")
	}

	if err := e.limiter.Check(ctx, email); err != nil {
		if KindOf(err) == KindUnauthorized {
			e.metricInc(MetricLoginThrottled)
		}
		return nil, err
	}

	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	match, err := e.passwords.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		return nil, Internal("failed to verify password", err)
	}
	if !match {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(auditEventLogin, false, user.ID, user.Email, ErrIncorrectPassword, nil)
		if rerr := e.limiter.RecordFailure(ctx, email); rerr != nil {
			return nil, rerr
		}
		return nil, ErrIncorrectPassword
	}

	if err := e.limiter.Reset(ctx, email); err != nil {
		return nil, err
	}

	if user.TwoFactor.Enabled {
		pending, _, err := e.tokens.Sign(user.ID, token.TypePending2FA)
		if err != nil {
			return nil, Internal("failed to issue 2fa_pending token", err)
		}
		e.metricInc(MetricLoginPending2FA)
		e.emitAudit(auditEventLoginPending2FA, true, user.ID, user.Email, nil, nil)
		return &LoginResult{TwoFactorRequired: true, Pending2FAToken: pending}, nil
	}

	pair, err := e.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(auditEventLogin, true, user.ID, user.Email, nil, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
