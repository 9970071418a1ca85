package nexauth

import (
	"context"
	"time"

	"github.com/nexhub/nexauth/token"
)

// Initiate2FA starts second-factor enrollment for an authenticated user.
// The caller presents an access token; the engine hands back a
// 2fa_pending token scoped to the same subject, which authorizes the
// subsequent Setup2FA call.
func (e *Engine) Initiate2FA(ctx context.Context, rawAccess string) (string, error) {
	_, user, err := e.subjectUser(ctx, rawAccess, token.TypeAccess)
	if err != nil {
		return "", err
	}
	if user.TwoFactor.Enabled {
		return "", ErrTwoFactorAlreadySetUp
	}

	pending, _, err := e.tokens.Sign(user.ID, token.TypePending2FA)
	if err != nil {
		return "", Internal("failed to issue 2fa_pending token", err)
	}

	e.emitAudit(auditEventTwoFactorInitiated, true, user.ID, user.Email, nil, nil)
	return pending, nil
}

// Setup2FA generates the TOTP secret and recovery codes for the subject
// of a 2fa_pending token. The secret is sealed before it is stored; the
// plaintext recovery codes appear in the result exactly once and are
// never retrievable again. Setup always clears a prior attempt counter
// and lockout, so a deinit-then-setup cycle carries no residue.
func (e *Engine) Setup2FA(ctx context.Context, rawPending string) (*TwoFactorSetup, error) {
	_, user, err := e.pendingSubject(ctx, rawPending)
	if err != nil {
		return nil, err
	}
	if user.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadySetUp
	}

	secret, otpAuthURL, err := e.vault.GenerateSecret(user.Email)
	if err != nil {
		return nil, Internal("failed to generate totp secret", err)
	}
	sealed, err := e.vault.Encrypt(secret)
	if err != nil {
		return nil, Internal("failed to encrypt totp secret", err)
	}

	codes, err := e.recovery.Generate()
	if err != nil {
		return nil, Internal("failed to generate recovery codes", err)
	}
	hashes, err := e.recovery.HashAll(codes)
	if err != nil {
		return nil, Internal("failed to hash recovery codes", err)
	}

	if err := e.store.SaveTwoFactorSetup(ctx, user.ID, sealed, hashes); err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSetup)
	e.emitAudit(auditEventTwoFactorSetup, true, user.ID, user.Email, nil, nil)

	return &TwoFactorSetup{OTPAuthURL: otpAuthURL, RecoveryCodes: codes}, nil
}

// Verify2FA completes a pending verification with exactly one of a TOTP
// code or a recovery code. While a lockout window is open every attempt
// is rejected before any code is examined. A failure increments the
// persistent attempt counter and opens the lockout window at the
// threshold; a success resets the counter, enables the factor on first
// use, revokes the pending token, and issues a fresh session pair.
func (e *Engine) Verify2FA(ctx context.Context, rawPending, totpCode, recoveryCode string) (*TokenPair, error) {
	if (totpCode == "") == (recoveryCode == "") {
		return nil, ErrBothOrNeitherCode
	}

	claims, user, err := e.pendingSubject(ctx, rawPending)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if user.TwoFactor.Locked(now) {
		e.emitAudit(auditEventTwoFactorFailed, false, user.ID, user.Email, ErrTwoFactorLocked, nil)
		return nil, ErrTwoFactorLocked
	}

	var (
		verified     bool
		usedRecovery bool
	)
	switch {
	case totpCode != "":
		if user.TwoFactor.Secret == nil {
			return nil, ErrTwoFactorNotActive
		}
		secret, derr := e.vault.Decrypt(user.TwoFactor.Secret)
		if derr != nil {
			// Tag mismatch means the stored secret was tampered with or
			// corrupted; never fall through to code comparison.
			e.emitAudit(auditEventTwoFactorFailed, false, user.ID, user.Email, derr, nil)
			return nil, ErrTwoFactorNotActive
		}
		verified = e.vault.VerifyCode(secret, totpCode)

	default:
		matchedHash, ok := e.recovery.Consume(recoveryCode, user.TwoFactor.RecoveryCodes)
		if ok {
			consumed, cerr := e.store.ConsumeRecoveryCode(ctx, user.ID, matchedHash)
			if cerr != nil {
				return nil, cerr
			}
			// A concurrent request may have burned the same code between
			// our read and the conditional removal; only the request
			// that actually removed it wins.
			verified = consumed
			usedRecovery = consumed
		}
	}

	if !verified {
		return nil, e.recordVerifyFailure(ctx, user, now)
	}

	if err := e.store.MarkTwoFactorVerified(ctx, user.ID, now); err != nil {
		return nil, err
	}
	if err := e.pending.Revoke(ctx, claims.ID, e.tokens.RemainingTTL(claims)); err != nil {
		return nil, err
	}

	pair, err := e.issuePair(user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	if usedRecovery {
		e.metricInc(MetricRecoveryCodeUsed)
	}
	e.emitAudit(auditEventTwoFactorVerified, true, user.ID, user.Email, nil, map[string]string{
		"method": verifyMethod(usedRecovery),
	})

	return pair, nil
}

// Deinit2FA turns the second factor off for an authenticated user and
// clears every 2FA field: secret, recovery codes, attempts, lockout.
func (e *Engine) Deinit2FA(ctx context.Context, rawAccess string) error {
	_, user, err := e.subjectUser(ctx, rawAccess, token.TypeAccess)
	if err != nil {
		return err
	}
	if !user.TwoFactor.SetUp() {
		return ErrTwoFactorNotSetUp
	}

	if err := e.store.ClearTwoFactor(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorDeinit)
	e.emitAudit(auditEventTwoFactorDeinit, true, user.ID, user.Email, nil, nil)
	return nil
}

// pendingSubject decodes a 2fa_pending token, rejects jtis already spent
// by a successful verification, and loads the subject user.
func (e *Engine) pendingSubject(ctx context.Context, rawPending string) (*token.Claims, *UserRecord, error) {
	claims, err := e.decodeOrUnauthorized(rawPending, token.TypePending2FA)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := e.pending.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		e.metricInc(MetricPendingReplayBlocked)
		return nil, nil, ErrPendingTokenUsed
	}

	user, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return claims, user, nil
}

func (e *Engine) recordVerifyFailure(ctx context.Context, user *UserRecord, now time.Time) error {
	locked, err := e.store.RecordFailedAttempt(ctx, user.ID, e.config.Lockout.Threshold, e.config.Lockout.Duration)
	if err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(auditEventTwoFactorFailed, false, user.ID, user.Email, ErrTwoFactorCodeInvalid, nil)
	if locked {
		e.metricInc(MetricTwoFactorLockout)
		e.emitAudit(auditEventTwoFactorLockout, false, user.ID, user.Email, nil, map[string]string{
			"locked_until": now.Add(e.config.Lockout.Duration).Format(time.RFC3339),
		})
	}
	return ErrTwoFactorCodeInvalid
}

func verifyMethod(usedRecovery bool) string {
	if usedRecovery {
		return "recovery_code"
	}
	return "totp"
}
