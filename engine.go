package nexauth

import (
	"context"
	"time"

	"github.com/nexhub/nexauth/password"
	"github.com/nexhub/nexauth/recovery"
	"github.com/nexhub/nexauth/token"
	"github.com/nexhub/nexauth/totpvault"
)

// Engine composes the token service, password hasher, TOTP vault,
// recovery code manager, and the 2FA state machine into the auth
// use cases. It is immutable after Build and safe for concurrent use;
// per-user state lives in the UserStore and in Redis, never in the
// engine itself.
type Engine struct {
	config Config

	store  UserStore
	mailer Mailer

	tokens    *token.Manager
	passwords *password.Hasher
	vault     *totpvault.Vault
	recovery  *recovery.Manager

	pending *pendingTokenStore
	limiter *loginLimiter

	audit   *auditDispatcher
	metrics *metricsRegistry
}

// Configuration returns a copy of the engine configuration.
func (e *Engine) Configuration() Config {
	return e.config
}

// MetricsSnapshot returns the current value of every engine counter.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	e.audit.Close()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(eventType string, success bool, userID, email string, cause error, metadata map[string]string) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Success:   success,
		Metadata:  metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(event)
}

// issuePair mints a fresh access+refresh token pair for the user.
func (e *Engine) issuePair(userID string) (*TokenPair, error) {
	access, _, err := e.tokens.Sign(userID, token.TypeAccess)
	if err != nil {
		return nil, Internal("failed to issue access token", err)
	}
	refresh, _, err := e.tokens.Sign(userID, token.TypeRefresh)
	if err != nil {
		return nil, Internal("failed to issue refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// decodeOrUnauthorized translates any token-layer decode failure into the
// boundary taxonomy: decode failures are always 401, with the underlying
// reason preserved in the message chain.
func (e *Engine) decodeOrUnauthorized(raw string, expected token.Type) (*token.Claims, error) {
	claims, err := e.tokens.Decode(raw, expected)
	if err != nil {
		return nil, &Error{Kind: KindUnauthorized, Message: "Invalid or expired token", Err: err}
	}
	return claims, nil
}

// subjectUser decodes the token and loads its subject from the store.
func (e *Engine) subjectUser(ctx context.Context, raw string, expected token.Type) (*token.Claims, *UserRecord, error) {
	claims, err := e.decodeOrUnauthorized(raw, expected)
	if err != nil {
		return nil, nil, err
	}
	user, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return claims, user, nil
}
