package nexauth

import (
	"context"

	"github.com/nexhub/nexauth/token"
)

// RefreshAccessToken mints a new access token from a valid refresh
// token. The subject is re-checked against the store so tokens for
// deleted accounts stop working immediately.
func (e *Engine) RefreshAccessToken(ctx context.Context, rawRefresh string) (string, error) {
	claims, err := e.decodeOrUnauthorized(rawRefresh, token.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	user, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", err
	}

	access, _, err := e.tokens.Sign(user.ID, token.TypeAccess)
	if err != nil {
		return "", Internal("failed to issue access token", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(auditEventTokenRefreshed, true, user.ID, user.Email, nil, nil)
	return access, nil
}
