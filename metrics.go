package nexauth

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts completed registrations.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations rejected for a taken email.
	MetricRegisterDuplicate
	// MetricLoginSuccess counts logins that issued session tokens.
	MetricLoginSuccess
	// MetricLoginFailure counts failed password checks.
	MetricLoginFailure
	// MetricLoginThrottled counts logins rejected by the failure window.
	MetricLoginThrottled
	// MetricLoginPending2FA counts logins that branched to the second factor.
	MetricLoginPending2FA
	// MetricEmailVerified counts completed email verifications.
	MetricEmailVerified
	// MetricPasswordResetRequested counts reset links issued.
	MetricPasswordResetRequested
	// MetricPasswordResetCompleted counts completed password resets.
	MetricPasswordResetCompleted
	// MetricRefreshSuccess counts access tokens minted from a refresh token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricTwoFactorSetup counts completed 2FA setups.
	MetricTwoFactorSetup
	// MetricTwoFactorSuccess counts successful verifications.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts failed verifications.
	MetricTwoFactorFailure
	// MetricTwoFactorLockout counts lockout windows opened.
	MetricTwoFactorLockout
	// MetricRecoveryCodeUsed counts verifications completed with a recovery code.
	MetricRecoveryCodeUsed
	// MetricPendingReplayBlocked counts reuse attempts of a spent 2fa_pending token.
	MetricPendingReplayBlocked
	// MetricTwoFactorDeinit counts deactivations.
	MetricTwoFactorDeinit

	metricCount
)

var metricNames = map[MetricID]string{
	MetricRegisterSuccess:        "register_success",
	MetricRegisterDuplicate:      "register_duplicate",
	MetricLoginSuccess:           "login_success",
	MetricLoginFailure:           "login_failure",
	MetricLoginThrottled:         "login_throttled",
	MetricLoginPending2FA:        "login_pending_2fa",
	MetricEmailVerified:          "email_verified",
	MetricPasswordResetRequested: "password_reset_requested",
	MetricPasswordResetCompleted: "password_reset_completed",
	MetricRefreshSuccess:         "refresh_success",
	MetricRefreshFailure:         "refresh_failure",
	MetricTwoFactorSetup:         "twofactor_setup",
	MetricTwoFactorSuccess:       "twofactor_success",
	MetricTwoFactorFailure:       "twofactor_failure",
	MetricTwoFactorLockout:       "twofactor_lockout",
	MetricRecoveryCodeUsed:       "recovery_code_used",
	MetricPendingReplayBlocked:   "pending_replay_blocked",
	MetricTwoFactorDeinit:        "twofactor_deinit",
}

// metricsRegistry is a fixed array of atomic counters; incrementing is a
// single atomic add with no allocation on the hot path.
type metricsRegistry struct {
	counters [metricCount]atomic.Uint64
}

func newMetricsRegistry() *metricsRegistry {
	return &metricsRegistry{}
}

func (m *metricsRegistry) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *metricsRegistry) Value(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot returns the current value of every counter keyed by name.
func (m *metricsRegistry) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, int(metricCount))
	if m == nil {
		return out
	}
	for id, name := range metricNames {
		out[name] = m.counters[id].Load()
	}
	return out
}
