package nexauth

import (
	"errors"
	"time"

	"github.com/nexhub/nexauth/password"
	"github.com/nexhub/nexauth/token"
	"github.com/nexhub/nexauth/totpvault"
)

// Config is the immutable engine configuration, loaded once at startup.
type Config struct {
	Token         token.Config
	Password      password.Config
	TOTP          totpvault.Config
	Recovery      RecoveryConfig
	Lockout       LockoutConfig
	LoginThrottle LoginThrottleConfig
	Mail          MailConfig
	Audit         AuditConfig

	// ProductionMode hardens transport-level behavior (secure cookies).
	ProductionMode bool
}

/*
====================================
RECOVERY CODE CONFIG
====================================
*/

// RecoveryConfig controls recovery code generation.
type RecoveryConfig struct {
	Count  int
	Length int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig governs the 2FA attempt-lockout policy: after Threshold
// consecutive failures, verification is blocked for Duration regardless
// of code correctness.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
LOGIN THROTTLE CONFIG
====================================
*/

// LoginThrottleConfig bounds failed password attempts per account within
// a fixed window, backed by Redis.
type LoginThrottleConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig shapes the verification and reset links embedded in outgoing
// mail.
type MailConfig struct {
	BaseURL string
	AppName string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit event pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// DefaultConfig returns the baseline configuration: standard TTLs, argon2id
// defaults, a 5-attempt 15-minute lockout, and auditing enabled. Signing
// secrets and the TOTP encryption key are deployment-provided and start
// empty.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: token.Config{
			Issuer:          "nexauth",
			AccessTTL:       5 * time.Minute,
			RefreshTTL:      30 * 24 * time.Hour,
			PendingTTL:      10 * time.Minute,
			VerificationTTL: time.Hour,
			ResetTTL:        time.Hour,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TOTP: totpvault.Config{
			Issuer: "nexauth",
			Period: 30,
			Skew:   1,
		},
		Recovery: RecoveryConfig{
			Count:  10,
			Length: 10,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		LoginThrottle: LoginThrottleConfig{
			Enabled:     true,
			MaxFailures: 10,
			Window:      15 * time.Minute,
		},
		Mail: MailConfig{
			BaseURL: "http://localhost:8080",
			AppName: "nexauth",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if cfg.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if cfg.LoginThrottle.Enabled {
		if cfg.LoginThrottle.MaxFailures <= 0 || cfg.LoginThrottle.Window <= 0 {
			return errors.New("login throttle requires positive budget and window")
		}
	}
	if cfg.Recovery.Count <= 0 || cfg.Recovery.Length <= 0 {
		return errors.New("recovery code count and length must be positive")
	}
	if cfg.Mail.BaseURL == "" {
		return errors.New("mail base URL required")
	}
	// Token, password, and TOTP sections validate in their own
	// constructors during Build.
	return nil
}
