package nexauth

import (
	"context"
	"time"

	"github.com/nexhub/nexauth/totpvault"
)

// UserRecord is the full account record the engine reads from and writes
// to the credential store. Email is unique and immutable after creation.
type UserRecord struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time

	TwoFactor TwoFactorState
}

// TwoFactorState is the user's embedded second-factor sub-record.
//
// Enabled flips to true only after the first successful verification;
// between Setup and that first success the secret and codes exist while
// Enabled is still false (setup-pending). Deinit clears every field.
type TwoFactorState struct {
	Enabled        bool
	Secret         *totpvault.EncryptedSecret
	RecoveryCodes  []string // argon2 hashes, never plaintext
	FailedAttempts int
	LockedUntil    time.Time
	LastVerifiedAt time.Time
}

// Locked reports whether the lockout window is still open at now.
func (s TwoFactorState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

// SetUp reports whether a setup has produced a secret, whether or not the
// first verification happened yet.
func (s TwoFactorState) SetUp() bool {
	return s.Enabled || s.Secret != nil
}

// UserStore is the credential store collaborator. Implementations must
// make each state transition a single conditional update so two requests
// racing on the same user cannot both observe a stale read and win; see
// ConsumeRecoveryCode in particular.
type UserStore interface {
	Create(ctx context.Context, user *UserRecord) error
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error

	// SaveTwoFactorSetup writes the encrypted secret and hashed codes and
	// resets the attempt counter and lockout in the same update.
	SaveTwoFactorSetup(ctx context.Context, id string, secret *totpvault.EncryptedSecret, codeHashes []string) error
	// ConsumeRecoveryCode removes exactly the given hash from the user's
	// set, atomically, and reports whether it was present.
	ConsumeRecoveryCode(ctx context.Context, id, codeHash string) (bool, error)
	// RecordFailedAttempt increments the failure counter and, when the
	// new count reaches threshold, opens a lockout window of lockFor.
	// It reports whether the account is now locked.
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error)
	// MarkTwoFactorVerified zeroes the failure counter, clears any
	// lockout, stamps the verification time, and enables the factor.
	MarkTwoFactorVerified(ctx context.Context, id string, at time.Time) error
	// ClearTwoFactor resets the sub-record to its disabled zero state.
	ClearTwoFactor(ctx context.Context, id string) error
}

// Mailer is the mail-sending collaborator. Send failures after a
// successful state change are reported but never roll the change back.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// TokenPair is a fresh access+refresh issue.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	UserID string
	Email  string
}

// LoginResult is returned by Login. When the account has an active second
// factor, TwoFactorRequired is true and only Pending2FAToken is set; the
// client must complete Verify2FA to receive real session tokens.
type LoginResult struct {
	AccessToken       string
	RefreshToken      string
	TwoFactorRequired bool
	Pending2FAToken   string
}

// TwoFactorSetup is returned by Setup2FA. RecoveryCodes carries the
// plaintext codes exactly once; they are never retrievable again.
type TwoFactorSetup struct {
	OTPAuthURL    string
	RecoveryCodes []string
}
