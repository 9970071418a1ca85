package nexauth

import (
	"errors"
	"net/http"
)

// Kind classifies an engine error by the HTTP status it maps to at the
// transport boundary.
type Kind uint8

const (
	// KindInternal covers persistence and mail failures; surfaced as an
	// opaque 500.
	KindInternal Kind = iota
	// KindBadRequest covers malformed input, missing fields, and wrong
	// token purpose at the boundary.
	KindBadRequest
	// KindUnauthorized covers bad passwords, invalid or expired tokens,
	// wrong 2FA codes, lockout, and corrupted encrypted secrets.
	KindUnauthorized
	// KindNotFound covers lookups with no matching user.
	KindNotFound
	// KindConflict covers duplicate registration.
	KindConflict
)

// Error is the engine's error value: a kind for status mapping and a
// message safe to echo to clients. Wrapped causes stay internal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// BadRequest builds a KindBadRequest error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict builds a KindConflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Internal wraps a backend failure. The cause stays server-side; clients
// see an opaque 500.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

var (
	// ErrUserNotFound is returned when no user exists for an id or email.
	ErrUserNotFound = NotFound("User not found")
	// ErrEmailTaken is returned when registering an email that already
	// has an account.
	ErrEmailTaken = Conflict("Email already registered")
	// ErrIncorrectPassword is returned when the password check fails.
	ErrIncorrectPassword = Unauthorized("Incorrect password")
	// ErrAlreadyVerified is returned when verifying an email twice.
	ErrAlreadyVerified = BadRequest("Email already verified")
	// ErrLoginThrottled is returned when failed logins exceed the window budget.
	ErrLoginThrottled = Unauthorized("Too many failed login attempts")

	// ErrTwoFactorAlreadySetUp guards Initiate and Setup against accounts
	// with an active second factor.
	ErrTwoFactorAlreadySetUp = BadRequest("2FA already set up")
	// ErrTwoFactorNotSetUp guards Deinit on accounts without one.
	ErrTwoFactorNotSetUp = BadRequest("2FA is not set up")
	// ErrTwoFactorNotActive is returned when verification runs against a
	// missing or undecryptable stored secret.
	ErrTwoFactorNotActive = Unauthorized("2FA is not active")
	// ErrTwoFactorCodeInvalid is returned for a wrong TOTP or recovery code.
	ErrTwoFactorCodeInvalid = Unauthorized("Invalid 2FA code")
	// ErrTwoFactorLocked is returned while the lockout window is open,
	// regardless of code correctness.
	ErrTwoFactorLocked = Unauthorized("2FA verification temporarily locked")
	// ErrBothOrNeitherCode rejects Verify calls that supply both a TOTP
	// and a recovery code, or neither.
	ErrBothOrNeitherCode = BadRequest("Provide only single kind of code.")
	// ErrPendingTokenUsed rejects a 2fa_pending token that already
	// completed a verification.
	ErrPendingTokenUsed = Unauthorized("2FA token already used")
)

// KindOf extracts the kind from any error in err's chain; unclassified
// errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err. Internal errors get
// a generic message so backend details never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}

// StatusOf maps an error kind to its HTTP status code.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
