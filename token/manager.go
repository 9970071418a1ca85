// Package token issues and validates the purpose-scoped JWTs used by the
// authentication core. Every token type is signed with its own secret, so a
// token minted for one purpose can never be accepted at an endpoint that
// expects another, even before the embedded type claim is checked.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type identifies the purpose a token was minted for.
type Type string

const (
	// TypeAccess is the short-lived session token.
	TypeAccess Type = "access-token"
	// TypeRefresh is the long-lived token used to mint new access tokens.
	TypeRefresh Type = "refresh-token"
	// TypePending2FA proves the holder passed the password check and is
	// mid-way through completing or setting up the second factor.
	TypePending2FA Type = "2fa_pending"
	// TypeEmailVerification is embedded in the verification link sent at
	// registration.
	TypeEmailVerification Type = "email-verification"
	// TypePasswordReset is embedded in the password reset link.
	TypePasswordReset Type = "password-reset"
)

var (
	// ErrTokenExpired is returned by Decode for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature is returned by Decode when signature verification fails.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenType is returned by Decode when the embedded type claim does
	// not match the expected type.
	ErrTokenType = errors.New("token type mismatch")
	// ErrTokenMalformed is returned by Decode for strings that are not JWTs.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrBearerMissing is returned by ReadBearer when no header was supplied.
	ErrBearerMissing = errors.New("authorization header missing")
	// ErrBearerMalformed is returned by ReadBearer for non-Bearer schemes or
	// headers without a credential part.
	ErrBearerMalformed = errors.New("authorization header malformed")
)

// Config carries one signing secret and one TTL per token type.
type Config struct {
	Issuer string

	AccessSecret       []byte
	RefreshSecret      []byte
	PendingSecret      []byte
	VerificationSecret []byte
	ResetSecret        []byte

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	PendingTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Claims is the payload carried by every token the manager signs. The
// token type travels inside the payload so that Decode can reject a token
// presented for the wrong purpose independently of the signature check.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and decodes purpose-scoped tokens. It holds no mutable
// state and is safe for concurrent use.
type Manager struct {
	config Config
}

// New validates the config and returns a Manager. Every type must have a
// non-empty secret, secrets must be pairwise distinct, and every TTL must
// be positive.
func New(cfg Config) (*Manager, error) {
	secrets := map[Type][]byte{
		TypeAccess:            cfg.AccessSecret,
		TypeRefresh:           cfg.RefreshSecret,
		TypePending2FA:        cfg.PendingSecret,
		TypeEmailVerification: cfg.VerificationSecret,
		TypePasswordReset:     cfg.ResetSecret,
	}
	seen := make(map[string]Type, len(secrets))
	for typ, secret := range secrets {
		if len(secret) == 0 {
			return nil, fmt.Errorf("missing signing secret for %s", typ)
		}
		if other, dup := seen[string(secret)]; dup {
			return nil, fmt.Errorf("signing secret for %s reused by %s", typ, other)
		}
		seen[string(secret)] = typ
	}
	for typ, ttl := range map[Type]time.Duration{
		TypeAccess:            cfg.AccessTTL,
		TypeRefresh:           cfg.RefreshTTL,
		TypePending2FA:        cfg.PendingTTL,
		TypeEmailVerification: cfg.VerificationTTL,
		TypePasswordReset:     cfg.ResetTTL,
	} {
		if ttl <= 0 {
			return nil, fmt.Errorf("non-positive TTL for %s", typ)
		}
	}

	return &Manager{config: cfg}, nil
}

// Sign mints a token of the given type for subjectID, with expiry taken
// from the per-type TTL. The returned jti is unique per token; callers
// that enforce single use key their deny-list on it.
func (m *Manager) Sign(subjectID string, typ Type) (token string, jti string, err error) {
	secret, err := m.secretFor(typ)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	jti = uuid.NewString()
	claims := Claims{
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    m.config.Issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttlFor(typ))),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// Decode verifies raw against the secret for expected and asserts that
// the embedded type claim matches. Signature failure, expiry, and type
// mismatch are reported as distinct errors; all of them must surface to
// clients as an authorization failure.
func (m *Manager) Decode(raw string, expected Type) (*Claims, error) {
	secret, err := m.secretFor(expected)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != string(expected) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTokenType, claims.TokenType, expected)
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// RemainingTTL reports how long the given claims stay valid from now.
// Returns zero for claims already past expiry.
func (m *Manager) RemainingTTL(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TTLFor exposes the configured TTL for a token type.
func (m *Manager) TTLFor(typ Type) time.Duration {
	return m.ttlFor(typ)
}

func (m *Manager) secretFor(typ Type) ([]byte, error) {
	switch typ {
	case TypeAccess:
		return m.config.AccessSecret, nil
	case TypeRefresh:
		return m.config.RefreshSecret, nil
	case TypePending2FA:
		return m.config.PendingSecret, nil
	case TypeEmailVerification:
		return m.config.VerificationSecret, nil
	case TypePasswordReset:
		return m.config.ResetSecret, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
}

func (m *Manager) ttlFor(typ Type) time.Duration {
	switch typ {
	case TypeAccess:
		return m.config.AccessTTL
	case TypeRefresh:
		return m.config.RefreshTTL
	case TypePending2FA:
		return m.config.PendingTTL
	case TypeEmailVerification:
		return m.config.VerificationTTL
	case TypePasswordReset:
		return m.config.ResetTTL
	default:
		return 0
	}
}

// ReadBearer extracts the credential from an "Authorization: Bearer <token>"
// header value.
func ReadBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrBearerMissing
	}

	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrBearerMalformed
	}
	credential = strings.TrimSpace(credential)
	if credential == "" || strings.ContainsRune(credential, ' ') {
		return "", ErrBearerMalformed
	}
	return credential, nil
}
