// Package totpvault generates and verifies RFC 6238 time-based one-time
// passwords and keeps the shared secrets encrypted at rest. Unlike
// password hashing, the raw secret must stay recoverable to verify future
// codes, so secrets are sealed with AES-256-GCM under a process-wide
// master key instead of being hashed.
package totpvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	secretBytes = 20
	ivBytes     = 12
)

// ErrIntegrity is returned by Decrypt when the stored authentication tag
// does not verify, which means the ciphertext, IV, or tag was tampered
// with or corrupted.
var ErrIntegrity = errors.New("encrypted secret failed integrity check")

// EncryptedSecret is the storable form of a TOTP secret. Ciphertext, IV,
// and authentication tag are held separately so each can be persisted as
// its own field.
type EncryptedSecret struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Config carries the vault parameters. EncryptionKey must be 32 bytes.
type Config struct {
	Issuer        string
	Period        uint
	Skew          uint
	EncryptionKey []byte
}

// Vault generates, seals, and verifies TOTP secrets. It holds no mutable
// state and is safe for concurrent use.
type Vault struct {
	config Config
	gcm    cipher.AEAD
}

// New validates the config and prepares the AEAD cipher.
func New(cfg Config) (*Vault, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("totp issuer required")
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, errors.New("totp encryption key must be 32 bytes")
	}

	block, err := aes.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivBytes)
	if err != nil {
		return nil, err
	}

	return &Vault{config: cfg, gcm: gcm}, nil
}

// GenerateSecret creates a fresh base32 TOTP secret and the otpauth:// URI
// clients scan into their authenticator app. The account label is the
// user-facing identity, typically the email address.
func (v *Vault) GenerateSecret(account string) (secret, otpAuthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.config.Issuer,
		AccountName: account,
		SecretSize:  secretBytes,
		Period:      v.config.Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.String(), nil
}

// Encrypt seals the base32 secret under a fresh random 12-byte IV. The
// GCM tag is split off the sealed output so the triple can be stored as
// three independent fields.
func (v *Vault) Encrypt(secret string) (*EncryptedSecret, error) {
	iv := make([]byte, ivBytes)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	sealed := v.gcm.Seal(nil, iv, []byte(secret), nil)
	tagOffset := len(sealed) - v.gcm.Overhead()

	return &EncryptedSecret{
		Ciphertext: sealed[:tagOffset],
		IV:         iv,
		AuthTag:    sealed[tagOffset:],
	}, nil
}

// Decrypt recombines the stored triple and opens it. Any authentication
// failure surfaces as ErrIntegrity.
func (v *Vault) Decrypt(es *EncryptedSecret) (string, error) {
	if es == nil || len(es.Ciphertext) == 0 || len(es.IV) != ivBytes {
		return "", ErrIntegrity
	}

	sealed := make([]byte, 0, len(es.Ciphertext)+len(es.AuthTag))
	sealed = append(sealed, es.Ciphertext...)
	sealed = append(sealed, es.AuthTag...)

	plain, err := v.gcm.Open(nil, es.IV, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plain), nil
}

// VerifyCode checks a submitted code against the secret within the
// configured drift window.
func (v *Vault) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    v.config.Period,
		Skew:      v.config.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
