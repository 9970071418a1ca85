// Package recovery manages the single-use backup codes that substitute
// for a TOTP code when the authenticator device is unavailable. Codes are
// generated independently of the TOTP secret and stored only as argon2id
// hashes.
package recovery

import (
	"crypto/rand"
	"strings"
	"sync"

	"github.com/nexhub/nexauth/password"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config controls how many codes a setup produces and how long each is.
type Config struct {
	Count  int
	Length int
}

// Manager generates, hashes, and consumes recovery codes.
type Manager struct {
	config Config
	hasher *password.Hasher
}

// New returns a Manager that hashes codes with the given hasher, the same
// slow hash used for account passwords.
func New(cfg Config, hasher *password.Hasher) *Manager {
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Length <= 0 {
		cfg.Length = 10
	}
	return &Manager{config: cfg, hasher: hasher}
}

// Generate produces the configured number of cryptographically random
// uppercase alphanumeric codes.
func (m *Manager) Generate() ([]string, error) {
	codes := make([]string, m.config.Count)
	for i := range codes {
		code, err := randomCode(m.config.Length)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// HashAll hashes every code concurrently, one argon2 derivation per code.
func (m *Manager) HashAll(codes []string) ([]string, error) {
	hashes := make([]string, len(codes))
	errs := make([]error, len(codes))

	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			hashes[i], errs[i] = m.hasher.Hash(code)
		}(i, code)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// Consume compares the submitted code against every stored hash and
// returns the hash it matched so the caller can remove exactly that entry
// in one atomic store operation. The scan never breaks early: every hash
// is verified regardless of where a match lands, so response timing does
// not reveal which entry matched.
func (m *Manager) Consume(submitted string, hashes []string) (matchedHash string, ok bool) {
	normalized := Normalize(submitted)
	if normalized == "" {
		// Still burn one verification so an empty submission is not
		// distinguishable by timing from a wrong code.
		if len(hashes) > 0 {
			_, _ = m.hasher.Verify("-", hashes[0])
		}
		return "", false
	}

	for _, hash := range hashes {
		match, err := m.hasher.Verify(normalized, hash)
		if err == nil && match && !ok {
			matchedHash = hash
			ok = true
		}
	}
	return matchedHash, ok
}

// Normalize canonicalizes a user-submitted code: uppercase with separators
// and whitespace stripped.
func Normalize(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func randomCode(length int) (string, error) {
	// Rejection sampling keeps the 36-character alphabet unbiased.
	const limit = byte(252) // largest multiple of 36 below 256

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
