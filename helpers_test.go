package nexauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nexhub/nexauth/password"
	"github.com/nexhub/nexauth/token"
	"github.com/nexhub/nexauth/totpvault"
)

// fakeUserStore is a map-backed UserStore with the same atomic-update
// semantics the Mongo implementation provides.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*UserRecord
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*UserRecord)}
}

func (s *fakeUserStore) Create(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrEmailTaken
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	clone.TwoFactor.RecoveryCodes = append([]string(nil), user.TwoFactor.RecoveryCodes...)
	return &clone, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			clone.TwoFactor.RecoveryCodes = append([]string(nil), user.TwoFactor.RecoveryCodes...)
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (s *fakeUserStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Verified = true
	return nil
}

func (s *fakeUserStore) SaveTwoFactorSetup(_ context.Context, id string, secret *totpvault.EncryptedSecret, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.TwoFactor.Secret = secret
	user.TwoFactor.RecoveryCodes = append([]string(nil), codeHashes...)
	user.TwoFactor.FailedAttempts = 0
	user.TwoFactor.LockedUntil = time.Time{}
	user.TwoFactor.Enabled = false
	return nil
}

func (s *fakeUserStore) ConsumeRecoveryCode(_ context.Context, id, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return false, ErrUserNotFound
	}
	for i, hash := range user.TwoFactor.RecoveryCodes {
		if hash == codeHash {
			user.TwoFactor.RecoveryCodes = append(
				user.TwoFactor.RecoveryCodes[:i],
				user.TwoFactor.RecoveryCodes[i+1:]...,
			)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) RecordFailedAttempt(_ context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return false, ErrUserNotFound
	}
	user.TwoFactor.FailedAttempts++
	if user.TwoFactor.FailedAttempts >= threshold {
		user.TwoFactor.LockedUntil = time.Now().UTC().Add(lockFor)
		return true, nil
	}
	return false, nil
}

func (s *fakeUserStore) MarkTwoFactorVerified(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.TwoFactor.Enabled = true
	user.TwoFactor.FailedAttempts = 0
	user.TwoFactor.LockedUntil = time.Time{}
	user.TwoFactor.LastVerifiedAt = at
	return nil
}

func (s *fakeUserStore) ClearTwoFactor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.TwoFactor = TwoFactorState{RecoveryCodes: []string{}}
	return nil
}

// mustUser returns the raw stored record for assertions.
func (s *fakeUserStore) mustUser(t *testing.T, id string) UserRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		t.Fatalf("user %s not in store", id)
	}
	return *user
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *fakeMailer) lastTo(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret-0000000000001")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-000000000001")
	cfg.Token.PendingSecret = []byte("test-pending-secret-000000000001")
	cfg.Token.VerificationSecret = []byte("test-verification-secret-000001")
	cfg.Token.ResetSecret = []byte("test-reset-secret-00000000000001")
	cfg.TOTP.EncryptionKey = []byte(strings.Repeat("k", 32))
	// Keep argon2 cheap so the suite stays fast.
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.LoginThrottle = LoginThrottleConfig{Enabled: true, MaxFailures: 3, Window: time.Minute}
	return cfg
}

// newTestEngineRedis returns a client backed by a per-test miniredis.
func newTestEngineRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newTestEngine builds an engine over a fake store, a fake mailer, and a
// miniredis instance.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeUserStore, *fakeMailer) {
	t.Helper()

	mini := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	store := newFakeUserStore()
	mailer := &fakeMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithUserStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mailer
}

// registerUser registers a user and returns its id.
func registerUser(t *testing.T, engine *Engine, email, pw string) string {
	t.Helper()
	result, err := engine.Register(context.Background(), RegisterRequest{
		FirstName: "Alice",
		LastName:  "Nguyen",
		Email:     email,
		Password:  pw,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result.UserID
}

// decodeClaims is a test-side shortcut into the engine's token manager.
func decodeClaims(t *testing.T, engine *Engine, raw string, typ token.Type) *token.Claims {
	t.Helper()
	claims, err := engine.tokens.Decode(raw, typ)
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", typ, err)
	}
	return claims
}
