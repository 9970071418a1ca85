package nexauth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nexhub/nexauth/token"
)

func TestLoginIssuesTypedPair(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	id := registerUser(t, engine, "alice@example.com", "sekret1")

	result, err := engine.Login(context.Background(), "alice@example.com", "sekret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("2FA demanded for an account without a second factor")
	}

	access := decodeClaims(t, engine, result.AccessToken, token.TypeAccess)
	refresh := decodeClaims(t, engine, result.RefreshToken, token.TypeRefresh)
	if access.Subject != id || refresh.Subject != id {
		t.Fatal("tokens issued for wrong subject")
	}

	// The pair is purpose-bound: neither token passes as the other type.
	if _, err := engine.tokens.Decode(result.AccessToken, token.TypeRefresh); err == nil {
		t.Error("access token decoded as refresh token")
	}
	if _, err := engine.tokens.Decode(result.RefreshToken, token.TypeAccess); err == nil {
		t.Error("refresh token decoded as access token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	registerUser(t, engine, "alice@example.com", "sekret1")

	_, err := engine.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("err = %v, want ErrIncorrectPassword", err)
	}
	if got := engine.MetricsSnapshot()["login_failure"]; got != 1 {
		t.Fatalf("login_failure = %d, want 1", got)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())

	_, err := engine.Login(context.Background(), "nobody@example.com", "sekret1")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestLoginThrottleOpensAndClears(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	registerUser(t, engine, "alice@example.com", "sekret1")

	for i := 0; i < 3; i++ {
		if _, err := engine.Login(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrIncorrectPassword) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	// Budget exhausted: even the correct password is rejected.
	_, err := engine.Login(context.Background(), "alice@example.com", "sekret1")
	if !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("err = %v, want ErrLoginThrottled", err)
	}
	if got := engine.MetricsSnapshot()["login_throttled"]; got != 1 {
		t.Fatalf("login_throttled = %d, want 1", got)
	}
}

func TestLoginThrottleResetOnSuccess(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	registerUser(t, engine, "alice@example.com", "sekret1")

	for i := 0; i < 2; i++ {
		_, _ = engine.Login(context.Background(), "alice@example.com", "wrong")
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "sekret1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Success cleared the counter, so a fresh budget applies.
	for i := 0; i < 2; i++ {
		_, _ = engine.Login(context.Background(), "alice@example.com", "wrong")
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "sekret1"); err != nil {
		t.Fatalf("Login after reset failed: %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())

	if _, err := engine.Login(context.Background(), "", "sekret1"); KindOf(err) != KindBadRequest {
		t.Fatalf("empty email: %v", err)
	}
	if _, err := engine.Login(context.Background(), "a@example.com", ""); KindOf(err) != KindBadRequest {
		t.Fatalf("empty password: %v", err)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	id := registerUser(t, engine, "alice@example.com", "sekret1")

	result, err := engine.Login(context.Background(), "alice@example.com", "sekret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	access, err := engine.RefreshAccessToken(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccessToken failed: %v", err)
	}
	claims := decodeClaims(t, engine, access, token.TypeAccess)
	if claims.Subject != id {
		t.Fatal("refreshed token has wrong subject")
	}

	// An access token cannot drive the refresh endpoint.
	if _, err := engine.RefreshAccessToken(context.Background(), result.AccessToken); KindOf(err) != KindUnauthorized {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	engine, _, mailer := newTestEngine(t, testConfig())
	registerUser(t, engine, "alice@example.com", "oldpass1")

	if err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	mail := mailer.lastTo(t)
	const marker = "/auth/reset-password?token="
	idx := strings.Index(mail.HTML, marker)
	if idx < 0 {
		t.Fatalf("reset mail has no reset link: %q", mail.Subject)
	}
	raw := mail.HTML[idx+len(marker):]
	if end := strings.IndexRune(raw, '"'); end >= 0 {
		raw = raw[:end]
	}

	if err := engine.ResetPassword(context.Background(), raw, "newpass1"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := engine.Login(context.Background(), "alice@example.com", "oldpass1"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice@example.com", "newpass1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetPasswordRejectsShortPassword(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())

	if err := engine.ResetPassword(context.Background(), "whatever", "123"); KindOf(err) != KindBadRequest {
		t.Fatalf("short password: %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())

	if err := engine.RequestPasswordReset(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
