package nexauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrEmailTaken, http.StatusConflict},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrIncorrectPassword, http.StatusUnauthorized},
		{ErrTwoFactorLocked, http.StatusUnauthorized},
		{ErrBothOrNeitherCode, http.StatusBadRequest},
		{Internal("db down", errors.New("conn refused")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrEmailTaken), http.StatusConflict},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessageOfHidesInternals(t *testing.T) {
	err := Internal("mongo write failed", errors.New("socket closed"))
	if got := MessageOf(err); got != "Internal server error" {
		t.Fatalf("MessageOf leaked %q", got)
	}
	if got := MessageOf(ErrTwoFactorCodeInvalid); got != "Invalid 2FA code" {
		t.Fatalf("MessageOf = %q", got)
	}
	if got := MessageOf(errors.New("raw")); got != "Internal server error" {
		t.Fatalf("MessageOf leaked %q for unclassified error", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrapper", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if err.Error() != "wrapper: root cause" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	mini := newTestEngineRedis(t)

	cases := map[string]*Builder{
		"no store":  New().WithConfig(testConfig()).WithRedis(mini).WithMailer(&fakeMailer{}),
		"no mailer": New().WithConfig(testConfig()).WithRedis(mini).WithUserStore(newFakeUserStore()),
		"no redis":  New().WithConfig(testConfig()).WithUserStore(newFakeUserStore()).WithMailer(&fakeMailer{}),
	}
	for name, b := range cases {
		if _, err := b.Build(); err == nil {
			t.Errorf("%s: Build succeeded", name)
		}
	}
}

func TestBuildRejectsMissingSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Token.AccessSecret = nil

	_, err := New().
		WithConfig(cfg).
		WithRedis(newTestEngineRedis(t)).
		WithUserStore(newFakeUserStore()).
		WithMailer(&fakeMailer{}).
		Build()
	if err == nil {
		t.Fatal("Build accepted a config without an access secret")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().
		WithConfig(testConfig()).
		WithRedis(newTestEngineRedis(t)).
		WithUserStore(newFakeUserStore()).
		WithMailer(&fakeMailer{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build succeeded")
	}
}
