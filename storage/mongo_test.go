package storage

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nexhub/nexauth"
	"github.com/nexhub/nexauth/totpvault"
)

func sampleUser() *nexauth.UserRecord {
	return &nexauth.UserRecord{
		ID:           "user-1",
		FirstName:    "Alice",
		LastName:     "Nguyen",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		Verified:     true,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TwoFactor: nexauth.TwoFactorState{
			Enabled: true,
			Secret: &totpvault.EncryptedSecret{
				Ciphertext: []byte{1, 2, 3, 4},
				IV:         bytes.Repeat([]byte{5}, 12),
				AuthTag:    bytes.Repeat([]byte{6}, 16),
			},
			RecoveryCodes:  []string{"hash-a", "hash-b"},
			FailedAttempts: 2,
			LockedUntil:    time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
			LastVerifiedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		},
	}
}

func TestDocConversionRoundTrip(t *testing.T) {
	original := sampleUser()

	got := fromDoc(toDoc(original))
	if !reflect.DeepEqual(original, got) {
		t.Fatalf("round trip changed the record:\n got %+v\nwant %+v", got, original)
	}
}

func TestDocConversionWithoutTwoFactor(t *testing.T) {
	original := sampleUser()
	original.TwoFactor = nexauth.TwoFactorState{}

	doc := toDoc(original)
	if doc.TwoFactor.Secret != nil {
		t.Fatal("empty secret produced a secret doc")
	}
	if doc.TwoFactor.LockedUntil != nil || doc.TwoFactor.LastVerifiedAt != nil {
		t.Fatal("zero times produced pointer fields")
	}
	if doc.TwoFactor.RecoveryCodes == nil {
		t.Fatal("nil recovery codes not normalized to empty slice")
	}

	got := fromDoc(doc)
	if got.TwoFactor.Secret != nil || !got.TwoFactor.LockedUntil.IsZero() {
		t.Fatalf("round trip invented 2FA state: %+v", got.TwoFactor)
	}
}

func TestDocBSONFieldNames(t *testing.T) {
	data, err := bson.Marshal(toDoc(sampleUser()))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, field := range []string{"user_id", "email", "password", "verified", "created_at", "two_factor"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("document missing field %q", field)
		}
	}
	twoFactor, ok := raw["two_factor"].(bson.M)
	if !ok {
		t.Fatalf("two_factor is %T", raw["two_factor"])
	}
	for _, field := range []string{"enabled", "secret", "recovery_codes", "failed_attempts", "locked_until"} {
		if _, ok := twoFactor[field]; !ok {
			t.Errorf("two_factor missing field %q", field)
		}
	}
	secret, ok := twoFactor["secret"].(bson.M)
	if !ok {
		t.Fatalf("secret is %T", twoFactor["secret"])
	}
	for _, field := range []string{"ciphertext", "iv", "auth_tag"} {
		if _, ok := secret[field]; !ok {
			t.Errorf("secret missing field %q", field)
		}
	}
}
