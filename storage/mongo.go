// Package storage implements the credential store on MongoDB. Every 2FA
// state transition is a single conditional update rather than a
// load-mutate-save round trip, so two requests racing on the same user
// document cannot both win: a recovery code is removed by a filtered
// $pull, the failure counter by $inc, and lockout by a guarded $set.
package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nexhub/nexauth"
	"github.com/nexhub/nexauth/totpvault"
)

// MongoStore implements nexauth.UserStore on a users collection.
type MongoStore struct {
	users *mongo.Collection
}

// NewMongo returns a store over db's named collection.
func NewMongo(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{users: db.Collection(collection)}
}

// EnsureIndexes creates the unique email index. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	})
	return err
}

type secretDoc struct {
	Ciphertext []byte `bson:"ciphertext"`
	IV         []byte `bson:"iv"`
	AuthTag    []byte `bson:"auth_tag"`
}

type twoFactorDoc struct {
	Enabled        bool       `bson:"enabled"`
	Secret         *secretDoc `bson:"secret,omitempty"`
	RecoveryCodes  []string   `bson:"recovery_codes"`
	FailedAttempts int        `bson:"failed_attempts"`
	LockedUntil    *time.Time `bson:"locked_until,omitempty"`
	LastVerifiedAt *time.Time `bson:"last_verified_at,omitempty"`
}

type userDoc struct {
	UserID       string       `bson:"user_id"`
	FirstName    string       `bson:"first_name"`
	LastName     string       `bson:"last_name"`
	Email        string       `bson:"email"`
	PasswordHash string       `bson:"password"`
	Verified     bool         `bson:"verified"`
	CreatedAt    time.Time    `bson:"created_at"`
	TwoFactor    twoFactorDoc `bson:"two_factor"`
}

// Create inserts the user; a duplicate email surfaces as ErrEmailTaken.
func (s *MongoStore) Create(ctx context.Context, user *nexauth.UserRecord) error {
	_, err := s.users.InsertOne(ctx, toDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nexauth.ErrEmailTaken
		}
		return nexauth.Internal("user insert failed", err)
	}
	return nil
}

// FindByID loads a user by opaque id.
func (s *MongoStore) FindByID(ctx context.Context, id string) (*nexauth.UserRecord, error) {
	return s.findOne(ctx, bson.D{{Key: "user_id", Value: id}})
}

// FindByEmail loads a user by email.
func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*nexauth.UserRecord, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// UpdatePasswordHash replaces the stored password hash.
func (s *MongoStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"password": hash}})
}

// MarkVerified flips the email-confirmed flag.
func (s *MongoStore) MarkVerified(ctx context.Context, id string) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"verified": true}})
}

// SaveTwoFactorSetup writes the sealed secret and hashed codes and resets
// the attempt counter and lockout in the same update.
func (s *MongoStore) SaveTwoFactorSetup(ctx context.Context, id string, secret *totpvault.EncryptedSecret, codeHashes []string) error {
	return s.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"two_factor.secret": secretDoc{
				Ciphertext: secret.Ciphertext,
				IV:         secret.IV,
				AuthTag:    secret.AuthTag,
			},
			"two_factor.recovery_codes":  codeHashes,
			"two_factor.failed_attempts": 0,
			"two_factor.enabled":         false,
		},
		"$unset": bson.M{"two_factor.locked_until": ""},
	})
}

// ConsumeRecoveryCode removes exactly the given hash from the user's set.
// The hash appears in both the filter and the $pull, so of two racing
// requests only the one whose update matched the document removes it; the
// other sees ModifiedCount zero and reports the code as absent.
func (s *MongoStore) ConsumeRecoveryCode(ctx context.Context, id, codeHash string) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.D{
			{Key: "user_id", Value: id},
			{Key: "two_factor.recovery_codes", Value: codeHash},
		},
		bson.M{"$pull": bson.M{"two_factor.recovery_codes": codeHash}},
	)
	if err != nil {
		return false, nexauth.Internal("recovery code consume failed", err)
	}
	return res.ModifiedCount > 0, nil
}

// RecordFailedAttempt increments the failure counter and opens the
// lockout window once the new count reaches threshold.
func (s *MongoStore) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "user_id", Value: id}},
		bson.M{"$inc": bson.M{"two_factor.failed_attempts": 1}},
		after,
	).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nexauth.ErrUserNotFound
		}
		return false, nexauth.Internal("failed attempt update failed", err)
	}

	if updated.TwoFactor.FailedAttempts < threshold {
		return false, nil
	}

	lockedUntil := time.Now().UTC().Add(lockFor)
	_, err = s.users.UpdateOne(ctx,
		bson.D{
			{Key: "user_id", Value: id},
			{Key: "two_factor.failed_attempts", Value: bson.M{"$gte": threshold}},
		},
		bson.M{"$set": bson.M{"two_factor.locked_until": lockedUntil}},
	)
	if err != nil {
		return false, nexauth.Internal("lockout update failed", err)
	}
	return true, nil
}

// MarkTwoFactorVerified records a successful verification: counter
// zeroed, lockout cleared, timestamp stamped, factor enabled.
func (s *MongoStore) MarkTwoFactorVerified(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"two_factor.enabled":          true,
			"two_factor.failed_attempts":  0,
			"two_factor.last_verified_at": at,
		},
		"$unset": bson.M{"two_factor.locked_until": ""},
	})
}

// ClearTwoFactor resets the sub-record to its disabled zero state.
func (s *MongoStore) ClearTwoFactor(ctx context.Context, id string) error {
	return s.updateOne(ctx, id, bson.M{
		"$set": bson.M{"two_factor": twoFactorDoc{RecoveryCodes: []string{}}},
	})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*nexauth.UserRecord, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nexauth.ErrUserNotFound
		}
		return nil, nexauth.Internal("user lookup failed", err)
	}
	return fromDoc(&doc), nil
}

func (s *MongoStore) updateOne(ctx context.Context, id string, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "user_id", Value: id}}, update)
	if err != nil {
		return nexauth.Internal("user update failed", err)
	}
	if res.MatchedCount == 0 {
		return nexauth.ErrUserNotFound
	}
	return nil
}

func toDoc(user *nexauth.UserRecord) *userDoc {
	doc := &userDoc{
		UserID:       user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Verified:     user.Verified,
		CreatedAt:    user.CreatedAt,
		TwoFactor: twoFactorDoc{
			Enabled:        user.TwoFactor.Enabled,
			RecoveryCodes:  user.TwoFactor.RecoveryCodes,
			FailedAttempts: user.TwoFactor.FailedAttempts,
		},
	}
	if doc.TwoFactor.RecoveryCodes == nil {
		doc.TwoFactor.RecoveryCodes = []string{}
	}
	if sec := user.TwoFactor.Secret; sec != nil {
		doc.TwoFactor.Secret = &secretDoc{
			Ciphertext: sec.Ciphertext,
			IV:         sec.IV,
			AuthTag:    sec.AuthTag,
		}
	}
	if !user.TwoFactor.LockedUntil.IsZero() {
		lockedUntil := user.TwoFactor.LockedUntil
		doc.TwoFactor.LockedUntil = &lockedUntil
	}
	if !user.TwoFactor.LastVerifiedAt.IsZero() {
		lastVerified := user.TwoFactor.LastVerifiedAt
		doc.TwoFactor.LastVerifiedAt = &lastVerified
	}
	return doc
}

func fromDoc(doc *userDoc) *nexauth.UserRecord {
	user := &nexauth.UserRecord{
		ID:           doc.UserID,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Verified:     doc.Verified,
		CreatedAt:    doc.CreatedAt,
		TwoFactor: nexauth.TwoFactorState{
			Enabled:        doc.TwoFactor.Enabled,
			RecoveryCodes:  doc.TwoFactor.RecoveryCodes,
			FailedAttempts: doc.TwoFactor.FailedAttempts,
		},
	}
	if sec := doc.TwoFactor.Secret; sec != nil {
		user.TwoFactor.Secret = &totpvault.EncryptedSecret{
			Ciphertext: sec.Ciphertext,
			IV:         sec.IV,
			AuthTag:    sec.AuthTag,
		}
	}
	if doc.TwoFactor.LockedUntil != nil {
		user.TwoFactor.LockedUntil = *doc.TwoFactor.LockedUntil
	}
	if doc.TwoFactor.LastVerifiedAt != nil {
		user.TwoFactor.LastVerifiedAt = *doc.TwoFactor.LastVerifiedAt
	}
	return user
}
