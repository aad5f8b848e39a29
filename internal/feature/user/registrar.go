// Package user provides helpers for user registration and lifecycle updates.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai_trade_gateway/internal/domain"
	"ai_trade_gateway/internal/initdata"
	"ai_trade_gateway/internal/logging"
)

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Profile is the Telegram-supplied part of a user record. Empty optional
// fields never overwrite stored values.
type Profile struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
	PhotoURL     string
}

// ProfileFromIdentity converts a verified initData identity into a Profile.
func ProfileFromIdentity(identity initdata.Identity) Profile {
	return Profile{
		TelegramID:   identity.ID,
		Username:     identity.Username,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		LanguageCode: identity.LanguageCode,
		IsPremium:    identity.IsPremium,
		PhotoURL:     identity.PhotoURL,
	}
}

// Registrar ensures users are present in the database and keeps their
// last-active timestamp updated on every interaction.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
	now    func() time.Time
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureUser upserts the user record and refreshes profile fields plus
// last_active_at/updated_at on every call. New records start inactive with
// the default role; whitelist state is never changed here.
func (r *Registrar) EnsureUser(ctx context.Context, profile Profile) (bool, error) {
	if r == nil || r.users == nil {
		return false, errors.New("user registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if profile.TelegramID == 0 {
		return false, errors.New("user id is required")
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	set := bson.M{
		"updated_at":     now,
		"last_active_at": now,
		"is_premium":     profile.IsPremium,
	}
	setIfPresent(set, "username", domain.NormalizeUsername(profile.Username))
	setIfPresent(set, "first_name", profile.FirstName)
	setIfPresent(set, "last_name", profile.LastName)
	setIfPresent(set, "language_code", profile.LanguageCode)
	setIfPresent(set, "photo_url", profile.PhotoURL)

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"telegram_id": profile.TelegramID,
			"role":        domain.RoleUser,
			"is_active":   false,
			"created_at":  now,
		},
	}

	result, err := r.users.UpdateOne(ctx,
		bson.M{"telegram_id": profile.TelegramID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure user: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":   "user_registered",
			"user_id": profile.TelegramID,
		}).Info("registered new user")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "user_seen",
		"user_id": profile.TelegramID,
	}).Debug("updated user last active")

	return false, nil
}

// Touch records a successful Mini App authentication for identity.
func (r *Registrar) Touch(ctx context.Context, identity initdata.Identity) error {
	_, err := r.EnsureUser(ctx, ProfileFromIdentity(identity))
	return err
}

func setIfPresent(set bson.M, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		set[key] = value
	}
}
