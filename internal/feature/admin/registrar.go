// Package admin provides startup helpers for ensuring the configured
// administrators exist in the database with the correct role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai_trade_gateway/internal/domain"
	"ai_trade_gateway/internal/logging"
)

type userCollection interface {
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar bootstraps the configured administrator records.
type Registrar struct {
	users  userCollection
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar for the provided users collection.
func NewRegistrar(users userCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		users:  users,
		logger: logger,
	}
}

// EnsureAdmins upserts every configured admin id with role=admin and an
// active whitelist entry, then demotes admins no longer configured to the
// user role. Whitelist state of demoted users is left untouched.
func (r *Registrar) EnsureAdmins(ctx context.Context, adminIDs []int64) error {
	if r == nil || r.users == nil {
		return errors.New("admin registrar is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	ids := make([]int64, 0, len(adminIDs))
	for _, id := range adminIDs {
		if id == 0 {
			return errors.New("admin id is required")
		}
		ids = append(ids, id)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	demoteResult, err := r.users.UpdateMany(ctx,
		bson.M{"role": domain.RoleAdmin, "telegram_id": bson.M{"$nin": ids}},
		bson.M{"$set": bson.M{
			"role":       domain.RoleUser,
			"updated_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("demote previous admins: %w", err)
	}

	var matched, upserted int64
	for _, id := range ids {
		upsertResult, err := r.users.UpdateOne(ctx,
			bson.M{"telegram_id": id},
			bson.M{
				"$set": bson.M{
					"telegram_id": id,
					"role":        domain.RoleAdmin,
					"is_active":   true,
					"updated_at":  now,
				},
				"$setOnInsert": bson.M{
					"created_at": now,
				},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("ensure admin %d: %w", id, err)
		}
		matched += matchedCount(upsertResult)
		upserted += upsertedCount(upsertResult)
	}

	r.logger.WithFields(logging.Fields{
		"event":           "admin_bootstrap",
		"admin_ids":       ids,
		"demoted_admins":  modifiedCount(demoteResult),
		"matched_admins":  matched,
		"upserted_admins": upserted,
	}).Info("ensured bot admins")

	return nil
}

func modifiedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.ModifiedCount
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
