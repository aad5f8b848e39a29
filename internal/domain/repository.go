package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// UserRepository persists and retrieves whitelist entries in MongoDB.
type UserRepository struct {
	collection userCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// Create inserts a user with populated timestamps, defaulting the role to
// RoleUser when omitted.
func (r *UserRepository) Create(ctx context.Context, user User) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}
	if user.TelegramID == 0 {
		return User{}, errors.New("telegram_id is required")
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	user.Username = NormalizeUsername(user.Username)

	now := time.Now().UTC().Truncate(time.Millisecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetByID fetches a user by Telegram id.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}
	if telegramID == 0 {
		return User{}, errors.New("telegram_id is required")
	}

	return r.findOne(ctx, bson.M{"telegram_id": telegramID})
}

// GetByUsername fetches a user by handle; a leading @ and letter case are ignored.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	if err := r.validate(ctx); err != nil {
		return User{}, err
	}
	normalized := NormalizeUsername(username)
	if normalized == "" {
		return User{}, errors.New("username is required")
	}

	return r.findOne(ctx, bson.M{"username": normalized})
}

// SetActive flips the whitelist flag for an existing user.
func (r *UserRepository) SetActive(ctx context.Context, telegramID int64, active bool) error {
	if err := r.validate(ctx); err != nil {
		return err
	}
	if telegramID == 0 {
		return errors.New("telegram_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"telegram_id": telegramID},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result != nil && result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

// List returns users ordered by creation time, newest first. A non-positive
// limit returns every match.
func (r *UserRepository) List(ctx context.Context, activeOnly bool, limit int64) ([]User, error) {
	if err := r.validate(ctx); err != nil {
		return nil, err
	}

	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	result := r.collection.FindOne(ctx, filter)
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

func (r *UserRepository) validate(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
