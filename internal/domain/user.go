package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrUserNotFound is returned when no whitelist entry matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// User is a Telegram user known to the gateway. IsActive marks whitelisted
// accounts.
type User struct {
	TelegramID   int64     `bson:"telegram_id" json:"telegram_id"`
	Username     string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName    string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	LanguageCode string    `bson:"language_code,omitempty" json:"language_code,omitempty"`
	IsPremium    bool      `bson:"is_premium" json:"is_premium"`
	PhotoURL     string    `bson:"photo_url,omitempty" json:"photo_url,omitempty"`
	Role         string    `bson:"role" json:"role"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
	LastActiveAt time.Time `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`
}

// DisplayName renders the user for admin listings.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return "id:" + strconv.FormatInt(u.TelegramID, 10)
}

// NormalizeUsername strips a leading @ and lowercases the handle.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
