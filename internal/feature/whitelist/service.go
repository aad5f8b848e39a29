// Package whitelist manages Mini App access: lookups for authentication and
// add/remove/list operations for administrators.
package whitelist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/domain"
	"ai_trade_gateway/internal/logging"
)

// ErrInvalidIdentifier is returned when an admin-supplied identifier is
// neither a Telegram id nor a username.
var ErrInvalidIdentifier = errors.New("invalid user identifier")

type repository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, telegramID int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	SetActive(ctx context.Context, telegramID int64, active bool) error
	List(ctx context.Context, activeOnly bool, limit int64) ([]domain.User, error)
}

// Identifier addresses a user either by Telegram id or by username.
type Identifier struct {
	TelegramID int64
	Username   string
}

// String renders the identifier the way admins typed it.
func (i Identifier) String() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	return strconv.FormatInt(i.TelegramID, 10)
}

// ParseIdentifier accepts "@username", "username" or a positive numeric id.
func ParseIdentifier(raw string) (Identifier, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Identifier{}, ErrInvalidIdentifier
	}

	if !strings.HasPrefix(value, "@") {
		if id, err := strconv.ParseInt(value, 10, 64); err == nil {
			if id <= 0 {
				return Identifier{}, ErrInvalidIdentifier
			}
			return Identifier{TelegramID: id}, nil
		}
	}

	username := domain.NormalizeUsername(value)
	if username == "" || strings.ContainsAny(username, " \t\n@/") {
		return Identifier{}, ErrInvalidIdentifier
	}

	return Identifier{Username: username}, nil
}

// Service exposes whitelist operations over the users repository.
type Service struct {
	repo   repository
	logger *logrus.Entry
}

// NewService constructs a Service.
func NewService(repo repository, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Service{repo: repo, logger: logger}
}

// Lookup reports whether telegramID holds an active whitelist entry. Unknown
// users are not whitelisted; storage failures are returned as errors.
func (s *Service) Lookup(ctx context.Context, telegramID int64) (bool, error) {
	if err := s.validate(ctx); err != nil {
		return false, err
	}

	user, err := s.repo.GetByID(ctx, telegramID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup whitelist: %w", err)
	}

	return user.IsActive, nil
}

// Add whitelists the identified user. An unknown numeric id gets a new active
// entry; an unknown username yields domain.ErrUserNotFound since its id cannot
// be resolved.
func (s *Service) Add(ctx context.Context, raw string) (domain.User, error) {
	if err := s.validate(ctx); err != nil {
		return domain.User{}, err
	}
	id, err := ParseIdentifier(raw)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.resolve(ctx, id)
	switch {
	case errors.Is(err, domain.ErrUserNotFound) && id.TelegramID != 0:
		created, createErr := s.repo.Create(ctx, domain.User{
			TelegramID: id.TelegramID,
			Role:       domain.RoleUser,
			IsActive:   true,
		})
		if createErr != nil {
			return domain.User{}, fmt.Errorf("create whitelist entry: %w", createErr)
		}
		s.logChange("whitelist_added", created)
		return created, nil
	case err != nil:
		return domain.User{}, err
	}

	if err := s.repo.SetActive(ctx, user.TelegramID, true); err != nil {
		return domain.User{}, fmt.Errorf("whitelist user: %w", err)
	}
	user.IsActive = true
	s.logChange("whitelist_added", user)

	return user, nil
}

// Remove revokes whitelist access for the identified user.
func (s *Service) Remove(ctx context.Context, raw string) (domain.User, error) {
	if err := s.validate(ctx); err != nil {
		return domain.User{}, err
	}
	id, err := ParseIdentifier(raw)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.resolve(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.repo.SetActive(ctx, user.TelegramID, false); err != nil {
		return domain.User{}, fmt.Errorf("revoke user: %w", err)
	}
	user.IsActive = false
	s.logChange("whitelist_removed", user)

	return user, nil
}

// List returns whitelisted users, newest first, capped at limit when positive.
func (s *Service) List(ctx context.Context, limit int64) ([]domain.User, error) {
	if err := s.validate(ctx); err != nil {
		return nil, err
	}

	users, err := s.repo.List(ctx, true, limit)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}

	return users, nil
}

func (s *Service) resolve(ctx context.Context, id Identifier) (domain.User, error) {
	if id.TelegramID != 0 {
		return s.repo.GetByID(ctx, id.TelegramID)
	}
	return s.repo.GetByUsername(ctx, id.Username)
}

func (s *Service) logChange(event string, user domain.User) {
	s.logger.WithFields(logging.Fields{
		"event":   event,
		"user_id": user.TelegramID,
	}).Info("whitelist updated")
}

func (s *Service) validate(ctx context.Context) error {
	if s == nil || s.repo == nil {
		return errors.New("whitelist service is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
