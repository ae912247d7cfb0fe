package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/validation"
)

type UserService struct {
	userRepository repository.UserRepository
	now            func() time.Time
}

func NewUserService(userRepository repository.UserRepository) *UserService {
	return &UserService{
		userRepository: userRepository,
		now:            now,
	}
}

// Ensure returns the user for an authenticated subject, creating the row the first
// time the subject is seen.
func (s *UserService) Ensure(ctx context.Context, id, email string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newError(ErrUnauthorized, "token has no subject")
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if validation.ValidateEmail(email) != nil {
		slog.Warn("ignoring invalid email claim", "user_id", id)
		email = ""
	}

	err := s.userRepository.Ensure(ctx, &model.User{
		ID:        id,
		Email:     email,
		Role:      model.RoleUser,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	return s.ByID(ctx, id)
}

func (s *UserService) ByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepository.ByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (s *UserService) SetRole(ctx context.Context, id, role string) error {
	if role != model.RoleUser && role != model.RoleAdmin {
		return newError(ErrValidation, "invalid role %q", role)
	}
	err := s.userRepository.SetRole(ctx, id, role)
	if errors.Is(err, repository.ErrUserNotFound) {
		return newError(ErrNotFound, "user not found")
	}
	return err
}
