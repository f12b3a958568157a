package service

import (
	"context"
	"fmt"

	apperrors "github.com/hireloop/chat-relay/internal/errors"
	"github.com/hireloop/chat-relay/internal/model"
	"github.com/hireloop/chat-relay/internal/repository"
)

// UserService resolves chat participants against the ATS user store.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Resolve returns the user for an id, or a not-found error.
func (s *UserService) Resolve(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}
	return user, nil
}
