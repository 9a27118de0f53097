package service

import (
	"context"

	"reverie/internal/middleware"
	"reverie/internal/models"
	"reverie/internal/repository"
)

// UserService maps verified identities onto local user rows.
type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// ResolveIdentity upserts the identity and returns the local user id. It is
// the middleware.UserResolver used on every authenticated request.
func (s *UserService) ResolveIdentity(ctx context.Context, identity middleware.Identity) (uint, error) {
	email := identity.Email
	if email == "" {
		// Subject is unique; reuse it so the email column stays non-null.
		email = identity.Subject
	}
	user := &models.User{
		Subject: identity.Subject,
		Email:   email,
		Name:    identity.Name,
	}
	if err := s.users.UpsertBySubject(ctx, user); err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Get returns the user row by local id.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}
