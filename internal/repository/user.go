// Package repository implements data access over the relational store.
package repository

import (
	"context"
	"errors"

	"reverie/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	UpsertBySubject(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// UpsertBySubject inserts the user or refreshes the mutable profile fields
// when the identity-provider subject already exists. The row id is populated
// either way.
func (r *userRepository) UpsertBySubject(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "name", "avatar", "updated_at"}),
		}).
		Create(user).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	if user.ID == 0 {
		// Some drivers do not return the id on conflict-update.
		existing, getErr := r.GetBySubject(ctx, user.Subject)
		if getErr != nil {
			return getErr
		}
		user.ID = existing.ID
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", subject)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}
