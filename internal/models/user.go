// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account mirrored from the external identity provider.
// It is created by upsert on the first authenticated request, keyed by the
// provider's subject id.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Subject   string         `gorm:"unique;not null" json:"-"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Avatar    string         `json:"avatar"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Dreams    []Dream        `gorm:"foreignKey:UserID" json:"dreams,omitempty"`
}
