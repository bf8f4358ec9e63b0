// Package repo implements the data persistence layer, backed by GORM. This
// file provides repository functions for the credential store.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-datashare-backend/internal/domain"
)

// GetUserByUsername loads one credential record by username. Returns
// ErrNotFound when no such user exists.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("username = ?", username).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureUser inserts a credential record unless a row with the same
// username already exists. Used to seed demo accounts at startup;
// idempotent across restarts.
func EnsureUser(ctx context.Context, db *gorm.DB, username, passwordHash, role string) error {
	u := domain.User{Username: username, PasswordHash: passwordHash, Role: role}
	return db.WithContext(ctx).
		Where("username = ?", username).
		FirstOrCreate(&u).Error
}
