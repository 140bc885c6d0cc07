// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new user row with the given username and role.
// The user ID is a randomly generated UUID, and CreatedAt is set to UTC.
func CreateUser(ctx context.Context, db *gorm.DB, username string, role domain.Role) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by ID, excluding soft-deleted rows. Returns
// ErrNotFound when the row does not exist.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserBan sets or clears the ban fields of a user in one update.
// Passing nils clears the ban. Returns ErrNotFound when no row was affected.
func UpdateUserBan(ctx context.Context, db *gorm.DB, id string, bannedAt, bannedUntil *time.Time, reason *string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"banned_at":     bannedAt,
			"banned_until":  bannedUntil,
			"banned_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateUserRole replaces a user's role. Returns ErrNotFound when no row was
// affected.
func UpdateUserRole(ctx context.Context, db *gorm.DB, id string, role domain.Role) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
