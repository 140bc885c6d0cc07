// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the immutable
// ModerationAction rows: one insert per dispatched command, plus paginated
// listing for the moderation dashboard. Actions are never updated or deleted.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// CreateModerationAction inserts the immutable record of one dispatched
// command. The action ID is a randomly generated UUID and CreatedAt is set
// to UTC. Callers invoke this inside the same transaction as the state
// mutation it documents.
func CreateModerationAction(ctx context.Context, db *gorm.DB, a *domain.ModerationAction) (*domain.ModerationAction, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetModerationAction fetches one action row by ID. Returns ErrNotFound when
// the row does not exist.
func GetModerationAction(ctx context.Context, db *gorm.DB, id string) (*domain.ModerationAction, error) {
	var a domain.ModerationAction
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountModerationActions returns the total number of recorded actions.
func CountModerationActions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ModerationAction{}).Count(&total).Error
	return total, err
}

// ListModerationActionsPage returns a page of actions ordered by creation
// time descending. The caller computes offset and limit.
func ListModerationActionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ModerationAction, error) {
	var out []domain.ModerationAction
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
