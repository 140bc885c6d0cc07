// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the moderation dashboard endpoint. Each function is context-aware and
// safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// ActionCount is one row of the per-type action breakdown.
type ActionCount struct {
	Action domain.ActionType `json:"action"`
	Count  int64             `json:"count"`
}

// ModerationStats returns the number of moderation actions recorded since
// the given time, broken down by action type. When no actions exist in the
// window, the returned slice is empty.
func ModerationStats(ctx context.Context, db *gorm.DB, since time.Time) ([]ActionCount, error) {
	var out []ActionCount
	err := db.WithContext(ctx).
		Model(&domain.ModerationAction{}).
		Select("action, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("action").
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

// AuditStats returns aggregate metadata for the audit ledger: the total
// number of entries and the timestamp of the most recent one. When the
// ledger is empty, the returned count is 0 and latest is nil.
func AuditStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.AuditLogEntry{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
