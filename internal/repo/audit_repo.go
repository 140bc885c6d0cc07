// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only audit ledger.
//
// AppendAudit is the ledger's only write operation; entries are immutable
// once written. The dispatcher calls it inside the same transaction as the
// mutation it documents (mandatory); the classifier calls it as a
// best-effort side write whose failure must not fail the classification.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// AppendAudit inserts one immutable ledger entry. The entry ID is a randomly
// generated UUID and CreatedAt is set to UTC.
func AppendAudit(ctx context.Context, db *gorm.DB, action, entityType, entityID, actorID string, changes any) error {
	payload := ""
	if changes != nil {
		b, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	e := &domain.AuditLogEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Changes:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(e).Error
}

// CountAuditEntries returns the total number of ledger entries.
func CountAuditEntries(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.AuditLogEntry{}).Count(&total).Error
	return total, err
}

// ListAuditPage returns a page of ledger entries ordered by creation time
// descending. The caller computes offset and limit.
func ListAuditPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
