// Package services – BanService
//
// This file implements the ban lifecycle: applying temporary and permanent
// bans and lifting them. Each mutation is paired with its immutable
// ModerationAction row and an audit ledger entry, written against the
// transaction handle supplied by the caller so all three land atomically.
//
// Authorization is the dispatcher's responsibility; BanService assumes the
// command has already been authorized and validated.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/repo"
)

// BanService mutates user ban fields and appends the paired action and audit
// records. All methods operate on the provided tx, which the dispatcher
// wraps in a single database transaction per command.
type BanService struct{}

// TempBan bans target for the given number of days: bannedAt=now,
// bannedUntil=now+duration. The caller validates that days is a positive
// integer.
func (BanService) TempBan(ctx context.Context, tx *gorm.DB, actorID string, target *domain.User, days int, reason string) (*domain.ModerationAction, error) {
	now := time.Now().UTC()
	until := now.Add(time.Duration(days) * 24 * time.Hour)
	if err := repo.UpdateUserBan(ctx, tx, target.ID, &now, &until, &reason); err != nil {
		return nil, err
	}

	meta, err := domain.EncodeActionMetadata(domain.TempBanMetadata{DurationDays: days})
	if err != nil {
		return nil, err
	}
	action, err := repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
		Action:       domain.ActionTempBan,
		Reason:       reason,
		Metadata:     meta,
		ModeratorID:  actorID,
		TargetUserID: &target.ID,
	})
	if err != nil {
		return nil, err
	}

	err = repo.AppendAudit(ctx, tx, "moderation.temp_ban", "user", target.ID, actorID, map[string]any{
		"banned_at":     now,
		"banned_until":  until,
		"banned_reason": reason,
		"duration_days": days,
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// PermBan bans target indefinitely: bannedAt=now, bannedUntil=nil.
func (BanService) PermBan(ctx context.Context, tx *gorm.DB, actorID string, target *domain.User, reason string) (*domain.ModerationAction, error) {
	now := time.Now().UTC()
	if err := repo.UpdateUserBan(ctx, tx, target.ID, &now, nil, &reason); err != nil {
		return nil, err
	}

	action, err := repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
		Action:       domain.ActionPermBan,
		Reason:       reason,
		ModeratorID:  actorID,
		TargetUserID: &target.ID,
	})
	if err != nil {
		return nil, err
	}

	err = repo.AppendAudit(ctx, tx, "moderation.perm_ban", "user", target.ID, actorID, map[string]any{
		"banned_at":     now,
		"banned_until":  nil,
		"banned_reason": reason,
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// Unban clears all three ban fields of target. The caller validates that the
// target is currently banned.
func (BanService) Unban(ctx context.Context, tx *gorm.DB, actorID string, target *domain.User, reason string) (*domain.ModerationAction, error) {
	if err := repo.UpdateUserBan(ctx, tx, target.ID, nil, nil, nil); err != nil {
		return nil, err
	}

	action, err := repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
		Action:       domain.ActionUnban,
		Reason:       reason,
		ModeratorID:  actorID,
		TargetUserID: &target.ID,
	})
	if err != nil {
		return nil, err
	}

	err = repo.AppendAudit(ctx, tx, "moderation.unban", "user", target.ID, actorID, map[string]any{
		"previous_banned_at":    target.BannedAt,
		"previous_banned_until": target.BannedUntil,
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}
