// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for threads and
// posts, the two content kinds behind the shared domain.Moderatable
// capability.
//
// Queries that load moderation targets exclude rows whose status is REMOVED
// or DELETED in addition to soft-deleted rows, so an already-removed item
// reads as missing to the dispatcher.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// ContentKind discriminates the two content kinds at repository call sites.
type ContentKind string

const (
	KindThread ContentKind = "thread"
	KindPost   ContentKind = "post"
)

// CreateThread inserts a new thread row with the given status and verdict.
func CreateThread(ctx context.Context, db *gorm.DB, authorID, title, body string, status domain.ContentStatus, verdict domain.AICheckResult) (*domain.Thread, error) {
	t := &domain.Thread{
		ID:            uuid.NewString(),
		AuthorID:      authorID,
		Title:         title,
		Body:          body,
		Status:        status,
		AICheckResult: verdict,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// CreatePost inserts a new post row under threadID.
func CreatePost(ctx context.Context, db *gorm.DB, threadID, authorID, content string, status domain.ContentStatus, verdict domain.AICheckResult) (*domain.Post, error) {
	p := &domain.Post{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		AuthorID:      authorID,
		Content:       content,
		Status:        status,
		AICheckResult: verdict,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetThread fetches a thread by ID regardless of moderation status,
// excluding soft-deleted rows.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetPost fetches a post by ID regardless of moderation status, excluding
// soft-deleted rows.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetModeratable loads a moderation target of the given kind by ID, filtering
// out content that is already REMOVED or DELETED. Returns ErrNotFound when no
// such row exists, so the dispatcher sees already-removed content as missing.
func GetModeratable(ctx context.Context, db *gorm.DB, kind ContentKind, id string) (domain.Moderatable, error) {
	q := db.WithContext(ctx).
		Where("id = ? AND status NOT IN ?", id, []domain.ContentStatus{domain.StatusRemoved, domain.StatusDeleted})
	switch kind {
	case KindThread:
		var t domain.Thread
		if err := q.First(&t).Error; err != nil {
			return nil, err
		}
		return &t, nil
	case KindPost:
		var p domain.Post
		if err := q.First(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, ErrNotFound
	}
}

// CountThreads returns the number of publicly visible threads.
func CountThreads(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("status = ?", domain.StatusPublished).
		Count(&n).Error
	return n, err
}

// ListThreadsPage returns one page of publicly visible threads, pinned first,
// then newest first.
func ListThreadsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Thread, error) {
	var items []domain.Thread
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusPublished).
		Order("is_pinned DESC, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// CountPosts returns the number of publicly visible posts in a thread.
func CountPosts(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("thread_id = ? AND status = ?", threadID, domain.StatusPublished).
		Count(&n).Error
	return n, err
}

// ListPostsPage returns one page of publicly visible posts in a thread,
// oldest first (reading order).
func ListPostsPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.Post, error) {
	var items []domain.Post
	err := db.WithContext(ctx).
		Where("thread_id = ? AND status = ?", threadID, domain.StatusPublished).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// UpdateContentStatus persists the status and verdict of a moderation target.
// The concrete table is selected by the target's dynamic type. Returns
// ErrNotFound when no row was affected.
func UpdateContentStatus(ctx context.Context, db *gorm.DB, target domain.Moderatable) error {
	updates := map[string]any{"status": target.ContentStatus()}
	var res *gorm.DB
	switch v := target.(type) {
	case *domain.Thread:
		updates["ai_check_result"] = v.AICheckResult
		res = db.WithContext(ctx).Model(&domain.Thread{}).Where("id = ?", v.ID).Updates(updates)
	case *domain.Post:
		updates["ai_check_result"] = v.AICheckResult
		res = db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", v.ID).Updates(updates)
	default:
		return ErrNotFound
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateThreadFlags persists the lock/pin flags of a thread. Returns
// ErrNotFound when no row was affected.
func UpdateThreadFlags(ctx context.Context, db *gorm.DB, id string, locked, pinned bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_locked": locked, "is_pinned": pinned})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
