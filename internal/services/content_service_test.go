package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/aiclient"
	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/repo"
)

func newContentService(t *testing.T, db *gorm.DB, p aiclient.Provider) *ContentService {
	t.Helper()
	return NewContentService(db, NewClassifierService(db, p))
}

func TestCreateThread_PassPublishes(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, nil) // unconfigured classifier passes

	th, outcome, err := s.CreateThread(context.Background(), "u1", "My Title", "Body text")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Status != domain.StatusPublished || outcome.Decision != domain.AIPass {
		t.Fatalf("expected published thread, got %+v / %+v", th, outcome)
	}
	if th.Title != "My Title" {
		t.Fatalf("title mismatch: %q", th.Title)
	}
}

func TestCreateThread_EmptyAndOversized(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, nil)

	if _, _, err := s.CreateThread(context.Background(), "u1", "t", "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	s.MaxBodyRunes = 10
	if _, _, err := s.CreateThread(context.Background(), "u1", "t", strings.Repeat("x", 11)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestCreateThread_DerivesTitleFromBody(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, nil)

	th, _, err := s.CreateThread(context.Background(), "u1", "  ", "what is everyone planting this month in their gardens here")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	// First eight words, title-cased.
	if th.Title != "What Is Everyone Planting This Month In Their" {
		t.Fatalf("derived title mismatch: %q", th.Title)
	}
}

func TestCreateThread_FlaggedQuarantines(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, &fakeProvider{verdict: &aiclient.Verdict{
		Decision:   "FLAGGED",
		Confidence: 0.6,
		Reasons:    []string{"borderline"},
	}})

	th, outcome, err := s.CreateThread(context.Background(), "u1", "t", "b")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Status != domain.StatusQuarantined || th.AICheckResult != domain.AIFlagged {
		t.Fatalf("flagged content must quarantine, got %+v", th)
	}
	if outcome.Decision != domain.AIFlagged {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestCreateThread_BlockedPersistsNothing(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, &fakeProvider{verdict: &aiclient.Verdict{
		Decision:   "BLOCKED",
		Confidence: 0.95,
	}})

	th, outcome, err := s.CreateThread(context.Background(), "u1", "t", "b")
	if !errors.Is(err, ErrContentBlocked) {
		t.Fatalf("expected ErrContentBlocked, got %v", err)
	}
	if th != nil {
		t.Fatalf("blocked content must not persist, got %+v", th)
	}
	if outcome == nil || outcome.Decision != domain.AIBlocked {
		t.Fatalf("outcome should carry the verdict: %+v", outcome)
	}

	var count int64
	db.Model(&domain.Thread{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no thread rows, got %d", count)
	}
}

func TestCreatePost_ParentChecks(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, nil)
	ctx := context.Background()

	// Missing thread.
	if _, _, err := s.CreatePost(ctx, "u1", "missing", "hi"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}

	// Quarantined thread reads as missing to posters.
	hidden, _ := repo.CreateThread(ctx, db, "a", "t", "b", domain.StatusQuarantined, domain.AIFlagged)
	if _, _, err := s.CreatePost(ctx, "u1", hidden.ID, "hi"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound for quarantined parent, got %v", err)
	}

	// Locked thread rejects replies.
	locked, _ := repo.CreateThread(ctx, db, "a", "t", "b", domain.StatusPublished, domain.AIPass)
	if err := repo.UpdateThreadFlags(ctx, db, locked.ID, true, false); err != nil {
		t.Fatalf("lock thread: %v", err)
	}
	if _, _, err := s.CreatePost(ctx, "u1", locked.ID, "hi"); !errors.Is(err, ErrThreadLocked) {
		t.Fatalf("expected ErrThreadLocked, got %v", err)
	}
}

func TestCreatePost_Publishes(t *testing.T) {
	db := newServiceDB(t)
	s := newContentService(t, db, nil)
	ctx := context.Background()

	th, _ := repo.CreateThread(ctx, db, "a", "Thread title", "b", domain.StatusPublished, domain.AIPass)
	p, outcome, err := s.CreatePost(ctx, "u1", th.ID, "a reply")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ThreadID != th.ID || p.Status != domain.StatusPublished {
		t.Fatalf("unexpected post: %+v", p)
	}
	if outcome.Decision != domain.AIPass {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText("  a \t b\n\nc  "); got != "a b c" {
		t.Fatalf("normalizeText = %q", got)
	}
}
