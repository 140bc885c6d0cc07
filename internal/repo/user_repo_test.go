package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

func TestCreateUser_SetsFields(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	u, err := CreateUser(context.Background(), db, "alice", domain.RoleMember)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Username != "alice" || u.Role != domain.RoleMember {
		t.Fatalf("unexpected user fields: %+v", u)
	}
	if u.BannedAt != nil || u.BannedUntil != nil {
		t.Fatalf("new user must not be banned: %+v", u)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	if _, err := CreateUser(context.Background(), db, "alice", domain.RoleMember); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := CreateUser(context.Background(), db, "alice", domain.RoleMember); err == nil {
		t.Fatalf("expected unique violation on duplicate username")
	}
}

func TestGetUser_FoundAndNotFound(t *testing.T) {
	db := newTestDB(t, &domain.User{})

	if _, err := GetUser(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	u, _ := CreateUser(context.Background(), db, "bob", domain.RoleModerator)
	got, err := GetUser(context.Background(), db, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "bob" || got.Role != domain.RoleModerator {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUpdateUserBan_SetAndClear(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	u, _ := CreateUser(context.Background(), db, "carol", domain.RoleMember)

	at := time.Now().UTC().Truncate(time.Second)
	until := at.Add(7 * 24 * time.Hour)
	reason := "spam"
	if err := UpdateUserBan(context.Background(), db, u.ID, &at, &until, &reason); err != nil {
		t.Fatalf("UpdateUserBan set: %v", err)
	}

	got, _ := GetUser(context.Background(), db, u.ID)
	if got.BannedAt == nil || got.BannedUntil == nil || got.BannedReason == nil {
		t.Fatalf("ban fields not persisted: %+v", got)
	}
	if *got.BannedReason != "spam" {
		t.Fatalf("reason mismatch: %q", *got.BannedReason)
	}

	// Clearing writes explicit NULLs, not zero values.
	if err := UpdateUserBan(context.Background(), db, u.ID, nil, nil, nil); err != nil {
		t.Fatalf("UpdateUserBan clear: %v", err)
	}
	got, _ = GetUser(context.Background(), db, u.ID)
	if got.BannedAt != nil || got.BannedUntil != nil || got.BannedReason != nil {
		t.Fatalf("ban fields not cleared: %+v", got)
	}
}

func TestUpdateUserBan_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	at := time.Now().UTC()
	if err := UpdateUserBan(context.Background(), db, "missing", &at, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserRole(t *testing.T) {
	db := newTestDB(t, &domain.User{})
	u, _ := CreateUser(context.Background(), db, "dave", domain.RoleMember)

	if err := UpdateUserRole(context.Background(), db, u.ID, domain.RoleModerator); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	got, _ := GetUser(context.Background(), db, u.ID)
	if got.Role != domain.RoleModerator {
		t.Fatalf("role not updated: %+v", got)
	}

	if err := UpdateUserRole(context.Background(), db, "missing", domain.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
