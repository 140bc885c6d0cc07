package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

func TestAppendAudit_PersistsEntry(t *testing.T) {
	db := newTestDB(t, &domain.AuditLogEntry{})
	ctx := context.Background()

	changes := map[string]any{"from": "PUBLISHED", "to": "REMOVED"}
	if err := AppendAudit(ctx, db, "moderation.remove_content", "post", "p1", "mod1", changes); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	var got domain.AuditLogEntry
	if err := db.First(&got, "entity_id = ?", "p1").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if got.Action != "moderation.remove_content" || got.EntityType != "post" || got.ActorID != "mod1" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(got.Changes), &payload); err != nil {
		t.Fatalf("changes is not JSON: %q", got.Changes)
	}
	if payload["to"] != "REMOVED" {
		t.Fatalf("changes payload mismatch: %v", payload)
	}
}

func TestAppendAudit_NilChanges(t *testing.T) {
	db := newTestDB(t, &domain.AuditLogEntry{})

	if err := AppendAudit(context.Background(), db, "classifier.decision", "thread", "t1", "system", nil); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	var got domain.AuditLogEntry
	if err := db.First(&got, "entity_id = ?", "t1").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if got.Changes != "" {
		t.Fatalf("expected empty changes, got %q", got.Changes)
	}
}

func TestListAuditPage_NewestFirst(t *testing.T) {
	db := newTestDB(t, &domain.AuditLogEntry{})
	ctx := context.Background()

	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3"} {
		row := domain.AuditLogEntry{
			ID: id, Action: "a", EntityType: "user", EntityID: "u", ActorID: "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	total, err := CountAuditEntries(ctx, db)
	if err != nil || total != 3 {
		t.Fatalf("CountAuditEntries = %d, %v; want 3", total, err)
	}

	page, err := ListAuditPage(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("ListAuditPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "e2" || page[1].ID != "e1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestAuditStats(t *testing.T) {
	db := newTestDB(t, &domain.AuditLogEntry{})
	ctx := context.Background()

	count, latest, err := AuditStats(ctx, db)
	if err != nil || count != 0 || latest != nil {
		t.Fatalf("empty ledger: count=%d latest=%v err=%v", count, latest, err)
	}

	newest := time.Date(2025, 2, 1, 13, 0, 0, 0, time.UTC)
	rows := []domain.AuditLogEntry{
		{ID: "e1", Action: "a", EntityType: "user", EntityID: "u", ActorID: "m", CreatedAt: newest.Add(-time.Hour)},
		{ID: "e2", Action: "a", EntityType: "user", EntityID: "u", ActorID: "m", CreatedAt: newest},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, latest, err = AuditStats(ctx, db)
	if err != nil || count != 2 || latest == nil {
		t.Fatalf("AuditStats: count=%d latest=%v err=%v", count, latest, err)
	}
	if !latest.Equal(newest) {
		t.Fatalf("latest mismatch: got %v want %v", latest, newest)
	}
}
