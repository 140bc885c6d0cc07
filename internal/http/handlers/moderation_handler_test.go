package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/http/middleware"
	"github.com/tbourn/go-forum-backend/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(
		&domain.User{}, &domain.Thread{}, &domain.Post{},
		&domain.ModerationAction{}, &domain.AuditLogEntry{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeModSvc records the dispatched command and returns a canned result.
type fakeModSvc struct {
	action   *domain.ModerationAction
	err      error
	gotActor string
	gotCmd   services.Command
	calls    int
}

func (f *fakeModSvc) Dispatch(_ context.Context, actorID string, cmd services.Command) (*domain.ModerationAction, error) {
	f.gotActor = actorID
	f.gotCmd = cmd
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.action, nil
}

// fakeContentSvc returns canned creation results.
type fakeContentSvc struct {
	thread  *domain.Thread
	post    *domain.Post
	outcome *services.Outcome
	err     error
}

func (f *fakeContentSvc) CreateThread(_ context.Context, _, _, _ string) (*domain.Thread, *services.Outcome, error) {
	return f.thread, f.outcome, f.err
}

func (f *fakeContentSvc) CreatePost(_ context.Context, _, _, _ string) (*domain.Post, *services.Outcome, error) {
	return f.post, f.outcome, f.err
}

func moderationRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/moderation/actions", h.DispatchAction)
	r.GET("/moderation/actions", h.ListActions)
	r.GET("/moderation/stats", h.Stats)
	r.GET("/audit", h.ListAudit)
	return r
}

func TestDispatchAction_Success(t *testing.T) {
	mod := &fakeModSvc{action: &domain.ModerationAction{
		ID: "a1", Action: domain.ActionTempBan, Reason: "spam",
	}}
	h := New(mod, &fakeContentSvc{}, newHandlerDB(t), time.Hour)
	r := moderationRouter(h)

	body := `{"action":"TEMP_BAN","reason":"spam","target_user_id":"u2","ban_duration_days":7}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/moderation/actions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "mod1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if mod.gotActor != "mod1" {
		t.Fatalf("actor not forwarded, got %q", mod.gotActor)
	}
	if mod.gotCmd.Action != domain.ActionTempBan || mod.gotCmd.BanDurationDays != 7 {
		t.Fatalf("command not forwarded: %+v", mod.gotCmd)
	}

	var resp struct {
		Data DispatchActionResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !resp.Data.Success || resp.Data.Action != "TEMP_BAN" || resp.Data.ActionID != "a1" {
		t.Fatalf("unexpected payload: %+v", resp.Data)
	}
}

func TestDispatchAction_RequiresIdentity(t *testing.T) {
	h := New(&fakeModSvc{}, &fakeContentSvc{}, newHandlerDB(t), time.Hour)
	r := moderationRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/moderation/actions", strings.NewReader(`{"action":"UNBAN","reason":"r"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", w.Code)
	}
}

func TestDispatchAction_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrTargetNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrNotBanned, http.StatusConflict, ErrCodeNotBanned},
		{services.ErrAlreadyResolved, http.StatusConflict, ErrCodeAlreadyResolved},
		{fmt.Errorf("db exploded"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		h := New(&fakeModSvc{err: tc.err}, &fakeContentSvc{}, newHandlerDB(t), time.Hour)
		r := moderationRouter(h)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/moderation/actions", strings.NewReader(`{"action":"UNBAN","reason":"r","target_user_id":"u2"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "mod1")
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
			continue
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Errorf("%v: invalid JSON: %v", tc.err, err)
			continue
		}
		if resp.Code != tc.code {
			t.Errorf("%v: expected code %s, got %s", tc.err, tc.code, resp.Code)
		}
	}
}

func TestDispatchAction_BadPayload(t *testing.T) {
	h := New(&fakeModSvc{}, &fakeContentSvc{}, newHandlerDB(t), time.Hour)
	r := moderationRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/moderation/actions", strings.NewReader(`{"action":"TEMP_BAN"}`)) // no reason
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "mod1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListActions_Paginated(t *testing.T) {
	db := newHandlerDB(t)
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		row := domain.ModerationAction{
			ID: fmt.Sprintf("a%d", i), Action: domain.ActionLockThread, Reason: "r",
			ModeratorID: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h := New(&fakeModSvc{}, &fakeContentSvc{}, db, time.Hour)
	r := moderationRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/moderation/actions?page=1&page_size=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Items      []domain.ModerationAction `json:"items"`
		Pagination Pagination                `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "a2" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
}

func TestStats_CountsByAction(t *testing.T) {
	db := newHandlerDB(t)
	now := time.Now().UTC()
	for i, a := range []domain.ActionType{domain.ActionRemoveContent, domain.ActionRemoveContent, domain.ActionWarnUser} {
		row := domain.ModerationAction{
			ID: fmt.Sprintf("a%d", i), Action: a, Reason: "r", ModeratorID: "m", CreatedAt: now,
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h := New(&fakeModSvc{}, &fakeContentSvc{}, db, time.Hour)
	r := moderationRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/moderation/stats?days=7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Counts []struct {
			Action string `json:"action"`
			Count  int64  `json:"count"`
		} `json:"counts"`
		Ledger struct {
			Entries int64 `json:"entries"`
		} `json:"ledger"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Counts) != 2 || resp.Counts[0].Action != "REMOVE_CONTENT" || resp.Counts[0].Count != 2 {
		t.Fatalf("unexpected counts: %+v", resp.Counts)
	}
	if resp.Ledger.Entries != 0 {
		t.Fatalf("expected empty ledger, got %d entries", resp.Ledger.Entries)
	}
}

func TestListAudit_Paginated(t *testing.T) {
	db := newHandlerDB(t)
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		row := domain.AuditLogEntry{
			ID: fmt.Sprintf("e%d", i), Action: "moderation.lock_thread", EntityType: "thread",
			EntityID: "t1", ActorID: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	h := New(&fakeModSvc{}, &fakeContentSvc{}, db, time.Hour)
	r := moderationRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Items      []domain.AuditLogEntry `json:"items"`
		Pagination Pagination             `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "e1" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestDispatchAction_RetriedKeyNotReExecuted(t *testing.T) {
	db := newHandlerDB(t)
	mod := &fakeModSvc{action: &domain.ModerationAction{
		ID: "a1", Action: domain.ActionTempBan, Reason: "spam",
	}}
	h := New(mod, &fakeContentSvc{}, db, time.Hour)
	r := keyedRouter(db, func(r *gin.Engine) { r.POST("/moderation/actions", h.DispatchAction) })

	// The replay path reads the recorded action row; the fake dispatcher does
	// not persist one, so seed it.
	row := domain.ModerationAction{
		ID: "a1", Action: domain.ActionTempBan, Reason: "spam",
		ModeratorID: "mod1", CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed action: %v", err)
	}

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		body := `{"action":"TEMP_BAN","reason":"spam","target_user_id":"u2","ban_duration_days":7}`
		req := httptest.NewRequest(http.MethodPost, "/moderation/actions", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderUserID, "mod1")
		req.Header.Set(middleware.HeaderIdempotencyKey, "ban-once")
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d: %s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("retried request: expected 200, got %d: %s", second.Code, second.Body.String())
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("retried request should be marked as replayed")
	}
	if mod.calls != 1 {
		t.Fatalf("expected the command to execute once, got %d dispatches", mod.calls)
	}

	var resp struct {
		Data DispatchActionResponse `json:"data"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Data.ActionID != "a1" || resp.Data.Action != "TEMP_BAN" {
		t.Fatalf("replay should return the recorded action, got %+v", resp.Data)
	}
}
