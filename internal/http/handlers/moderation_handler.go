// Moderation HTTP handlers.
//
// This file exposes the REST endpoints for the moderation command dispatcher
// and its records:
//   - POST /moderation/actions  (dispatch a command)
//   - GET  /moderation/actions  (list actions, paginated)
//   - GET  /moderation/stats    (per-type action counts)
//   - GET  /audit               (audit ledger page)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate domain/service errors into HTTP results with stable codes.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/http/middleware"
	"github.com/tbourn/go-forum-backend/internal/repo"
	"github.com/tbourn/go-forum-backend/internal/services"
	"github.com/tbourn/go-forum-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ModerationService defines the command dispatcher consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ModerationService interface {
	// Dispatch authorizes and executes one moderator command atomically.
	Dispatch(ctx context.Context, actorID string, cmd services.Command) (*domain.ModerationAction, error)
}

// ContentService defines the authoring operations consumed by HTTP handlers.
type ContentService interface {
	// CreateThread validates, classifies, and persists a new thread.
	CreateThread(ctx context.Context, authorID, title, body string) (*domain.Thread, *services.Outcome, error)
	// CreatePost validates, classifies, and persists a reply.
	CreatePost(ctx context.Context, authorID, threadID, content string) (*domain.Post, *services.Outcome, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for moderation and content authoring.
// Listing endpoints read through the repo layer directly; mutations go
// through the services.
type Handlers struct {
	modSvc     ModerationService
	contentSvc ContentService
	db         *gorm.DB
	idemTTL    time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(modSvc ModerationService, contentSvc ContentService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	return &Handlers{modSvc: modSvc, contentSvc: contentSvc, db: db, idemTTL: idemTTL}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "anonymous". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "anonymous"
}

//
// DTOs
//

// DispatchActionRequest is the JSON payload for dispatching a moderation
// command. Target and metadata requirements depend on the action and are
// validated by the dispatcher.
type DispatchActionRequest struct {
	Action          string `json:"action" binding:"required" example:"TEMP_BAN"`
	Reason          string `json:"reason" binding:"required,min=1,max=500" example:"repeated spam"`
	TargetUserID    string `json:"target_user_id,omitempty"`
	ThreadID        string `json:"thread_id,omitempty"`
	PostID          string `json:"post_id,omitempty"`
	BanDurationDays int    `json:"ban_duration_days,omitempty" example:"7"`
	NewRole         string `json:"new_role,omitempty" example:"MODERATOR"`
	WarnMessage     string `json:"warn_message,omitempty"`
}

// DispatchActionResponse is the success payload, wrapped in a `data` envelope.
type DispatchActionResponse struct {
	Success  bool   `json:"success"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	ActionID string `json:"action_id"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// pageParams reads page/page_size query parameters with defaults and caps.
func pageParams(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	pageSize = utils.AtoiDefault(c.Query("page_size"), 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// DispatchAction executes one moderator command.
//
// Responses:
//   - 200 {"data":{"success":true,"action":...,"reason":...}} on success
//   - 400 VALIDATION_ERROR, 401 UNAUTHORIZED, 403 FORBIDDEN,
//     404 NOT_FOUND, 409 ALREADY_RESOLVED / NOT_BANNED, 500 INTERNAL_ERROR
//
// A replayed Idempotency-Key answers from the recorded action instead of
// dispatching the command again.
func (h *Handlers) DispatchAction(c *gin.Context) {
	if stored, ok := middleware.ReplayResult(c); ok {
		action, err := repo.GetModerationAction(c.Request.Context(), h.db, stored.ResultID)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load recorded action")
			return
		}
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		okData(c, stored.Status, DispatchActionResponse{
			Success:  true,
			Action:   string(action.Action),
			Reason:   action.Reason,
			ActionID: action.ID,
		})
		return
	}

	var req DispatchActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid command payload")
		return
	}

	actorID := userID(c)
	if actorID == "" || actorID == "anonymous" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	cmd := services.Command{
		Action:          domain.ActionType(req.Action),
		Reason:          req.Reason,
		TargetUserID:    req.TargetUserID,
		ThreadID:        req.ThreadID,
		PostID:          req.PostID,
		BanDurationDays: req.BanDurationDays,
		NewRole:         domain.Role(req.NewRole),
		WarnMessage:     req.WarnMessage,
	}

	action, err := h.modSvc.Dispatch(c.Request.Context(), actorID, cmd)
	if err != nil {
		switch {
		case err == services.ErrUnauthorized:
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown acting user")
		case err == services.ErrForbidden:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "insufficient privileges")
		case err == services.ErrValidation:
			fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid command payload")
		case err == services.ErrTargetNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "target not found")
		case err == services.ErrNotBanned:
			fail(c, http.StatusConflict, ErrCodeNotBanned, "user is not banned")
		case err == services.ErrAlreadyResolved:
			fail(c, http.StatusConflict, ErrCodeAlreadyResolved, "already resolved")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	h.recordIdempotency(c, action.ID, http.StatusOK)

	okData(c, http.StatusOK, DispatchActionResponse{
		Success:  true,
		Action:   string(action.Action),
		Reason:   action.Reason,
		ActionID: action.ID,
	})
}

// ListActions returns a page of moderation actions, newest first.
func (h *Handlers) ListActions(c *gin.Context) {
	page, pageSize := pageParams(c)
	ctx := c.Request.Context()

	total, err := repo.CountModerationActions(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list actions")
		return
	}
	items := []domain.ModerationAction{}
	if total > 0 {
		items, err = repo.ListModerationActionsPage(ctx, h.db, utils.Offset(page, pageSize), pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list actions")
			return
		}
	}

	ok(c, http.StatusOK, gin.H{
		"items":      items,
		"pagination": paginationOf(page, pageSize, total),
	})
}

// Stats returns per-type moderation action counts for a trailing window
// selected by the `days` query parameter (default 30, capped at 365), plus
// summary figures for the audit ledger.
func (h *Handlers) Stats(c *gin.Context) {
	days := utils.AtoiDefault(c.Query("days"), 30)
	if days < 1 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	counts, err := repo.ModerationStats(c.Request.Context(), h.db, since)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute stats")
		return
	}
	entries, latest, err := repo.AuditStats(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute stats")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"since":  since,
		"counts": counts,
		"ledger": gin.H{"entries": entries, "latest": latest},
	})
}

// ListAudit returns a page of audit ledger entries, newest first.
func (h *Handlers) ListAudit(c *gin.Context) {
	page, pageSize := pageParams(c)
	ctx := c.Request.Context()

	total, err := repo.CountAuditEntries(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list audit entries")
		return
	}
	items := []domain.AuditLogEntry{}
	if total > 0 {
		items, err = repo.ListAuditPage(ctx, h.db, utils.Offset(page, pageSize), pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list audit entries")
			return
		}
	}

	ok(c, http.StatusOK, gin.H{
		"items":      items,
		"pagination": paginationOf(page, pageSize, total),
	})
}

// paginationOf assembles pagination metadata for a list response.
func paginationOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

// recordIdempotency stores the idempotency record for a completed mutation
// when the client supplied a key. Failures are non-fatal: the operation
// already succeeded, so a duplicate or write error only costs replay
// detection for retries.
func (h *Handlers) recordIdempotency(c *gin.Context, resultID string, status int) {
	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey || h.db == nil {
		return
	}
	scope := middleware.IdempotencyScope(c)
	if _, err := repo.CreateIdempotency(c.Request.Context(), h.db, userID(c), scope, key, resultID, status, h.idemTTL); err != nil && err != repo.ErrDuplicate {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record write failed")
	}
}
