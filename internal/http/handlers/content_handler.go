// Content authoring HTTP handlers.
//
// Endpoints:
//   - POST /threads            (create a thread, classifier-gated)
//   - GET  /threads            (list published threads, paginated)
//   - GET  /threads/:id        (fetch one published thread)
//   - POST /threads/:id/posts  (reply in a thread, classifier-gated)
//   - GET  /threads/:id/posts  (list published posts in a thread)
//
// Creation responses include the classification verdict so clients can tell
// a published item from one held for review.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/http/middleware"
	"github.com/tbourn/go-forum-backend/internal/repo"
	"github.com/tbourn/go-forum-backend/internal/services"
	"github.com/tbourn/go-forum-backend/internal/utils"
)

// CreateThreadRequest is the JSON payload for opening a new thread. Title is
// optional; a blank title is derived from the body.
type CreateThreadRequest struct {
	Title string `json:"title,omitempty" example:"Weekly gardening thread"`
	Body  string `json:"body" binding:"required" example:"What is everyone planting this month?"`
}

// CreatePostRequest is the JSON payload for replying in a thread.
type CreatePostRequest struct {
	Content string `json:"content" binding:"required" example:"Tomatoes, mostly."`
}

// ClassificationView is the classifier verdict echoed in creation responses.
type ClassificationView struct {
	Decision   string   `json:"decision" example:"PASS"`
	Confidence float64  `json:"confidence" example:"0.97"`
	Reasons    []string `json:"reasons,omitempty"`
}

func classificationView(o *services.Outcome) *ClassificationView {
	if o == nil {
		return nil
	}
	return &ClassificationView{
		Decision:   string(o.Decision),
		Confidence: o.Confidence,
		Reasons:    o.Reasons,
	}
}

// CreateThread opens a new thread authored by the calling user.
//
// Responses:
//   - 201 {"data":{"thread":...,"classification":...}} when published or quarantined
//   - 400 VALIDATION_ERROR on empty or oversized content
//   - 422 CONTENT_BLOCKED when the classifier rejects the content
//
// A replayed Idempotency-Key answers from the stored thread instead of
// creating a second row.
func (h *Handlers) CreateThread(c *gin.Context) {
	if stored, ok := middleware.ReplayResult(c); ok {
		thread, err := repo.GetThread(c.Request.Context(), h.db, stored.ResultID)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load recorded thread")
			return
		}
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		okData(c, stored.Status, gin.H{
			"thread":         thread,
			"classification": &ClassificationView{Decision: string(thread.AICheckResult)},
		})
		return
	}

	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid thread payload")
		return
	}

	thread, outcome, err := h.contentSvc.CreateThread(c.Request.Context(), userID(c), req.Title, req.Body)
	if err != nil {
		h.contentError(c, err, outcome)
		return
	}

	h.recordIdempotency(c, thread.ID, http.StatusCreated)

	okData(c, http.StatusCreated, gin.H{
		"thread":         thread,
		"classification": classificationView(outcome),
	})
}

// GetThread returns one published thread by id.
func (h *Handlers) GetThread(c *gin.Context) {
	thread, err := repo.GetThread(c.Request.Context(), h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load thread")
		return
	}
	if thread.Status != domain.StatusPublished {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
		return
	}
	ok(c, http.StatusOK, thread)
}

// ListThreads returns a page of published threads, pinned first.
func (h *Handlers) ListThreads(c *gin.Context) {
	page, pageSize := pageParams(c)
	ctx := c.Request.Context()

	total, err := repo.CountThreads(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list threads")
		return
	}
	items := []domain.Thread{}
	if total > 0 {
		items, err = repo.ListThreadsPage(ctx, h.db, utils.Offset(page, pageSize), pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list threads")
			return
		}
	}

	ok(c, http.StatusOK, gin.H{
		"items":      items,
		"pagination": paginationOf(page, pageSize, total),
	})
}

// CreatePost replies in an existing thread.
//
// Responses:
//   - 201 {"data":{"post":...,"classification":...}} when published or quarantined
//   - 404 NOT_FOUND when the thread does not exist or is not published
//   - 409 THREAD_LOCKED when the thread is locked
//   - 422 CONTENT_BLOCKED when the classifier rejects the content
//
// A replayed Idempotency-Key answers from the stored post instead of
// creating a second row.
func (h *Handlers) CreatePost(c *gin.Context) {
	if stored, ok := middleware.ReplayResult(c); ok {
		post, err := repo.GetPost(c.Request.Context(), h.db, stored.ResultID)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load recorded post")
			return
		}
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		okData(c, stored.Status, gin.H{
			"post":           post,
			"classification": &ClassificationView{Decision: string(post.AICheckResult)},
		})
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid post payload")
		return
	}

	post, outcome, err := h.contentSvc.CreatePost(c.Request.Context(), userID(c), c.Param("id"), req.Content)
	if err != nil {
		h.contentError(c, err, outcome)
		return
	}

	h.recordIdempotency(c, post.ID, http.StatusCreated)

	okData(c, http.StatusCreated, gin.H{
		"post":           post,
		"classification": classificationView(outcome),
	})
}

// ListPosts returns a page of published posts in a thread, oldest first.
func (h *Handlers) ListPosts(c *gin.Context) {
	page, pageSize := pageParams(c)
	ctx := c.Request.Context()
	threadID := c.Param("id")

	if _, err := repo.GetThread(ctx, h.db, threadID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list posts")
		return
	}

	total, err := repo.CountPosts(ctx, h.db, threadID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list posts")
		return
	}
	items := []domain.Post{}
	if total > 0 {
		items, err = repo.ListPostsPage(ctx, h.db, threadID, utils.Offset(page, pageSize), pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list posts")
			return
		}
	}

	ok(c, http.StatusOK, gin.H{
		"items":      items,
		"pagination": paginationOf(page, pageSize, total),
	})
}

// contentError maps authoring-path service errors to HTTP responses. Blocked
// content keeps its classification in the response body so clients can show
// the reasons.
func (h *Handlers) contentError(c *gin.Context, err error, outcome *services.Outcome) {
	switch {
	case errors.Is(err, services.ErrEmptyContent):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "content must not be empty")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "content exceeds the maximum length")
	case errors.Is(err, services.ErrTargetNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
	case errors.Is(err, services.ErrThreadLocked):
		fail(c, http.StatusConflict, ErrCodeThreadLocked, "thread is locked")
	case errors.Is(err, services.ErrContentBlocked):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"request_id":     c.Writer.Header().Get("X-Request-ID"),
			"code":           ErrCodeContentBlocked,
			"message":        "content rejected by moderation",
			"classification": classificationView(outcome),
		})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not save content")
	}
}
