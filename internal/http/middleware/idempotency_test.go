package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, inspect func(*gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(opts, lookup))
	r.POST("/threads/:id/posts", func(c *gin.Context) {
		if inspect != nil {
			inspect(c)
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestIdempotencyValidator_NoHeaderIsNoop(t *testing.T) {
	var sawKey bool
	r := idemRouter(IdempotencyOptions{}, nil, func(c *gin.Context) {
		_, sawKey = GetIdempotencyKey(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/threads/t1/posts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
	if sawKey {
		t.Fatalf("no key should be stashed without the header")
	}
}

func TestIdempotencyValidator_InvalidKeyRejected(t *testing.T) {
	r := idemRouter(IdempotencyOptions{MaxLen: 10}, nil, nil)

	cases := []string{
		"way-too-long-for-the-limit",
		"bad key with spaces",
		"emojié",
	}
	for _, key := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/threads/t1/posts", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("key %q: expected 400, got %d", key, w.Code)
		}
	}
}

func TestIdempotencyValidator_StashesKeyAndScope(t *testing.T) {
	var gotKey, gotScope string
	r := idemRouter(IdempotencyOptions{}, nil, func(c *gin.Context) {
		gotKey, _ = GetIdempotencyKey(c)
		gotScope = IdempotencyScope(c)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/t1/posts", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-abc.1")
	r.ServeHTTP(w, req)

	if gotKey != "retry-abc.1" {
		t.Fatalf("expected stashed key, got %q", gotKey)
	}
	// Scope is the :id route parameter when present.
	if gotScope != "t1" {
		t.Fatalf("expected scope t1, got %q", gotScope)
	}
}

func TestIdempotencyValidator_ReplayMarksBypass(t *testing.T) {
	var lookupUser, lookupScope, lookupKey string
	lookup := func(_ context.Context, userID, scope, key string, _ time.Time) (*StoredResult, error) {
		lookupUser, lookupScope, lookupKey = userID, scope, key
		return &StoredResult{ResultID: "r1", Status: http.StatusCreated}, nil
	}

	var replay, bypass bool
	var stored *StoredResult
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "u1"); c.Next() })
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/threads/:id/posts", func(c *gin.Context) {
		replay = IsReplay(c)
		bypass = IsRateBypass(c)
		stored, _ = ReplayResult(c)
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/t1/posts", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(w, req)

	if !replay || !bypass {
		t.Fatalf("expected replay and rate bypass flags, got replay=%v bypass=%v", replay, bypass)
	}
	if stored == nil || stored.ResultID != "r1" || stored.Status != http.StatusCreated {
		t.Fatalf("expected stored result to be stashed, got %+v", stored)
	}
	if lookupUser != "u1" || lookupScope != "t1" || lookupKey != "k1" {
		t.Fatalf("lookup received (%q,%q,%q)", lookupUser, lookupScope, lookupKey)
	}
}

func TestIdempotencyValidator_AnonymousFallback(t *testing.T) {
	var lookupUser string
	lookup := func(_ context.Context, userID, _, _ string, _ time.Time) (*StoredResult, error) {
		lookupUser = userID
		return nil, nil
	}
	r := idemRouter(IdempotencyOptions{}, lookup, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/t1/posts", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(w, req)

	if lookupUser != "anonymous" {
		t.Fatalf("expected anonymous fallback, got %q", lookupUser)
	}
}
