package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFail_EchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-9")
		Fail(c, http.StatusForbidden, ErrCodeForbidden, "insufficient privileges")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.RequestID != "rid-9" || resp.Code != ErrCodeForbidden || resp.Message == "" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestFail_AbortsChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var reached bool
	r := gin.New()
	r.Use(func(c *gin.Context) {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "bad input")
	})
	r.GET("/", func(c *gin.Context) { reached = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if reached {
		t.Fatalf("handler must not run after fail()")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestOkData_WrapsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		okData(c, http.StatusOK, gin.H{"value": 1})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp map[string]map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["data"]["value"] != 1 {
		t.Fatalf("expected data envelope, got %s", w.Body.String())
	}
}

func TestUserID_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userID(c); got != "anonymous" {
		t.Fatalf("expected anonymous fallback, got %q", got)
	}

	c.Request.Header.Set("X-User-ID", "u-header")
	if got := userID(c); got != "u-header" {
		t.Fatalf("expected header fallback, got %q", got)
	}

	c.Set("userID", "u-ctx")
	if got := userID(c); got != "u-ctx" {
		t.Fatalf("context identity should win, got %q", got)
	}
}

func TestPageParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 20},
		{"?page=3&page_size=50", 3, 50},
		{"?page=0&page_size=0", 1, 20},
		{"?page=-1&page_size=1000", 1, 20},
		{"?page=abc&page_size=abc", 1, 20},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
		page, pageSize := pageParams(c)
		if page != tc.page || pageSize != tc.pageSize {
			t.Errorf("query %q: got (%d,%d), want (%d,%d)", tc.query, page, pageSize, tc.page, tc.pageSize)
		}
	}
}
