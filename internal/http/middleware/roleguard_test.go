package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

func guardRouter(required domain.Role, lookup UserLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.GET("/audit", RequireRole(required, lookup), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func staticUsers(users map[string]*domain.User) UserLookup {
	return func(_ context.Context, id string) (*domain.User, error) {
		return users[id], nil
	}
}

func TestRequireRole_Matrix(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	users := map[string]*domain.User{
		"member": {ID: "member", Role: domain.RoleMember},
		"mod":    {ID: "mod", Role: domain.RoleModerator},
		"admin":  {ID: "admin", Role: domain.RoleAdmin},
		"banned": {ID: "banned", Role: domain.RoleAdmin, BannedAt: &past, BannedUntil: &future},
	}

	cases := []struct {
		name     string
		required domain.Role
		userID   string
		status   int
		code     string
	}{
		{"anonymous rejected", domain.RoleAdmin, "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown user rejected", domain.RoleAdmin, "ghost", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"member below admin", domain.RoleAdmin, "member", http.StatusForbidden, "FORBIDDEN"},
		{"moderator below admin", domain.RoleAdmin, "mod", http.StatusForbidden, "FORBIDDEN"},
		{"admin admitted", domain.RoleAdmin, "admin", http.StatusOK, ""},
		{"moderator meets moderator", domain.RoleModerator, "mod", http.StatusOK, ""},
		{"admin meets moderator", domain.RoleModerator, "admin", http.StatusOK, ""},
		{"member below moderator", domain.RoleModerator, "member", http.StatusForbidden, "FORBIDDEN"},
		{"banned admin rejected", domain.RoleAdmin, "banned", http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := guardRouter(tc.required, staticUsers(users))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/audit", nil)
			if tc.userID != "" {
				req.Header.Set(HeaderUserID, tc.userID)
			}
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if tc.code == "" {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body["code"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["code"])
			}
		})
	}
}

func TestRequireRole_LookupFailure(t *testing.T) {
	lookup := func(_ context.Context, _ string) (*domain.User, error) {
		return nil, errors.New("db down")
	}
	r := guardRouter(domain.RoleAdmin, lookup)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.Header.Set(HeaderUserID, "admin")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on lookup failure, got %d", w.Code)
	}
}
