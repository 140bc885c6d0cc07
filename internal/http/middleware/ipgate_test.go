package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-forum-backend/internal/abuse"
)

func ipgateRouter(d *abuse.Detector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(IPGate(d))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestIPGate_AllowsNormalTraffic(t *testing.T) {
	d := abuse.New(100, time.Minute, 5*time.Minute)
	r := ipgateRouter(d)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}
}

func TestIPGate_BlocksFlood(t *testing.T) {
	d := abuse.New(3, time.Minute, 5*time.Minute)
	r := ipgateRouter(d)

	send := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.RemoteAddr = net.JoinHostPort(ip, "12345")
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		if w := send("203.0.113.9"); w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	// Fourth request crosses the threshold.
	w := send("203.0.113.9")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "IP_BLOCKED" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}

	// Another address is unaffected.
	if w := send("198.51.100.7"); w.Code != http.StatusOK {
		t.Fatalf("other IP should pass, got %d", w.Code)
	}
}
