package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_messaging/pkg/logger"
)

type stubRateLimit struct {
	allowed  bool
	lastKeys []string
	count    int64
}

func (s *stubRateLimit) Allow(_ context.Context, bucket, key string, _ int, _ int) (bool, error) {
	s.lastKeys = append(s.lastKeys, bucket+":"+key)
	return s.allowed, nil
}

func (s *stubRateLimit) Increment(_ context.Context, _, _ string, _ int) (int64, error) {
	s.count++
	return s.count, nil
}

func limitedRouter(stub *stubRateLimit, userID *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	m := NewRateLimitMiddleware(stub, logger.NewNop())
	if userID != nil {
		router.Use(func(c *gin.Context) { c.Set("user_id", *userID) })
	}
	router.GET("/rooms", m.Limit("room_list", 5, 60), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestLimitKeysByAuthenticatedUser(t *testing.T) {
	stub := &stubRateLimit{allowed: true}
	userID := uuid.New()
	router := limitedRouter(stub, &userID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := "room_list:" + userID.String()
	if len(stub.lastKeys) != 1 || stub.lastKeys[0] != want {
		t.Fatalf("expected counter key %q, got %v", want, stub.lastKeys)
	}
	if w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("expected bucket limit in headers, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimitFallsBackToClientIP(t *testing.T) {
	stub := &stubRateLimit{allowed: true}
	router := limitedRouter(stub, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	router.ServeHTTP(w, req)

	if len(stub.lastKeys) != 1 || stub.lastKeys[0] != "room_list:10.1.2.3" {
		t.Fatalf("expected ip-based key, got %v", stub.lastKeys)
	}
}

func TestLimitRejectsWhenBucketExhausted(t *testing.T) {
	stub := &stubRateLimit{allowed: false}
	userID := uuid.New()
	router := limitedRouter(stub, &userID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected zero remaining, got %q", w.Header().Get("X-RateLimit-Remaining"))
	}
	if stub.count != 0 {
		t.Fatalf("rejected request must not consume the bucket")
	}
}
