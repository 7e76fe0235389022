package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/requestdata"
)

func TestRateLimitMiddleware(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("RATE_LIMIT_BURST", "2")

	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	userA := uuid.New()
	userB := uuid.New()

	router := gin.New()
	var current uuid.UUID
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{UserID: current}))
		c.Next()
	})
	router.Use(NewRateLimitMiddleware(log).Limit())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return w.Code
	}

	current = userA
	if code := get(); code != http.StatusOK {
		t.Fatalf("request 1: status = %d, want 200", code)
	}
	if code := get(); code != http.StatusOK {
		t.Fatalf("request 2: status = %d, want 200", code)
	}
	if code := get(); code != http.StatusTooManyRequests {
		t.Fatalf("request 3: status = %d, want 429", code)
	}

	// Another principal has its own bucket.
	current = userB
	if code := get(); code != http.StatusOK {
		t.Fatalf("other user: status = %d, want 200", code)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "60")
	t.Setenv("RATE_LIMIT_BURST", "1")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	router := gin.New()
	router.Use(NewRateLimitMiddleware(log).Limit())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 with limiting disabled", i+1, w.Code)
		}
	}
}
