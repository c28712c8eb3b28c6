package middleware_test

import (
	"net/http"
	"testing"
	"time"

	"officehours/internal/common/auth"
	"officehours/internal/common/http/middleware"
	"officehours/internal/common/ratelimit"
	"officehours/internal/testutil"
	pkgerrors "officehours/pkg/errors"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddlewarePerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	redisCache, _ := testutil.NewRedis(t)
	limiter := ratelimit.NewLimiter(redisCache, time.Minute, time.Second)
	verifier := stubVerifier{tokens: map[string]auth.Identity{
		"a": {UserID: "ua"},
		"b": {UserID: "ub"},
	}}

	router := gin.New()
	router.Use(middleware.AuthMiddleware(verifier))
	router.POST("/claim", middleware.RateLimitMiddleware(limiter, "claim", middleware.RateLimitPolicy{UserMax: 2}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		rec, _, _ := performRequest(router, http.MethodPost, "/claim", map[string]string{"Authorization": "Bearer a"})
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status on hit %d: %d", i+1, rec.Code)
		}
	}
	rec, resp, err := performRequest(router, http.MethodPost, "/claim", map[string]string{"Authorization": "Bearer a"})
	if err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests || resp.Code != int(pkgerrors.TooManyRequests) {
		t.Fatalf("unexpected response: %d %d", rec.Code, resp.Code)
	}

	rec, _, _ = performRequest(router, http.MethodPost, "/claim", map[string]string{"Authorization": "Bearer b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other user to be unaffected, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareNilLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", middleware.RateLimitMiddleware(nil, "x", middleware.RateLimitPolicy{IPMax: 1}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		rec, _, _ := performRequest(router, http.MethodGet, "/x", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rec.Code)
		}
	}
}
