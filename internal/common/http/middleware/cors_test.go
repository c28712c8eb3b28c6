package middleware_test

import (
	"net/http"
	"testing"

	"officehours/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		config     middleware.CORSConfig
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{
			name:       "disabled cors",
			config:     middleware.CORSConfig{Enabled: false},
			method:     http.MethodGet,
			origin:     "https://example.com",
			wantStatus: http.StatusOK,
		},
		{
			name: "allowed preflight",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Authorization"},
				MaxAge:         "600",
			},
			method:     http.MethodOptions,
			origin:     "https://example.com",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://example.com",
		},
		{
			name: "wildcard",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			method:     http.MethodGet,
			origin:     "https://any.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name: "blocked preflight",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://allowed.com"},
			},
			method:     http.MethodOptions,
			origin:     "https://denied.com",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.CORSMiddleware(tc.config))
			router.Handle(tc.method, "/cors", func(c *gin.Context) { c.Status(http.StatusOK) })

			rec, _, err := performRequest(router, tc.method, "/cors", map[string]string{"Origin": tc.origin})
			if err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("unexpected allow origin: %q", got)
			}
		})
	}
}
